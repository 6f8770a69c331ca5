package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vspimagectl/vspimagectl/addone/interact"
	_ "github.com/vspimagectl/vspimagectl/addone/interact/platforms/avaya_vsp"
	"github.com/vspimagectl/vspimagectl/internal/config"
	"github.com/vspimagectl/vspimagectl/internal/service"
	"github.com/vspimagectl/vspimagectl/pkg/logger"
)

const appName = "vspctl"

// errFailed 结果已输出，仅用于退出码
var errFailed = errors.New("operation failed")

func main() {
	command := NewVspctlCommand()
	if err := command.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// GlobalOptions 所有子命令共用的参数
type GlobalOptions struct {
	ConfigFile string
	Output     string
	ArgsFile   string
	Conn       service.ConnectionRequest
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFile, "config", "c", "", "config file path (default: configs/config.yaml if present)")
	fs.StringVarP(&o.Output, "output", "o", "json", "output format: json|text")
	fs.StringVar(&o.ArgsFile, "args-file", "", "JSON file with module arguments (host, username, new_image_filename, ...)")
	fs.StringVar(&o.Conn.Host, "host", "", "device address")
	fs.IntVar(&o.Conn.Port, "port", 22, "device ssh port")
	fs.StringVarP(&o.Conn.Username, "username", "u", "", "login user")
	fs.StringVarP(&o.Conn.Password, "password", "p", "", "login password (or env VSPIMAGE_PASSWORD)")
	fs.StringVar(&o.Conn.Platform, "platform", "", "interaction plugin (default from config), one of: "+strings.Join(interact.Names(), ", "))
}

func NewVspctlCommand() *cobra.Command {
	opts := &GlobalOptions{}
	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s [command] [flags]", appName),
		Short:         "Manage software images on Avaya/Extreme VSP switches over SSH.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	opts.Bind(cmd.PersistentFlags())

	cmd.AddCommand(NewCmdRun(opts))
	cmd.AddCommand(NewCmdShowSoftware(opts))
	cmd.AddCommand(NewCmdSaveConfig(opts))
	cmd.AddCommand(NewCmdReboot(opts))
	return cmd
}

// loadArgs 读取 args 文件到 target；flags 中显式设置的值优先
func (o *GlobalOptions) loadArgs(target interface{}) error {
	if o.ArgsFile == "" {
		return nil
	}
	bs, err := os.ReadFile(o.ArgsFile)
	if err != nil {
		return fmt.Errorf("read args file: %w", err)
	}
	if err := json.Unmarshal(bs, target); err != nil {
		return fmt.Errorf("parse args file %s: %w", o.ArgsFile, err)
	}
	return nil
}

// connection 合并 args 文件与命令行的连接参数
func (o *GlobalOptions) connection(flags *pflag.FlagSet, fromFile service.ConnectionRequest) service.ConnectionRequest {
	c := fromFile
	if flags.Changed("host") || c.Host == "" {
		c.Host = o.Conn.Host
	}
	if flags.Changed("port") || c.Port == 0 {
		c.Port = o.Conn.Port
	}
	if flags.Changed("username") || c.Username == "" {
		c.Username = o.Conn.Username
	}
	if flags.Changed("password") || c.Password == "" {
		c.Password = o.Conn.Password
	}
	if c.Password == "" {
		c.Password = os.Getenv("VSPIMAGE_PASSWORD")
	}
	if flags.Changed("platform") || c.Platform == "" {
		c.Platform = o.Conn.Platform
	}
	return c
}

// setup 加载配置、初始化日志并构建服务
func (o *GlobalOptions) setup() (*service.LifecycleService, service.Reporter, error) {
	reporter, err := service.NewReporter(o.Output)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	// 日志写 stderr，stdout 只输出结果
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return nil, nil, err
	}
	svc := service.NewLifecycleService(cfg, service.NewSSHSessionFactory(cfg), nil, service.NewStorageWriter(cfg))
	return svc, reporter, nil
}

// report 输出结果；失败时返回 errFailed 使退出码为 1
func report(reporter service.Reporter, resp *service.LifecycleResponse, err error) error {
	if resp == nil {
		return err
	}
	if rerr := reporter.Report(os.Stdout, resp); rerr != nil {
		return rerr
	}
	if err != nil || resp.Failed {
		return errFailed
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
