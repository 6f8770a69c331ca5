package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/vspimagectl/vspimagectl/internal/software"
	"github.com/vspimagectl/vspimagectl/pkg/logger"
	"github.com/vspimagectl/vspimagectl/pkg/ssh"
)

// EnvPrefix 环境变量前缀，例如 VSPIMAGE_SERVER_PORT
const EnvPrefix = "VSPIMAGE"

// Config 应用配置结构
type Config struct {
	Server     ServerConfig                `mapstructure:"server"`
	SSH        SSHConfig                   `mapstructure:"ssh"`
	Log        LogConfig                   `mapstructure:"log"`
	Database   DatabaseConfig              `mapstructure:"database"`
	Storage    StorageConfig               `mapstructure:"storage"`
	Transcript TranscriptConfig            `mapstructure:"transcript"`
	Software   SoftwareConfig              `mapstructure:"software"`
	Platforms  map[string]PlatformOverride `mapstructure:"platforms"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SimulateEnable bool          `mapstructure:"simulate_enable"`
	SimulateConfig string        `mapstructure:"simulate_config"`
}

// SSHConfig SSH配置
type SSHConfig struct {
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
	Encoding          string        `mapstructure:"encoding"`
	KeyExchanges      []string      `mapstructure:"key_exchanges"`
	Ciphers           []string      `mapstructure:"ciphers"`
	MACs              []string      `mapstructure:"macs"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig 对象存储配置
type StorageConfig struct {
	Minio MinioConfig `mapstructure:"minio"`
}

// MinioConfig MinIO 连接参数
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// TranscriptConfig 会话留档配置
type TranscriptConfig struct {
	// Backend local | minio | none
	Backend string                `mapstructure:"backend"`
	Prefix  string                `mapstructure:"prefix"`
	Local   LocalTranscriptConfig `mapstructure:"local"`
}

// LocalTranscriptConfig 本地留档目录
type LocalTranscriptConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	MkdirIfMissing bool   `mapstructure:"mkdir_if_missing"`
}

// SoftwareConfig 镜像生命周期参数
type SoftwareConfig struct {
	// Platform 使用的交互插件
	Platform       string         `mapstructure:"platform"`
	CommandTimeout time.Duration  `mapstructure:"command_timeout"`
	AddImage       AddImageConfig `mapstructure:"add_image"`
	Reboot         RebootConfig   `mapstructure:"reboot"`
}

// AddImageConfig software add 等待参数：max_loops * delay_factor * loop_delay
type AddImageConfig struct {
	MaxLoops    int           `mapstructure:"max_loops"`
	DelayFactor int           `mapstructure:"delay_factor"`
	LoopDelay   time.Duration `mapstructure:"loop_delay"`
}

// RebootConfig 重启等待参数
type RebootConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
	Settle   time.Duration `mapstructure:"settle"`
}

// PlatformOverride 平台交互参数覆盖，零值表示沿用插件默认
type PlatformOverride struct {
	PromptSuffixes    []string `mapstructure:"prompt_suffixes"`
	PreCommands       []string `mapstructure:"pre_commands"`
	ExitCommands      []string `mapstructure:"exit_commands"`
	PendingPrompts    []string `mapstructure:"pending_prompts"`
	CommandTimeoutSec int      `mapstructure:"command_timeout_sec"`
	PromptTimeoutSec  int      `mapstructure:"prompt_timeout_sec"`
	Encoding          string   `mapstructure:"encoding"`
	EnablePassword    string   `mapstructure:"enable_password"`
	// AutoInteractions 非空时替换插件默认的自动应答
	AutoInteractions []AutoInteractionConfig `mapstructure:"auto_interactions"`
}

// AutoInteractionConfig 自动交互配置
type AutoInteractionConfig struct {
	ExpectOutput string `mapstructure:"expect_output"`
	AutoSend     string `mapstructure:"auto_send"`
}

var (
	globalMu     sync.RWMutex
	globalConfig *Config
)

// Load 加载配置文件；configPath 为空时在常见目录查找 config.yaml
// 找不到配置文件时使用默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config = replaceEnvVars(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalMu.Lock()
	globalConfig = &config
	globalMu.Unlock()
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 18080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	// 带等待的重启请求可能持续数分钟
	v.SetDefault("server.write_timeout", 15*time.Minute)
	v.SetDefault("server.simulate_enable", false)
	v.SetDefault("server.simulate_config", "simulate/simulate.yaml")

	v.SetDefault("ssh.connect_timeout", 10*time.Second)
	v.SetDefault("ssh.keep_alive_interval", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/vspimagectl.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("database.sqlite.path", "./data/vspimagectl.db")
	v.SetDefault("database.sqlite.max_idle_conns", 2)
	v.SetDefault("database.sqlite.max_open_conns", 4)
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("storage.minio.port", 9000)
	v.SetDefault("storage.minio.bucket", "vsp-transcripts")

	v.SetDefault("transcript.backend", "local")
	v.SetDefault("transcript.prefix", "transcripts")
	v.SetDefault("transcript.local.base_dir", "./data")
	v.SetDefault("transcript.local.mkdir_if_missing", true)

	d := software.DefaultOptions()
	v.SetDefault("software.platform", "avaya_vsp")
	v.SetDefault("software.command_timeout", 60*time.Second)
	v.SetDefault("software.add_image.max_loops", d.AddMaxLoops)
	v.SetDefault("software.add_image.delay_factor", d.AddDelayFactor)
	v.SetDefault("software.add_image.loop_delay", d.AddLoopDelay)
	v.SetDefault("software.reboot.attempts", d.RebootAttempts)
	v.SetDefault("software.reboot.interval", d.RebootInterval)
	v.SetDefault("software.reboot.settle", d.RebootSettle)
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch strings.ToLower(c.Transcript.Backend) {
	case "", "local", "minio", "none":
	default:
		return fmt.Errorf("transcript.backend must be local, minio or none: %q", c.Transcript.Backend)
	}
	if c.Software.Reboot.Attempts < 0 {
		return fmt.Errorf("software.reboot.attempts must not be negative")
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// replaceEnvVars 替换 ${VAR} 形式的敏感配置
func replaceEnvVars(config Config) Config {
	config.Storage.Minio.AccessKey = expandEnv(config.Storage.Minio.AccessKey)
	config.Storage.Minio.SecretKey = expandEnv(config.Storage.Minio.SecretKey)
	for name, p := range config.Platforms {
		p.EnablePassword = expandEnv(p.EnablePassword)
		config.Platforms[name] = p
	}
	return config
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
	}
	return s
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoggerConfig 转换为日志模块配置
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		Output:     c.Log.Output,
		FilePath:   c.Log.FilePath,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}

// SSHClientConfig 转换为 SSH 客户端配置
func (c *Config) SSHClientConfig() *ssh.Config {
	return &ssh.Config{
		Timeout:      c.SSH.ConnectTimeout,
		KeepAlive:    c.SSH.KeepAliveInterval,
		Encoding:     c.SSH.Encoding,
		KeyExchanges: c.SSH.KeyExchanges,
		Ciphers:      c.SSH.Ciphers,
		MACs:         c.SSH.MACs,
	}
}

// SoftwareOptions 转换为生命周期操作参数
func (c *Config) SoftwareOptions() software.Options {
	return software.Options{
		AddMaxLoops:    c.Software.AddImage.MaxLoops,
		AddDelayFactor: c.Software.AddImage.DelayFactor,
		AddLoopDelay:   c.Software.AddImage.LoopDelay,
		RebootAttempts: c.Software.Reboot.Attempts,
		RebootInterval: c.Software.Reboot.Interval,
		RebootSettle:   c.Software.Reboot.Settle,
	}
}

// Platform 取平台覆盖项
func (c *Config) Platform(name string) PlatformOverride {
	if c.Platforms == nil {
		return PlatformOverride{}
	}
	return c.Platforms[name]
}
