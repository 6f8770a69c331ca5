package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vspimagectl/vspimagectl/internal/service"
)

// RunOptions 完整生命周期参数
type RunOptions struct {
	*GlobalOptions
	req service.LifecycleRequest
}

func NewCmdRun(global *GlobalOptions) *cobra.Command {
	o := &RunOptions{GlobalOptions: global}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Remove, add and activate images, then optionally reboot.",
		Example: `  vspctl run --host 10.0.0.1 -u rwa -p rwa --new-image-filename VOSS8K.8.2.0.0.tgz --upload-confirm --activate-confirm
  vspctl run --args-file args.json --output text`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := o.complete(cmd)
			if err != nil {
				return err
			}
			svc, reporter, err := o.setup()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			resp, err := svc.Run(ctx, req)
			return report(reporter, resp, err)
		},
	}
	o.bindFlags(cmd.Flags())
	return cmd
}

func (o *RunOptions) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.req.NewImageFilename, "new-image-filename", "", "release archive in /intflash to add")
	fs.StringVar(&o.req.NewImageVersion, "new-image-version", "", "version to activate (default: version extracted from the archive)")
	fs.StringVar(&o.req.DelImageVersion, "del-image-version", "", "version to remove")
	fs.StringVar(&o.req.FTPServerIP, "ftp-server-ip", "", "ftp server holding the archive (informational)")
	fs.StringVar(&o.req.FTPServerDirectory, "ftp-server-directory", "", "ftp directory holding the archive (informational)")
	fs.BoolVar(&o.req.UploadImageConfirm, "upload-confirm", false, "confirm image add/remove")
	fs.BoolVar(&o.req.ActivateImageConfirm, "activate-confirm", false, "confirm activation")
	fs.BoolVar(&o.req.RebootImageConfirm, "reboot-confirm", false, "confirm reboot")
	fs.BoolVar(&o.req.WaitForSuccessConfirm, "wait", false, "wait for the device to come back after reboot")
}

// complete 合并 args 文件与命令行参数，命令行显式设置的优先
func (o *RunOptions) complete(cmd *cobra.Command) (service.LifecycleRequest, error) {
	var file service.LifecycleRequest
	if err := o.loadArgs(&file); err != nil {
		return file, err
	}
	req := file
	req.ConnectionRequest = o.connection(cmd.Flags(), file.ConnectionRequest)

	fs := cmd.Flags()
	pick := func(name string, dst *string, v string) {
		if fs.Changed(name) || *dst == "" {
			*dst = v
		}
	}
	pick("new-image-filename", &req.NewImageFilename, o.req.NewImageFilename)
	pick("new-image-version", &req.NewImageVersion, o.req.NewImageVersion)
	pick("del-image-version", &req.DelImageVersion, o.req.DelImageVersion)
	pick("ftp-server-ip", &req.FTPServerIP, o.req.FTPServerIP)
	pick("ftp-server-directory", &req.FTPServerDirectory, o.req.FTPServerDirectory)

	flag := func(name string, dst *bool, v bool) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	flag("upload-confirm", &req.UploadImageConfirm, o.req.UploadImageConfirm)
	flag("activate-confirm", &req.ActivateImageConfirm, o.req.ActivateImageConfirm)
	flag("reboot-confirm", &req.RebootImageConfirm, o.req.RebootImageConfirm)
	flag("wait", &req.WaitForSuccessConfirm, o.req.WaitForSuccessConfirm)
	return req, nil
}

func NewCmdShowSoftware(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "show-software",
		Aliases: []string{"inventory"},
		Short:   "Show software images and their boot roles.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connectionOnly(global, cmd)
			if err != nil {
				return err
			}
			svc, reporter, err := global.setup()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			resp, err := svc.Inventory(ctx, conn)
			return report(reporter, resp, err)
		},
	}
}

func NewCmdSaveConfig(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save-config",
		Short: "Persist the running configuration (copy run start).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connectionOnly(global, cmd)
			if err != nil {
				return err
			}
			svc, reporter, err := global.setup()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			resp, err := svc.SaveConfig(ctx, conn)
			return report(reporter, resp, err)
		},
	}
}

func NewCmdReboot(global *GlobalOptions) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "reboot",
		Short: "Reboot the device (reset -y), optionally waiting until it is reachable again.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var file service.RebootRequest
			if err := global.loadArgs(&file); err != nil {
				return err
			}
			req := service.RebootRequest{
				ConnectionRequest: global.connection(cmd.Flags(), file.ConnectionRequest),
				Wait:              file.Wait,
			}
			if cmd.Flags().Changed("wait") {
				req.Wait = wait
			}
			svc, reporter, err := global.setup()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			resp, err := svc.Reboot(ctx, req)
			return report(reporter, resp, err)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the device to come back")
	return cmd
}

func connectionOnly(global *GlobalOptions, cmd *cobra.Command) (service.ConnectionRequest, error) {
	var file service.ConnectionRequest
	if err := global.loadArgs(&file); err != nil {
		return file, err
	}
	return global.connection(cmd.Flags(), file), nil
}
