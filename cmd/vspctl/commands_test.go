package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRunCmd 构建独立的 root + run，便于直接调用 complete
func newRunCmd(t *testing.T, args ...string) (*RunOptions, *cobra.Command) {
	t.Helper()
	global := &GlobalOptions{}
	root := &cobra.Command{Use: appName}
	global.Bind(root.PersistentFlags())

	o := &RunOptions{GlobalOptions: global}
	cmd := &cobra.Command{Use: "run"}
	o.bindFlags(cmd.Flags())
	root.AddCommand(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return o, cmd
}

func writeArgs(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "args.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunArgsFileMergedWithFlags(t *testing.T) {
	argsFile := writeArgs(t, `{
		"host": "192.0.2.10", "username": "rwa", "password": "file-secret",
		"new_image_filename": "VOSS8K.8.2.0.0.tgz",
		"upload_image_confirm": true,
		"reboot_image_confirm": true
	}`)

	o, cmd := newRunCmd(t, "--args-file", argsFile, "--host", "192.0.2.20",
		"--new-image-version", "8.2.0.0", "--reboot-confirm=false")
	req, err := o.complete(cmd)
	require.NoError(t, err)

	assert.Equal(t, "192.0.2.20", req.Host, "命令行显式参数优先")
	assert.Equal(t, 22, req.Port, "未设置端口取默认值")
	assert.Equal(t, "rwa", req.Username)
	assert.Equal(t, "file-secret", req.Password, "命令行未给出时使用文件中的值")
	assert.Equal(t, "VOSS8K.8.2.0.0.tgz", req.NewImageFilename)
	assert.Equal(t, "8.2.0.0", req.NewImageVersion)
	assert.True(t, req.UploadImageConfirm)
	assert.False(t, req.RebootImageConfirm, "命令行关闭重启确认")
}

func TestRunFlagsOnly(t *testing.T) {
	o, cmd := newRunCmd(t, "--host", "192.0.2.30", "-u", "rwa", "-p", "rwa",
		"--del-image-version", "8.0.0.0", "--upload-confirm", "--wait")
	req, err := o.complete(cmd)
	require.NoError(t, err)

	assert.Equal(t, "8.0.0.0", req.DelImageVersion)
	assert.True(t, req.UploadImageConfirm)
	assert.True(t, req.WaitForSuccessConfirm)
	assert.False(t, req.ActivateImageConfirm)
	assert.NoError(t, req.Validate())
}

func TestConnectionPasswordFromEnv(t *testing.T) {
	t.Setenv("VSPIMAGE_PASSWORD", "env-secret")
	o, cmd := newRunCmd(t, "--host", "192.0.2.30", "-u", "rwa")
	req, err := o.complete(cmd)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", req.Password)
}

func TestArgsFileParseError(t *testing.T) {
	global := &GlobalOptions{ArgsFile: writeArgs(t, `{not json`)}
	_, err := connectionOnly(global, NewCmdSaveConfig(global))
	assert.Error(t, err)
}

func TestUnknownOutputFormat(t *testing.T) {
	global := &GlobalOptions{Output: "yaml"}
	_, _, err := global.setup()
	assert.Error(t, err, "不支持的输出格式")
}

func TestSubcommandsRegistered(t *testing.T) {
	root := NewVspctlCommand()
	for _, name := range []string{"run", "show-software", "inventory", "save-config", "reboot"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.NotEqual(t, root, cmd, name)
	}
}
