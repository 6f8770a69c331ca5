package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 19090\n"))
	require.NoError(t, err)

	assert.Equal(t, 19090, cfg.Server.Port)
	assert.Equal(t, "avaya_vsp", cfg.Software.Platform)
	assert.Equal(t, 10, cfg.Software.Reboot.Attempts)
	assert.Equal(t, 30*time.Second, cfg.Software.Reboot.Interval)
	assert.Equal(t, 30*time.Second, cfg.Software.Reboot.Settle, "首次重连前等待")
	assert.Equal(t, 200*time.Second, cfg.SoftwareOptions().AddWait(), "默认 10*20*1s")
	assert.Equal(t, "local", cfg.Transcript.Backend)
	assert.Same(t, cfg, Get(), "全局配置已更新")
}

func TestLoadOverridesAndEnv(t *testing.T) {
	t.Setenv("VSPIMAGE_SOFTWARE_REBOOT_ATTEMPTS", "3")
	t.Setenv("TEST_MINIO_SECRET", "s3cr3t")
	path := writeConfig(t, `
storage:
  minio:
    secret_key: ${TEST_MINIO_SECRET}
software:
  add_image:
    max_loops: 2
    delay_factor: 5
    loop_delay: 2s
platforms:
  avaya_vsp:
    prompt_suffixes: ["#"]
    command_timeout_sec: 90
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Software.Reboot.Attempts, "环境变量覆盖")
	assert.Equal(t, "s3cr3t", cfg.Storage.Minio.SecretKey)
	assert.Equal(t, 20*time.Second, cfg.SoftwareOptions().AddWait())
	p := cfg.Platform("avaya_vsp")
	assert.Equal(t, []string{"#"}, p.PromptSuffixes)
	assert.Equal(t, 90, p.CommandTimeoutSec)
	assert.Empty(t, cfg.Platform("unknown").PromptSuffixes)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "transcript:\n  backend: ftp\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "显式指定的配置文件不存在时报错")
}

func TestSSHAlgorithmOverride(t *testing.T) {
	cfg, err := Load(writeConfig(t, "ssh:\n  connect_timeout: 5s\n  ciphers: [aes128-cbc, 3des-cbc]\n"))
	require.NoError(t, err)

	sc := cfg.SSHClientConfig()
	assert.Equal(t, 5*time.Second, sc.Timeout)
	assert.Equal(t, []string{"aes128-cbc", "3des-cbc"}, sc.Ciphers)
	assert.Empty(t, sc.KeyExchanges, "未配置时由客户端使用默认列表")
}
