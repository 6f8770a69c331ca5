package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/vspimagectl/vspimagectl/addone/interact/platforms/avaya_vsp"
	"github.com/vspimagectl/vspimagectl/internal/config"
	"github.com/vspimagectl/vspimagectl/simulate"
)

// 通过 SSH 驱动模拟器完成完整流程
func TestLifecycleOverSSH(t *testing.T) {
	if testing.Short() {
		t.Skip("ssh simulator test")
	}
	srv, err := simulate.Start(&simulate.Config{
		Listen:   "127.0.0.1:0",
		Password: "nova",
		Devices: map[string]simulate.DeviceConfig{
			simulate.DefaultDeviceName: {
				Hostname: "VSP-8284XSQ",
				Images:   []string{"VOSS8K.8.0.0.0", "VOSS8K.8.1.0.0", "VOSS8K.7.1.0.0"},
				Primary:  "VOSS8K.8.1.0.0",
				Backup:   "VOSS8K.8.0.0.0",
				Flash:    []string{"VOSS8K.8.2.0.0.tgz"},
				DownTime: 300 * time.Millisecond,
			},
		},
	})
	require.NoError(t, err)
	defer srv.Stop()

	cfg := testConfig()
	cfg.SSH = config.SSHConfig{ConnectTimeout: 5 * time.Second}
	cfg.Software.CommandTimeout = 10 * time.Second
	cfg.Software.Reboot = config.RebootConfig{Attempts: 30, Interval: 100 * time.Millisecond}
	svc := NewLifecycleService(cfg, NewSSHSessionFactory(cfg), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	c := ConnectionRequest{Host: "127.0.0.1", Port: srv.Port(), Username: "rwa", Password: "nova"}

	inv, err := svc.Inventory(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "VOSS8K.8.1.0.0", inv.Snapshot.Primary)
	assert.Equal(t, "VOSS8K.8.0.0.0", inv.Snapshot.Backup)
	assert.Len(t, inv.Snapshot.Images, 3)

	resp, err := svc.Run(ctx, LifecycleRequest{
		ConnectionRequest:     c,
		NewImageFilename:      "VOSS8K.8.2.0.0.tgz",
		DelImageVersion:       "VOSS8K.7.1.0.0",
		UploadImageConfirm:    true,
		ActivateImageConfirm:  true,
		RebootImageConfirm:    true,
		WaitForSuccessConfirm: true,
	})
	require.NoError(t, err, "msg: %s", resp.Msg)
	assert.True(t, resp.Changed)
	assert.Equal(t, "VOSS8K.8.2.0.0", resp.Version)
	assert.Equal(t, "VOSS8K.8.2.0.0", resp.Snapshot.Primary)
	assert.Equal(t, "VOSS8K.8.1.0.0", resp.Snapshot.Backup)

	dev := srv.Device(simulate.DefaultDeviceName)
	st := dev.State()
	assert.Equal(t, 1, st.Boots)
	assert.Equal(t, 1, st.Saves)
	assert.Contains(t, dev.Commands(), "terminal more disable", "会话建立后关闭分页")
}
