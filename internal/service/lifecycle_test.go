package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vspimagectl/vspimagectl/internal/config"
	"github.com/vspimagectl/vspimagectl/internal/database"
	"github.com/vspimagectl/vspimagectl/internal/model"
	"github.com/vspimagectl/vspimagectl/internal/software"
	"github.com/vspimagectl/vspimagectl/simulate"
)

// deviceFactory 直接连接进程内模拟设备
type deviceFactory struct {
	mu    sync.Mutex
	dev   *simulate.Device
	fail  error
	opens int
}

func (f *deviceFactory) Open(ctx context.Context, conn ConnectionRequest) (software.Session, error) {
	f.mu.Lock()
	f.opens++
	f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	sess, err := f.dev.Open()
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Software: config.SoftwareConfig{
			Platform: "avaya_vsp",
			Reboot:   config.RebootConfig{Attempts: 3, Interval: time.Millisecond},
		},
		Transcript: config.TranscriptConfig{Backend: "none"},
	}
}

func labDevice() *simulate.Device {
	return simulate.NewDevice(simulate.DeviceConfig{
		Hostname: "VSP-LAB",
		Images:   []string{"A.1", "B.2", "C.3"},
		Primary:  "B.2",
		Backup:   "A.1",
		Flash:    []string{"D.4.tgz", "B.2.tgz"},
	})
}

func conn() ConnectionRequest {
	return ConnectionRequest{Host: "192.0.2.10", Username: "rwa", Password: "rwa"}
}

func newTestService(t *testing.T, dev *simulate.Device) (*LifecycleService, *deviceFactory) {
	t.Helper()
	f := &deviceFactory{dev: dev}
	return NewLifecycleService(testConfig(), f, nil, nil), f
}

func stepNames(resp *LifecycleResponse) []string {
	var names []string
	for _, st := range resp.Steps {
		names = append(names, st.Name)
	}
	return names
}

func hasCommand(dev *simulate.Device, prefix string) bool {
	for _, c := range dev.Commands() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func TestRunFullLifecycle(t *testing.T) {
	dev := labDevice()
	svc, f := newTestService(t, dev)

	resp, err := svc.Run(context.Background(), LifecycleRequest{
		ConnectionRequest:     conn(),
		NewImageFilename:      "D.4.tgz",
		DelImageVersion:       "C.3",
		UploadImageConfirm:    true,
		ActivateImageConfirm:  true,
		RebootImageConfirm:    true,
		WaitForSuccessConfirm: true,
	})
	require.NoError(t, err)
	assert.True(t, resp.Changed)
	assert.False(t, resp.Failed)
	assert.Equal(t, "D.4", resp.Version, "目标版本取自解压结果")
	assert.Equal(t, []string{"remove", "add", "activate", "save_config", "reboot"}, stepNames(resp))
	require.NotNil(t, resp.Snapshot)
	assert.Equal(t, "D.4", resp.Snapshot.Primary, "重启后快照来自新会话")
	assert.Equal(t, 2, f.opens, "初始连接加一次重连")

	st := dev.State()
	assert.Equal(t, "D.4", st.Primary)
	assert.Equal(t, "B.2", st.Backup)
	assert.NotContains(t, st.Images, "C.3")
	assert.Equal(t, 1, st.Saves)
	assert.Equal(t, 1, st.Boots)
	assert.NotEmpty(t, resp.TaskID)
}

func TestRunAlreadyActiveIsNoop(t *testing.T) {
	dev := labDevice()
	svc, _ := newTestService(t, dev)

	resp, err := svc.Run(context.Background(), LifecycleRequest{
		ConnectionRequest:    conn(),
		NewImageVersion:      "B.2",
		ActivateImageConfirm: true,
	})
	require.NoError(t, err)
	assert.False(t, resp.Changed)
	assert.Equal(t, "no change required", resp.Msg)
	assert.Equal(t, []string{"show software"}, dev.Commands(), "无变更时只查询")
}

func TestRunUnconfirmedSkipsUpload(t *testing.T) {
	dev := labDevice()
	svc, _ := newTestService(t, dev)

	resp, err := svc.Run(context.Background(), LifecycleRequest{
		ConnectionRequest:    conn(),
		NewImageFilename:     "D.4.tgz",
		ActivateImageConfirm: true,
	})
	require.NoError(t, err)
	assert.False(t, resp.Changed)
	require.Len(t, resp.Steps, 1)
	assert.True(t, resp.Steps[0].Skipped)
	assert.False(t, hasCommand(dev, "software add"), "未确认不发送 software add")
	assert.False(t, hasCommand(dev, "software activate"))
}

func TestRunExistingImageDeclinesOverwrite(t *testing.T) {
	dev := labDevice()
	svc, _ := newTestService(t, dev)

	resp, err := svc.Run(context.Background(), LifecycleRequest{
		ConnectionRequest:  conn(),
		NewImageFilename:   "B.2.tgz",
		UploadImageConfirm: true,
	})
	require.NoError(t, err)
	assert.False(t, resp.Changed)
	assert.Equal(t, "B.2", resp.Version)
	assert.Contains(t, dev.Commands(), "n", "对覆盖提示回答 n")
	assert.Equal(t, []string{"A.1", "B.2", "C.3"}, dev.State().Images)
}

func TestRunProtectedRemoveFails(t *testing.T) {
	dev := labDevice()
	svc, _ := newTestService(t, dev)

	resp, err := svc.Run(context.Background(), LifecycleRequest{
		ConnectionRequest:  conn(),
		DelImageVersion:    "B.2",
		UploadImageConfirm: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, software.ErrProtectedImage))
	assert.True(t, resp.Failed)
	assert.Equal(t, string(software.KindProtectedImage), resp.ErrorKind)
	assert.False(t, hasCommand(dev, "software remove"), "受保护镜像不发送删除命令")
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	svc, f := newTestService(t, labDevice())

	req := LifecycleRequest{ConnectionRequest: ConnectionRequest{Host: "192.0.2.10", Username: "rwa"}}
	resp, err := svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, software.ErrInvalidRequest))
	assert.Contains(t, resp.Msg, "password")
	assert.Zero(t, f.opens, "参数错误不连接设备")
}

func TestRunDeviceBusy(t *testing.T) {
	svc, f := newTestService(t, labDevice())
	c := conn()
	c.Normalize()
	release, ok := svc.locks.TryAcquire(c.Key())
	require.True(t, ok)
	defer release()

	resp, err := svc.Inventory(context.Background(), conn())
	require.Error(t, err)
	assert.Equal(t, string(software.KindDeviceBusy), resp.ErrorKind)
	assert.Zero(t, f.opens)
}

func TestRunConnectFailure(t *testing.T) {
	svc, f := newTestService(t, labDevice())
	f.fail = errors.New("dial tcp 192.0.2.10:22: i/o timeout")

	resp, err := svc.Inventory(context.Background(), conn())
	require.Error(t, err)
	assert.True(t, errors.Is(err, software.ErrConnectFailure))
	assert.Equal(t, "connect_failure", resp.ErrorKind)
	assert.Contains(t, resp.Msg, "i/o timeout")
}

func TestRebootWithoutWait(t *testing.T) {
	dev := labDevice()
	dev.Activate("C.3")
	svc, f := newTestService(t, dev)

	resp, err := svc.Reboot(context.Background(), RebootRequest{ConnectionRequest: conn()})
	require.NoError(t, err)
	assert.True(t, resp.Changed)
	assert.Equal(t, "reboot issued", resp.Msg)
	assert.Equal(t, 1, f.opens, "不等待时不重连")
	assert.Equal(t, "C.3", dev.State().Primary)
}

func TestRebootReconnectExhausted(t *testing.T) {
	dev := simulate.NewDevice(simulate.DeviceConfig{
		Images:   []string{"A.1"},
		Primary:  "A.1",
		DownTime: time.Hour,
	})
	svc, f := newTestService(t, dev)

	resp, err := svc.Reboot(context.Background(), RebootRequest{ConnectionRequest: conn(), Wait: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, software.ErrReconnectExhausted))
	assert.True(t, resp.Failed)
	assert.Equal(t, 4, f.opens, "初始连接加三次重连")
}

func TestInventoryAndTaskHistory(t *testing.T) {
	dir := t.TempDir()
	db, err := database.Open(config.SQLiteConfig{Path: filepath.Join(dir, "tasks.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := testConfig()
	cfg.Transcript = config.TranscriptConfig{
		Backend: "local",
		Prefix:  "transcripts",
		Local:   config.LocalTranscriptConfig{BaseDir: dir, MkdirIfMissing: true},
	}
	dev := labDevice()
	svc := NewLifecycleService(cfg, &deviceFactory{dev: dev}, NewTaskStore(db), NewStorageWriter(cfg))

	resp, err := svc.Inventory(context.Background(), conn())
	require.NoError(t, err)
	assert.Equal(t, "B.2", resp.Version)
	assert.Equal(t, []string{"A.1", "B.2", "C.3"}, resp.Snapshot.IDs())
	require.True(t, strings.HasPrefix(resp.Transcript, "file://"))

	content, err := os.ReadFile(strings.TrimPrefix(resp.Transcript, "file://"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "show software")

	detail, err := svc.GetTask(context.Background(), resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSuccess, detail.Task.Status)
	assert.Equal(t, model.TaskTypeInventory, detail.Task.Type)
	assert.Contains(t, detail.Task.Request, `"password":"******"`, "密码已脱敏")
	require.Len(t, detail.Logs, 1)
	assert.Equal(t, "show software", detail.Logs[0].Command)
	require.Len(t, detail.Snapshots, 1)
	assert.Equal(t, model.PhaseBefore, detail.Snapshots[0].Phase)
	assert.Equal(t, "B.2", detail.Snapshots[0].Primary)

	_, err = svc.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
