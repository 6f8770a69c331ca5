package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vspimagectl/vspimagectl/internal/config"
	"github.com/vspimagectl/vspimagectl/internal/model"
	"github.com/vspimagectl/vspimagectl/internal/software"
	"github.com/vspimagectl/vspimagectl/pkg/logger"
)

// LifecycleService 校验请求、按设备串行化、编排各操作并记录任务
type LifecycleService struct {
	cfg     *config.Config
	factory SessionFactory
	locks   *DeviceLocks
	store   *TaskStore
	writer  StorageWriter
}

// NewLifecycleService store、writer 可为 nil（不记录历史/不留档）
func NewLifecycleService(cfg *config.Config, factory SessionFactory, store *TaskStore, writer StorageWriter) *LifecycleService {
	return &LifecycleService{
		cfg:     cfg,
		factory: factory,
		locks:   NewDeviceLocks(),
		store:   store,
		writer:  writer,
	}
}

// execution 单个任务的运行上下文
type execution struct {
	svc     *LifecycleService
	conn    ConnectionRequest
	task    *model.Task
	resp    *LifecycleResponse
	log     *logrus.Entry
	rec     *transcript
	mgr     *software.Manager
	session software.Session
}

// step 执行一个步骤并记录到响应
func (x *execution) step(name string, fn func() (software.Outcome, error)) (software.Outcome, error) {
	start := time.Now()
	out, err := fn()
	st := Step{Name: name, Changed: out.Changed, Skipped: out.Skipped, Value: out.Value, DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		st.Error = err.Error()
	}
	if out.Skipped {
		x.log.WithField("step", name).Info("step skipped, not confirmed")
	}
	x.resp.Steps = append(x.resp.Steps, st)
	if out.Changed {
		x.resp.Changed = true
	}
	return out, err
}

// snapshot 记录阶段快照
func (x *execution) snapshot(phase string, snap *software.InventorySnapshot) {
	if snap != nil {
		x.resp.Snapshot = snap
	}
	if x.svc.store == nil {
		return
	}
	if err := x.svc.store.AddSnapshot(x.task.ID, phase, snap); err != nil {
		x.log.WithError(err).Warn("failed to persist snapshot")
	}
}

// reconnector 重启后用同样的连接参数重新打开会话
func (x *execution) reconnector() software.Reconnector {
	return software.ReconnectFunc(func(ctx context.Context) (software.Session, error) {
		return x.svc.factory.Open(ctx, x.conn)
	})
}

// swap 重启后切换到新会话；nil 表示设备已断开
func (x *execution) swap(sess software.Session) {
	x.session = sess
	if sess != nil {
		x.mgr = x.mgr.WithSession(sess)
	}
}

// execute 公共流程：校验、占用设备、登记任务、开会话、执行、收尾
func (s *LifecycleService) execute(ctx context.Context, taskType string, conn ConnectionRequest, request interface{},
	body func(ctx context.Context, x *execution) error) (*LifecycleResponse, error) {

	start := time.Now()
	conn.Normalize()
	x := &execution{
		svc:  s,
		conn: conn,
		resp: &LifecycleResponse{TaskID: uuid.New().String()},
		log:  logger.ForDevice(conn.Host, taskType),
	}
	x.log = x.log.WithField("task_id", x.resp.TaskID)
	x.task = &model.Task{
		ID:         x.resp.TaskID,
		Type:       taskType,
		DeviceIP:   conn.Host,
		DevicePort: conn.Port,
		Username:   conn.Username,
		Request:    redact(request),
		Status:     model.TaskStatusRunning,
		StartTime:  start,
	}
	x.rec = newTranscript(x.task.ID, s.store, x.log)

	err := s.run(ctx, x, body)
	s.finish(ctx, x, start, err)
	return x.resp, err
}

func (s *LifecycleService) run(ctx context.Context, x *execution, body func(ctx context.Context, x *execution) error) error {
	if err := x.conn.Validate(); err != nil {
		return err
	}
	release, ok := s.locks.TryAcquire(x.conn.Key())
	if !ok {
		return &software.OpError{Op: "acquire", Kind: software.KindDeviceBusy, Detail: x.conn.Key() + " already has a request in flight"}
	}
	defer release()

	if s.store != nil {
		if err := s.store.Create(x.task); err != nil {
			x.log.WithError(err).Warn("failed to persist task")
		}
	}

	x.log.Info("opening device session")
	sess, err := s.factory.Open(ctx, x.conn)
	if err != nil {
		return &software.OpError{Op: "connect", Kind: software.KindConnectFailure, Detail: x.conn.Key(), Err: err}
	}
	x.session = sess
	x.mgr = software.NewManager(sess, s.cfg.SoftwareOptions(), x.log, x.rec)
	defer func() {
		if x.session != nil {
			if cerr := x.session.Close(); cerr != nil {
				x.log.WithError(cerr).Debug("session close")
			}
		}
	}()

	return body(ctx, x)
}

// finish 填充响应、更新任务、写留档
func (s *LifecycleService) finish(ctx context.Context, x *execution, start time.Time, err error) {
	resp := x.resp
	resp.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		resp.Failed = true
		resp.Msg = err.Error()
		resp.ErrorKind = string(software.KindOf(err))
		x.log.WithError(err).Error("task failed")
	} else if resp.Msg == "" {
		resp.Msg = "ok"
	}

	// 设备忙或参数错误时没有登记任务
	if kind := software.KindOf(err); kind == software.KindDeviceBusy || kind == software.KindInvalidRequest {
		return
	}

	if s.writer != nil && x.rec.String() != "" {
		obj, werr := s.writer.Write(ctx, StorageMeta{TaskID: x.task.ID, TaskType: x.task.Type, DeviceIP: x.task.DeviceIP, Started: start}, x.rec.String())
		if obj.URI != "" {
			resp.Transcript = obj.URI
		}
		if werr != nil {
			resp.Warnings = append(resp.Warnings, "transcript: "+werr.Error())
		}
	}

	if s.store == nil {
		return
	}
	x.task.Status = model.TaskStatusSuccess
	if resp.Failed {
		x.task.Status = model.TaskStatusFailed
		x.task.ErrorKind = resp.ErrorKind
		x.task.ErrorMsg = resp.Msg
	}
	x.task.Changed = resp.Changed
	x.task.Version = resp.Version
	x.task.Message = resp.Msg
	x.task.Transcript = resp.Transcript
	x.task.EndTime = time.Now()
	x.task.Duration = resp.DurationMS
	if serr := s.store.Finish(x.task); serr != nil {
		x.log.WithError(serr).Warn("failed to update task")
	}
}

// Run 按顺序执行：删除、添加、激活、保存配置、重启
func (s *LifecycleService) Run(ctx context.Context, req LifecycleRequest) (*LifecycleResponse, error) {
	return s.execute(ctx, model.TaskTypeLifecycle, req.ConnectionRequest, req, func(ctx context.Context, x *execution) error {
		before, err := x.mgr.Query(ctx)
		if err != nil {
			return err
		}
		x.snapshot(model.PhaseBefore, before)
		cur := before
		target := strings.TrimSpace(req.NewImageVersion)

		if v := strings.TrimSpace(req.DelImageVersion); v != "" {
			out, err := x.step("remove", func() (software.Outcome, error) {
				return x.mgr.RemoveImage(ctx, software.RemoveRequest{Version: v, Confirmed: req.UploadImageConfirm}, cur)
			})
			if err != nil {
				return err
			}
			if out.Snapshot != nil {
				cur = out.Snapshot
			}
		}

		if f := strings.TrimSpace(req.NewImageFilename); f != "" {
			if req.FTPServerIP != "" || req.FTPServerDirectory != "" {
				// 暂不支持 FTP 上传，镜像包须已在闪存中
				x.log.WithFields(logrus.Fields{"ftp_server_ip": req.FTPServerIP, "ftp_server_directory": req.FTPServerDirectory}).
					Warn("ftp upload is not supported; expecting archive already in flash")
			}
			out, err := x.step("add", func() (software.Outcome, error) {
				return x.mgr.AddImage(ctx, software.AddRequest{Filename: f, Confirmed: req.UploadImageConfirm}, cur)
			})
			if err != nil {
				return err
			}
			if out.Snapshot != nil {
				cur = out.Snapshot
			}
			if target == "" && out.Value != "" {
				target = out.Value
			}
		}
		x.resp.Version = target

		if target != "" {
			out, err := x.step("activate", func() (software.Outcome, error) {
				return x.mgr.Activate(ctx, software.ActivateRequest{Target: target, Confirmed: req.ActivateImageConfirm}, cur)
			})
			if err != nil {
				return err
			}
			if out.Snapshot != nil {
				cur = out.Snapshot
			}
		}

		if x.resp.Changed {
			x.snapshot(model.PhaseAfter, cur)
			if _, err := x.step("save_config", func() (software.Outcome, error) { return x.mgr.SaveConfig(ctx) }); err != nil {
				// 保存失败不终止流程，但不能认为配置已持久化
				x.resp.Warnings = append(x.resp.Warnings, "configuration not saved: "+err.Error())
				x.log.WithError(err).Warn("save config failed")
			}
		}
		x.resp.Snapshot = cur

		if !req.RebootImageConfirm {
			x.resp.Msg = summarize(x.resp)
			return nil
		}
		if err := s.reboot(ctx, x, req.WaitForSuccessConfirm); err != nil {
			return err
		}
		if req.WaitForSuccessConfirm && target != "" && x.resp.Snapshot.Primary != target {
			return &software.OpError{
				Op:     "reboot",
				Kind:   software.KindPostconditionMismatch,
				Detail: fmt.Sprintf("device booted %q, expected %q", x.resp.Snapshot.Primary, target),
			}
		}
		x.resp.Msg = summarize(x.resp)
		return nil
	})
}

// reboot 重启并在需要时等待恢复、重新查询
func (s *LifecycleService) reboot(ctx context.Context, x *execution, wait bool) error {
	start := time.Now()
	sess, err := x.mgr.Reboot(ctx, wait, x.reconnector())
	st := Step{Name: "reboot", Changed: err == nil, DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		st.Error = err.Error()
		x.resp.Steps = append(x.resp.Steps, st)
		return err
	}
	x.resp.Steps = append(x.resp.Steps, st)
	x.resp.Changed = true
	// 旧会话已在 Reboot 中关闭
	x.swap(sess)
	if sess == nil {
		return nil
	}
	recovered, err := x.mgr.Query(ctx)
	if err != nil {
		return err
	}
	x.snapshot(model.PhaseRecovered, recovered)
	return nil
}

// Inventory 只读查询
func (s *LifecycleService) Inventory(ctx context.Context, conn ConnectionRequest) (*LifecycleResponse, error) {
	return s.execute(ctx, model.TaskTypeInventory, conn, conn, func(ctx context.Context, x *execution) error {
		snap, err := x.mgr.Query(ctx)
		if err != nil {
			return err
		}
		x.snapshot(model.PhaseBefore, snap)
		x.resp.Version = snap.Primary
		x.resp.Msg = fmt.Sprintf("%d images, primary %s", len(snap.Images), snap.Primary)
		return nil
	})
}

// SaveConfig 单独保存配置
func (s *LifecycleService) SaveConfig(ctx context.Context, conn ConnectionRequest) (*LifecycleResponse, error) {
	return s.execute(ctx, model.TaskTypeSaveConfig, conn, conn, func(ctx context.Context, x *execution) error {
		_, err := x.step("save_config", func() (software.Outcome, error) { return x.mgr.SaveConfig(ctx) })
		if err != nil {
			return err
		}
		x.resp.Msg = "configuration saved"
		return nil
	})
}

// Reboot 单独重启
func (s *LifecycleService) Reboot(ctx context.Context, req RebootRequest) (*LifecycleResponse, error) {
	return s.execute(ctx, model.TaskTypeReboot, req.ConnectionRequest, req, func(ctx context.Context, x *execution) error {
		if err := s.reboot(ctx, x, req.Wait); err != nil {
			return err
		}
		if req.Wait {
			x.resp.Msg = "device rebooted and reachable"
		} else {
			x.resp.Msg = "reboot issued"
		}
		return nil
	})
}

// GetTask 查询任务历史
func (s *LifecycleService) GetTask(ctx context.Context, taskID string) (*TaskDetail, error) {
	if s.store == nil {
		return nil, errors.New("task history disabled")
	}
	return s.store.Get(taskID)
}

// summarize 生成 msg 文本
func summarize(resp *LifecycleResponse) string {
	if !resp.Changed {
		return "no change required"
	}
	var done []string
	for _, st := range resp.Steps {
		if st.Changed {
			done = append(done, st.Name)
		}
	}
	msg := "completed: " + strings.Join(done, ", ")
	if resp.Version != "" {
		msg += "; version " + resp.Version
	}
	return msg
}
