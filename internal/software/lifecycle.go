package software

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ActivateRequest 激活镜像
type ActivateRequest struct {
	Target    string
	Confirmed bool
}

// AddRequest 从闪存添加镜像包
type AddRequest struct {
	Filename  string
	Confirmed bool
}

// RemoveRequest 删除镜像
type RemoveRequest struct {
	Version   string
	Confirmed bool
}

// current 未传入快照时先查询一次
func (m *Manager) current(ctx context.Context, snap *InventorySnapshot) (*InventorySnapshot, error) {
	if snap != nil {
		return snap, nil
	}
	return m.Query(ctx)
}

// Activate 将目标版本设为下次启动版本
// 目标已是主用且无待生效版本，或已是下次启动版本时不发送命令
func (m *Manager) Activate(ctx context.Context, req ActivateRequest, snap *InventorySnapshot) (Outcome, error) {
	const op = "activate"
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return Outcome{}, &OpError{Op: op, Kind: KindInvalidRequest, Detail: "target version is empty"}
	}
	if !req.Confirmed {
		return Outcome{Skipped: true, Value: target, Snapshot: snap}, nil
	}
	snap, err := m.current(ctx, snap)
	if err != nil {
		return Outcome{}, err
	}
	if !snap.Contains(target) {
		return Outcome{}, &OpError{Op: op, Kind: KindUnknownImage, Detail: target}
	}

	log := m.log.WithFields(logrus.Fields{"op": op, "target": target})
	if snap.bootTargetIs(target) {
		log.Info("target already selected for boot, nothing to do")
		return Outcome{Changed: false, Value: target, Snapshot: snap}, nil
	}

	if _, err := runParsed(ctx, m, op, "software activate "+target, 0, check(ParseActivate)); err != nil {
		return Outcome{}, err
	}
	fresh, err := m.Query(ctx)
	if err != nil {
		return Outcome{}, withOp(op, err)
	}
	if !fresh.bootTargetIs(target) {
		return Outcome{}, &OpError{
			Op:     op,
			Kind:   KindPostconditionMismatch,
			Detail: fmt.Sprintf("%s is not selected for boot (primary=%q next_boot=%q)", target, fresh.Primary, fresh.NextBoot),
		}
	}
	log.Info("image activated for next boot")
	return Outcome{Changed: true, Value: target, Snapshot: fresh}, nil
}

// AddImage 从闪存中的镜像包解压安装新版本
func (m *Manager) AddImage(ctx context.Context, req AddRequest, snap *InventorySnapshot) (Outcome, error) {
	const op = "add"
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return Outcome{}, &OpError{Op: op, Kind: KindInvalidRequest, Detail: "image filename is empty"}
	}
	if !req.Confirmed {
		return Outcome{Skipped: true, Snapshot: snap}, nil
	}

	listing, err := m.run(ctx, op, "dir", 0)
	if err != nil {
		return Outcome{}, err
	}
	if !DirContains(listing, filename) {
		return Outcome{}, &OpError{Op: op, Kind: KindFileNotFound, Detail: filename}
	}

	log := m.log.WithFields(logrus.Fields{"op": op, "filename": filename})
	res, err := runParsed(ctx, m, op, "software add "+filename, m.opts.AddWait(), ParseAdd)
	if err != nil {
		return Outcome{}, err
	}

	if res.Pending != nil {
		// 版本已存在：拒绝覆盖
		if _, err := m.run(ctx, op, res.Pending.Reply, 0); err != nil {
			return Outcome{}, err
		}
		log.WithField("version", res.Version).Info("image version already installed, re-add declined")
		return Outcome{Changed: false, Value: res.Version, Snapshot: snap}, nil
	}

	fresh, err := m.Query(ctx)
	if err != nil {
		return Outcome{}, withOp(op, err)
	}
	if !fresh.Contains(res.Version) {
		return Outcome{}, &OpError{Op: op, Kind: KindPostconditionMismatch, Detail: res.Version + " not listed after extraction"}
	}
	log.WithField("version", res.Version).Info("image added")
	return Outcome{Changed: true, Value: res.Version, Snapshot: fresh}, nil
}

// RemoveImage 删除镜像；主用、备用、下次启动版本受保护
func (m *Manager) RemoveImage(ctx context.Context, req RemoveRequest, snap *InventorySnapshot) (Outcome, error) {
	const op = "remove"
	version := strings.TrimSpace(req.Version)
	if version == "" {
		return Outcome{}, &OpError{Op: op, Kind: KindInvalidRequest, Detail: "version is empty"}
	}
	if !req.Confirmed {
		return Outcome{Skipped: true, Value: version, Snapshot: snap}, nil
	}
	snap, err := m.current(ctx, snap)
	if err != nil {
		return Outcome{}, err
	}

	switch version {
	case snap.Primary:
		return Outcome{}, &OpError{Op: op, Kind: KindProtectedImage, Detail: version + " is the " + string(RolePrimary) + " image"}
	case snap.Backup:
		return Outcome{}, &OpError{Op: op, Kind: KindProtectedImage, Detail: version + " is the " + string(RoleBackup) + " image"}
	case snap.NextBoot:
		return Outcome{}, &OpError{Op: op, Kind: KindProtectedImage, Detail: version + " is the " + string(RoleNextBoot) + " image"}
	}
	if !snap.Contains(version) {
		return Outcome{}, &OpError{Op: op, Kind: KindUnknownImage, Detail: version}
	}

	if _, err := runParsed(ctx, m, op, "software remove "+version, 0, check(ParseRemove)); err != nil {
		return Outcome{}, err
	}
	fresh, err := m.Query(ctx)
	if err != nil {
		return Outcome{}, withOp(op, err)
	}
	if fresh.Contains(version) {
		return Outcome{}, &OpError{Op: op, Kind: KindPostconditionMismatch, Detail: version + " still listed after removal"}
	}
	m.log.WithFields(logrus.Fields{"op": op, "version": version}).Info("image removed")
	return Outcome{Changed: true, Value: version, Snapshot: fresh}, nil
}
