package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vspimagectl/vspimagectl/internal/database"
	"github.com/vspimagectl/vspimagectl/internal/model"
	"github.com/vspimagectl/vspimagectl/internal/software"
)

// ErrTaskNotFound 任务不存在
var ErrTaskNotFound = errors.New("task not found")

// TaskStore 任务历史（SQLite）
type TaskStore struct {
	db *gorm.DB
}

// NewTaskStore 基于 gorm 连接创建任务存储
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// TaskDetail 任务及其命令记录与快照
type TaskDetail struct {
	Task      model.Task               `json:"task"`
	Logs      []model.TaskLog          `json:"logs"`
	Snapshots []model.SoftwareSnapshot `json:"snapshots"`
}

func (s *TaskStore) write(fn func(*gorm.DB) error) error {
	return database.WithRetry(s.db, fn, 5, 50*time.Millisecond)
}

// Create 登记新任务
func (s *TaskStore) Create(task *model.Task) error {
	return s.write(func(db *gorm.DB) error { return db.Create(task).Error })
}

// Finish 更新任务最终状态
func (s *TaskStore) Finish(task *model.Task) error {
	return s.write(func(db *gorm.DB) error {
		return db.Model(&model.Task{}).Where("id = ?", task.ID).Updates(map[string]interface{}{
			"status":     task.Status,
			"changed":    task.Changed,
			"version":    task.Version,
			"error_kind": task.ErrorKind,
			"error_msg":  task.ErrorMsg,
			"message":    task.Message,
			"transcript": task.Transcript,
			"end_time":   task.EndTime,
			"duration":   task.Duration,
		}).Error
	})
}

// AddLog 记录一次命令交互
func (s *TaskStore) AddLog(entry *model.TaskLog) error {
	return s.write(func(db *gorm.DB) error { return db.Create(entry).Error })
}

// AddSnapshot 记录某阶段的镜像清单
func (s *TaskStore) AddSnapshot(taskID, phase string, snap *software.InventorySnapshot) error {
	if snap == nil {
		return nil
	}
	images, err := json.Marshal(snap.Images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	row := &model.SoftwareSnapshot{
		TaskID:   taskID,
		Phase:    phase,
		Images:   string(images),
		Primary:  snap.Primary,
		Backup:   snap.Backup,
		NextBoot: snap.NextBoot,
	}
	return s.write(func(db *gorm.DB) error { return db.Create(row).Error })
}

// Get 查询任务详情
func (s *TaskStore) Get(taskID string) (*TaskDetail, error) {
	var detail TaskDetail
	if err := s.db.First(&detail.Task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if err := s.db.Where("task_id = ?", taskID).Order("seq asc").Find(&detail.Logs).Error; err != nil {
		return nil, err
	}
	if err := s.db.Where("task_id = ?", taskID).Order("id asc").Find(&detail.Snapshots).Error; err != nil {
		return nil, err
	}
	return &detail, nil
}
