package model

import (
	"time"
)

// Task 一次调用方请求（生命周期、查询、保存配置或重启）
type Task struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Type       string    `json:"type" gorm:"type:varchar(32);not null;index"`
	DeviceIP   string    `json:"device_ip" gorm:"type:varchar(64);not null;index"`
	DevicePort int       `json:"device_port" gorm:"not null;default:22"`
	Username   string    `json:"username" gorm:"type:varchar(64);not null"`
	Request    string    `json:"request" gorm:"type:text"` // 已脱敏的请求 JSON
	Status     string    `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	Changed    bool      `json:"changed"`
	Version    string    `json:"version" gorm:"type:varchar(128)"`
	ErrorKind  string    `json:"error_kind" gorm:"type:varchar(32)"`
	ErrorMsg   string    `json:"error_msg" gorm:"type:text"`
	Message    string    `json:"message" gorm:"type:text"`
	Transcript string    `json:"transcript" gorm:"type:varchar(512)"` // 会话留档位置
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Duration   int64     `json:"duration"` // 执行时长，毫秒
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (Task) TableName() string {
	return "tasks"
}

// TaskStatus 任务状态枚举
const (
	TaskStatusRunning = "running"
	TaskStatusSuccess = "success"
	TaskStatusFailed  = "failed"
)

// TaskType 任务类型枚举
const (
	TaskTypeLifecycle  = "lifecycle"
	TaskTypeInventory  = "inventory"
	TaskTypeSaveConfig = "save_config"
	TaskTypeReboot     = "reboot"
)

// TaskLog 单次命令交互记录
type TaskLog struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID    string    `json:"task_id" gorm:"type:varchar(64);not null;index"`
	Seq       int       `json:"seq" gorm:"not null"`
	Command   string    `json:"command" gorm:"type:varchar(256);not null"`
	Output    string    `json:"output" gorm:"type:text"` // 回显摘要
	Error     string    `json:"error" gorm:"type:text"`
	Duration  int64     `json:"duration"` // 毫秒
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (TaskLog) TableName() string {
	return "task_logs"
}

// 快照阶段
const (
	PhaseBefore    = "before"
	PhaseAfter     = "after"
	PhaseRecovered = "recovered"
)

// SoftwareSnapshot 任务各阶段的镜像清单
type SoftwareSnapshot struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID    string    `json:"task_id" gorm:"type:varchar(64);not null;index"`
	Phase     string    `json:"phase" gorm:"type:varchar(16);not null"`
	Images    string    `json:"images" gorm:"type:text"` // JSON 数组
	Primary   string    `json:"primary" gorm:"column:primary_release;type:varchar(128)"`
	Backup    string    `json:"backup" gorm:"column:backup_release;type:varchar(128)"`
	NextBoot  string    `json:"next_boot" gorm:"column:next_boot_release;type:varchar(128)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (SoftwareSnapshot) TableName() string {
	return "software_snapshots"
}
