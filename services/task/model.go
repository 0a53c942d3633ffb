package task

import (
	"time"

	"gorm.io/datatypes"
)

const (
	JobPending = "pending"
	JobRunning = "running"
	JobSuccess = "success"
	JobFailed  = "failed"
)

// Job is an execution record of a sweep for one org.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey"`
	Kind        string         `gorm:"column:kind;type:varchar(50);index;not null"`
	OrgID       string         `gorm:"column:org_id;index;not null"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'pending'"` // pending|running|success|failed
	ErrorMsg    string         `gorm:"column:error_msg;type:text"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
}

func (Job) TableName() string { return "jobs" }
