package org

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	Active    Status = "active"
	Suspended Status = "suspended"
)

// Org is a tenant. Code is the uppercase prefix carried by its ticket codes and order
// numbers.
type Org struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	Slug        string         `gorm:"column:slug;uniqueIndex;not null" json:"slug"`
	Code        string         `gorm:"column:code;type:varchar(8);uniqueIndex;not null" json:"code"`
	RepSettings datatypes.JSON `gorm:"column:rep_settings" json:"rep_settings,omitempty"`
	Status      Status         `gorm:"column:status;type:varchar(20);default:'active'" json:"status"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Org) TableName() string { return "orgs" }

type CreateOrgRequest struct {
	Name string `json:"name" binding:"required,max=120"`
	Slug string `json:"slug" binding:"omitempty,max=64"`
	Code string `json:"code" binding:"omitempty,max=8"`
}
