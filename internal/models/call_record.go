package models

import "time"

// CallRecord is the persisted history row for a call.
type CallRecord struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Version         uint64     `gorm:"not null;default:0" json:"version"`
	VisitorConnID   string     `gorm:"type:varchar(64);not null;index" json:"visitor_conn_id"`
	VisitorName     string     `gorm:"type:varchar(120)" json:"visitor_name"`
	VisitorEmail    string     `gorm:"type:varchar(255);index" json:"visitor_email"`
	StaffConnID     string     `gorm:"type:varchar(64);index" json:"staff_conn_id,omitempty"`
	StaffUserID     string     `gorm:"type:varchar(64);index" json:"staff_user_id,omitempty"`
	StaffName       string     `gorm:"type:varchar(120)" json:"staff_name,omitempty"`
	StaffDepartment string     `gorm:"type:varchar(120)" json:"staff_department,omitempty"`
	Purpose         string     `gorm:"type:varchar(200);not null" json:"purpose"`
	Description     string     `gorm:"type:text" json:"description,omitempty"`
	Status          string     `gorm:"type:varchar(16);not null;index" json:"status"`
	Decision        string     `gorm:"type:varchar(16)" json:"decision,omitempty"`
	Notes           string     `gorm:"type:text" json:"notes,omitempty"`
	EndReason       string     `gorm:"type:varchar(64)" json:"end_reason,omitempty"`
	DurationMillis  int64      `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt       time.Time  `gorm:"not null;index" json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `gorm:"index" json:"ended_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName pins the table name independent of the struct name.
func (CallRecord) TableName() string {
	return "calls"
}
