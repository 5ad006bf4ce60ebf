package models

import "time"

// Notification is a student-facing event emitted on state changes.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	StaffName string    `db:"staff_name" json:"staff_name"`
	Action    string    `db:"action" json:"action"`
	Phase     string    `db:"phase" json:"phase"`
	Message   string    `db:"message" json:"message"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
