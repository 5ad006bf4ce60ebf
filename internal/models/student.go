package models

import "time"

// Student is a learner account that can file clearance and document requests.
type Student struct {
	ID           string    `db:"id" json:"id"`
	StudentNo    string    `db:"student_no" json:"student_no"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	CourseCode   string    `db:"course_code" json:"course_code"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	OTPVerified  bool      `db:"otp_verified" json:"otp_verified"`
	Signature    *string   `db:"signature" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StaffStatus tracks admin approval of a staff account.
type StaffStatus string

const (
	StaffPending  StaffStatus = "Pending"
	StaffApproved StaffStatus = "Approved"
	StaffRejected StaffStatus = "Rejected"
)

// Staff is an office signatory, registrar or administrator account.
type Staff struct {
	ID           string      `db:"id" json:"id"`
	FullName     string      `db:"full_name" json:"full_name"`
	Email        string      `db:"email" json:"email"`
	PasswordHash string      `db:"password_hash" json:"-"`
	Office       string      `db:"office" json:"office"`
	Role         UserRole    `db:"role" json:"role"`
	Status       StaffStatus `db:"status" json:"status"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}
