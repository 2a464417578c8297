package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CourseStatus string

const (
	CoursePublished CourseStatus = "published"
	CourseDraft     CourseStatus = "draft"
	CourseArchived  CourseStatus = "archived"
)

type Course struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Slug             string          `json:"slug"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	Status           CourseStatus    `json:"status"`
	IsFree           bool            `json:"is_free"`
	TotalEnrollments int64           `json:"total_enrollments"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Purchasable reports whether a paid checkout may be opened for the course.
func (c Course) Purchasable() bool {
	return c.Status == CoursePublished && !c.IsFree
}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentSuspended EnrollmentStatus = "suspended"
)

// Enrollment links a student to a course. At most one active enrollment may
// exist per (student, course); the store enforces this with a unique index.
type Enrollment struct {
	ID        string           `json:"id"`
	StudentID string           `json:"student_id"`
	CourseID  string           `json:"course_id"`
	Status    EnrollmentStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}
