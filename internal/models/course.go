package models

import "time"

// DefaultCapacity applies when a course is created without one.
const DefaultCapacity = 20

// Course is an elective offered to one semester with a fixed number of seats.
type Course struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	Teacher       string    `db:"teacher" json:"teacher"`
	TeacherEmail  string    `db:"teacher_email" json:"teacher_email,omitempty"`
	Semester      int       `db:"semester" json:"semester"`
	Department    string    `db:"department" json:"department"`
	Capacity      int       `db:"capacity" json:"capacity"`
	SyllabusLink  string    `db:"syllabus_link" json:"syllabus_link,omitempty"`
	EnrolledCount int       `db:"enrolled_count" json:"enrolled_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Remaining returns the number of free seats.
func (c Course) Remaining() int {
	if c.EnrolledCount >= c.Capacity {
		return 0
	}
	return c.Capacity - c.EnrolledCount
}

// IsFull reports whether every seat is taken.
func (c Course) IsFull() bool {
	return c.EnrolledCount >= c.Capacity
}

// CourseFilter captures course listing criteria.
type CourseFilter struct {
	Semester   *int
	Department string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// CourseCount is a course's seat usage at a point in time.
type CourseCount struct {
	CourseID      string `db:"course_id" json:"course_id"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
	Capacity      int    `db:"capacity" json:"capacity"`
}

// RosterEntry is one enrolled student, ordered by enrollment.
type RosterEntry struct {
	Position   int       `db:"position" json:"position"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Name       string    `db:"name" json:"name"`
	RollNumber string    `db:"roll_number" json:"roll_number"`
	Year       int       `db:"year" json:"year"`
	Semester   int       `db:"semester" json:"semester"`
	Batch      string    `db:"batch" json:"batch"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// CreateCourseRequest is the admin payload for a new course.
type CreateCourseRequest struct {
	Name         string `json:"name" validate:"required"`
	Description  string `json:"description"`
	Teacher      string `json:"teacher" validate:"required"`
	TeacherEmail string `json:"teacher_email" validate:"omitempty,email"`
	Semester     int    `json:"semester" validate:"omitempty,min=1,max=4"`
	Department   string `json:"department"`
	Capacity     int    `json:"capacity" validate:"omitempty,min=1"`
	SyllabusLink string `json:"syllabus_link" validate:"omitempty,url"`
}

// UpdateCourseRequest is a partial update; nil fields keep their value.
type UpdateCourseRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1"`
	Description  *string `json:"description"`
	Teacher      *string `json:"teacher" validate:"omitempty,min=1"`
	TeacherEmail *string `json:"teacher_email" validate:"omitempty,email"`
	Semester     *int    `json:"semester" validate:"omitempty,min=1,max=4"`
	Department   *string `json:"department"`
	Capacity     *int    `json:"capacity" validate:"omitempty,min=1"`
	SyllabusLink *string `json:"syllabus_link" validate:"omitempty,url"`
}
