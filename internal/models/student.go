package models

import "time"

// Academic bounds.
const (
	MinSemester       = 1
	MaxSemester       = 4
	MinYear           = 1
	MaxYear           = 2
	DefaultDepartment = "MCA"
)

// Student is a learner who may hold at most one elective seat.
// SelectedCourseID mirrors the enrollment row and is written in the same transaction.
type Student struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	RollNumber       string    `db:"roll_number" json:"roll_number"`
	Year             int       `db:"year" json:"year"`
	Semester         int       `db:"semester" json:"semester"`
	Department       string    `db:"department" json:"department"`
	Batch            string    `db:"batch" json:"batch"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	SelectedCourseID *string   `db:"selected_course_id" json:"selected_course_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// HasSelection reports whether the student currently holds a seat.
func (s Student) HasSelection() bool {
	return s.SelectedCourseID != nil && *s.SelectedCourseID != ""
}

// StudentDetail adds the selected course name for admin listings.
type StudentDetail struct {
	Student
	SelectedCourseName *string `db:"selected_course_name" json:"selected_course_name,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Year      *int
	Semester  *int
	Batch     string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// YearForSemester derives the programme year from a semester (1-2 first year, 3-4 second).
func YearForSemester(semester int) int {
	if semester <= 2 {
		return 1
	}
	return 2
}

// CreateStudentRequest is the admin payload for a new student.
type CreateStudentRequest struct {
	Name       string `json:"name" validate:"required"`
	RollNumber string `json:"roll_number" validate:"required"`
	Year       int    `json:"year" validate:"omitempty,min=1,max=2"`
	Semester   int    `json:"semester" validate:"omitempty,min=1,max=4"`
	Department string `json:"department"`
	Batch      string `json:"batch"`
	Password   string `json:"password"`
}

// UpdateStudentRequest is a partial update; nil fields keep their value.
type UpdateStudentRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=1"`
	RollNumber *string `json:"roll_number" validate:"omitempty,min=1"`
	Year       *int    `json:"year" validate:"omitempty,min=1,max=2"`
	Semester   *int    `json:"semester" validate:"omitempty,min=1,max=4"`
	Department *string `json:"department"`
	Batch      *string `json:"batch"`
	Password   *string `json:"password" validate:"omitempty,min=1"`
}

// ImportReport summarises a bulk student import.
type ImportReport struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}
