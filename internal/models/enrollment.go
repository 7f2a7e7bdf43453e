package models

// SeatClaim is the committed outcome of a successful selection.
type SeatClaim struct {
	Course        Course
	EnrolledCount int
	// OutboxID is set when this claim took the last seat.
	OutboxID *string
}

// Filled reports whether the claim moved the course to full.
func (c SeatClaim) Filled() bool {
	return c.OutboxID != nil
}

// SelectionResult is returned to the student after selecting a course.
type SelectionResult struct {
	CourseID      string `json:"course_id"`
	CourseName    string `json:"course_name"`
	EnrolledCount int    `json:"enrolled_count"`
	Capacity      int    `json:"capacity"`
	Remaining     int    `json:"remaining"`
}
