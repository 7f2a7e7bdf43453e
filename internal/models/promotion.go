package models

// NextPosition returns the position after semester. Past the final semester the
// student is graduated and keeps the current position.
func NextPosition(semester int) (nextSemester, year int, graduated bool) {
	next := semester + 1
	if next > MaxSemester {
		return semester, YearForSemester(semester), true
	}
	return next, YearForSemester(next), false
}

// SetSemesterRequest moves every student of a batch to a semester.
type SetSemesterRequest struct {
	Batch    string `json:"batch" validate:"required"`
	Semester int    `json:"semester" validate:"required,min=1,max=4"`
	Year     *int   `json:"year,omitempty" validate:"omitempty,min=1,max=2"`
}

// PromoteBatchRequest advances a batch by one semester.
type PromoteBatchRequest struct {
	Batch string `json:"batch" validate:"required"`
}

// PromotionResult summarises a batch transition.
type PromotionResult struct {
	Batch          string        `json:"batch"`
	ModifiedCount  int           `json:"modified_count"`
	PromotedCount  int           `json:"promoted_count"`
	GraduatedCount int           `json:"graduated_count"`
	DetachedCount  int           `json:"detached_count"`
	Courses        []CourseCount `json:"affected_courses,omitempty"`
}
