package models

// EnrollmentRef links an enrollment row and the student's back-reference.
type EnrollmentRef struct {
	StudentID        string  `db:"student_id" json:"student_id"`
	CourseID         *string `db:"course_id" json:"course_id,omitempty"`
	SelectedCourseID *string `db:"selected_course_id" json:"selected_course_id,omitempty"`
	StudentSemester  int     `db:"student_semester" json:"student_semester"`
	CourseSemester   *int    `db:"course_semester" json:"course_semester,omitempty"`
}

// ReconcileReport lists inconsistencies between enrollments and back-references.
type ReconcileReport struct {
	DryRun              bool            `json:"dry_run"`
	DanglingEnrollments []EnrollmentRef `json:"dangling_enrollments"`
	DanglingReferences  []EnrollmentRef `json:"dangling_references"`
	OverCapacity        []CourseCount   `json:"over_capacity"`
	ReferencesRestored  int             `json:"references_restored"`
	EnrollmentsRemoved  int             `json:"enrollments_removed"`
	ReferencesCleared   int             `json:"references_cleared"`
}
