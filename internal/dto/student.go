package dto

import "github.com/noah-isme/elective-api/internal/models"

// StudentProfile is returned to a signed-in student.
type StudentProfile struct {
	models.StudentDetail
	SelectedCourse *models.Course `json:"selected_course,omitempty"`
}

// ImportResponse summarises a bulk student upload.
type ImportResponse struct {
	Message string               `json:"message"`
	Report  *models.ImportReport `json:"report"`
}

// BatchList lists the known batch tags.
type BatchList struct {
	Batches []string `json:"batches"`
}
