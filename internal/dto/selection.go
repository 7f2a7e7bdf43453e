package dto

import "github.com/noah-isme/elective-api/internal/models"

// SelectionResponse confirms a successful course selection.
type SelectionResponse struct {
	Message   string                  `json:"message"`
	Selection *models.SelectionResult `json:"selection"`
}

// RosterResponse is a course together with its ordered roster.
type RosterResponse struct {
	Course   *models.Course       `json:"course"`
	Students []models.RosterEntry `json:"students"`
}
