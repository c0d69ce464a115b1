package models

import "time"

// ProgramType enumerates the supported program categories.
type ProgramType string

const (
	ProgramTypeIndustrialTraining ProgramType = "IT"
	ProgramTypeNationalService    ProgramType = "NYSC"
)

// ValidProgramType reports whether the value is a known program type.
func ValidProgramType(t ProgramType) bool {
	return t == ProgramTypeIndustrialTraining || t == ProgramTypeNationalService
}

// Program is an internship or national-service offering.
type Program struct {
	ID                  string      `db:"id" json:"id"`
	Name                string      `db:"name" json:"name"`
	ProgramType         ProgramType `db:"program_type" json:"program_type"`
	Description         string      `db:"description" json:"description"`
	DurationMonths      int         `db:"duration_months" json:"duration_months"`
	StartDate           time.Time   `db:"start_date" json:"start_date"`
	EndDate             time.Time   `db:"end_date" json:"end_date"`
	ApplicationDeadline time.Time   `db:"application_deadline" json:"application_deadline"`
	IsActive            bool        `db:"is_active" json:"is_active"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
}

// ProgramFilter captures listing criteria for programs.
type ProgramFilter struct {
	Type       *ProgramType
	ActiveOnly bool
	Search     string
	SortBy     string
	SortOrder  string
	Page       int
	PageSize   int
}
