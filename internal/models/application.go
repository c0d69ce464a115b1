package models

import "time"

// ApplicationStatus enumerates review states of an application.
type ApplicationStatus string

const (
	StatusPending     ApplicationStatus = "pending"
	StatusUnderReview ApplicationStatus = "under_review"
	StatusApproved    ApplicationStatus = "approved"
	StatusRejected    ApplicationStatus = "rejected"
)

// ValidStatus reports whether the value is a known application status.
func ValidStatus(s ApplicationStatus) bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether the status has no further automatic transition.
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition encodes the reviewer-driven transition graph: approved and
// rejected are reachable from any non-terminal state, under_review only from
// pending. Exits from terminal states are gated by allowReopen.
func CanTransition(from, to ApplicationStatus, allowReopen bool) bool {
	if !ValidStatus(to) || from == to {
		return false
	}
	if from.IsTerminal() && !allowReopen {
		return false
	}
	switch to {
	case StatusApproved, StatusRejected:
		return true
	case StatusUnderReview:
		return from == StatusPending || (allowReopen && from.IsTerminal())
	case StatusPending:
		// pending is set at creation only, never re-entered by review.
		return false
	}
	return false
}

// Application uniquely pairs one applicant with one program.
type Application struct {
	ID                    string            `db:"id" json:"id"`
	ApplicantID           string            `db:"applicant_id" json:"applicant_id"`
	ProgramID             string            `db:"program_id" json:"program_id"`
	Status                ApplicationStatus `db:"status" json:"status"`
	CoverLetter           string            `db:"cover_letter" json:"cover_letter"`
	WhyInterested         string            `db:"why_interested" json:"why_interested"`
	SkillsAndExperience   string            `db:"skills_and_experience" json:"skills_and_experience"`
	AvailabilityStartDate time.Time         `db:"availability_start_date" json:"availability_start_date"`
	SubmittedAt           time.Time         `db:"submitted_at" json:"submitted_at"`
	ReviewedAt            *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy            *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	AdminNotes            *string           `db:"admin_notes" json:"admin_notes,omitempty"`
}

// StatusHistory is one append-only record per status change.
type StatusHistory struct {
	ID            string            `db:"id" json:"id"`
	ApplicationID string            `db:"application_id" json:"application_id"`
	Status        ApplicationStatus `db:"status" json:"status"`
	ChangedBy     *string           `db:"changed_by" json:"changed_by,omitempty"`
	ChangedByName *string           `db:"changed_by_name" json:"changed_by_name,omitempty"`
	ChangedAt     time.Time         `db:"changed_at" json:"changed_at"`
	Notes         *string           `db:"notes" json:"notes,omitempty"`
}

// ApplicationDetail joins the application with applicant/program display
// fields, its history and attached documents.
type ApplicationDetail struct {
	Application
	ApplicantName  string          `db:"applicant_name" json:"applicant_name"`
	ApplicantEmail string          `db:"applicant_email" json:"applicant_email"`
	ProgramName    string          `db:"program_name" json:"program_name"`
	ReviewedByName *string         `db:"reviewed_by_name" json:"reviewed_by_name,omitempty"`
	StatusHistory  []StatusHistory `db:"-" json:"status_history"`
	Documents      []Document      `db:"-" json:"documents"`
}

// ApplicationFilter captures listing criteria for applications.
type ApplicationFilter struct {
	ApplicantID string
	ProgramID   string
	Status      ApplicationStatus
	Search      string
	SortBy      string
	SortOrder   string
	Page        int
	PageSize    int
}
