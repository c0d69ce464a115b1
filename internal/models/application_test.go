package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name        string
		from        ApplicationStatus
		to          ApplicationStatus
		allowReopen bool
		want        bool
	}{
		{"pending to under_review", StatusPending, StatusUnderReview, false, true},
		{"pending to approved", StatusPending, StatusApproved, false, true},
		{"pending to rejected", StatusPending, StatusRejected, false, true},
		{"under_review to approved", StatusUnderReview, StatusApproved, false, true},
		{"under_review to rejected", StatusUnderReview, StatusRejected, false, true},
		{"under_review back to pending", StatusUnderReview, StatusPending, false, false},
		{"approved is terminal", StatusApproved, StatusUnderReview, false, false},
		{"rejected is terminal", StatusRejected, StatusUnderReview, false, false},
		{"approved to rejected blocked", StatusApproved, StatusRejected, false, false},
		{"reopen rejected when enabled", StatusRejected, StatusUnderReview, true, true},
		{"reopen approved when enabled", StatusApproved, StatusUnderReview, true, true},
		{"reopen never reaches pending", StatusRejected, StatusPending, true, false},
		{"unknown target", StatusPending, ApplicationStatus("archived"), false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to, tc.allowReopen))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusUnderReview.IsTerminal())
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, "pdf", FileExtension("resume.pdf"))
	assert.Equal(t, "pdf", FileExtension("RESUME.PDF"))
	assert.Equal(t, "docx", FileExtension("resume.final.docx"))
	assert.Equal(t, "", FileExtension("resume"))
	assert.Equal(t, "", FileExtension("resume."))
	assert.Equal(t, "gz", FileExtension(".tar.gz"))
}
