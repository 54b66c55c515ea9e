package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{SessionStatusAI, SessionStatusHuman, true},
		{SessionStatusHuman, SessionStatusAI, true},
		{SessionStatusAI, SessionStatusClosed, true},
		{SessionStatusHuman, SessionStatusClosed, true},
		{SessionStatusAI, SessionStatusAI, false},
		{SessionStatusHuman, SessionStatusHuman, false},
		{SessionStatusClosed, SessionStatusAI, false},
		{SessionStatusClosed, SessionStatusHuman, false},
		{SessionStatusClosed, SessionStatusClosed, false},
		{"unknown", SessionStatusAI, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestJobPosting_Helpers(t *testing.T) {
	provider := "p-1"
	job := &JobPosting{ProviderID: &provider, Status: JobStatusProcessing}

	assert.False(t, job.IsActive())
	assert.False(t, job.IsEnriched())
	assert.True(t, job.OwnedBy("p-1"))
	assert.False(t, job.OwnedBy("p-2"))

	job.Status = JobStatusActive
	assert.True(t, job.IsActive())

	system := &JobPosting{}
	assert.False(t, system.OwnedBy(""))
}

func TestScrapeRun_IsTerminal(t *testing.T) {
	for _, s := range []string{RunStatusSuccess, RunStatusPartial, RunStatusFailed} {
		assert.True(t, (&ScrapeRun{Status: s}).IsTerminal(), s)
	}
	assert.False(t, (&ScrapeRun{Status: RunStatusRunning}).IsTerminal())
}
