package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capturelab/scoopd/internal/domain/model"
)

func TestTidyMessage(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "timestamp prefix stripped",
			in:   "[2026-01-01T00:00:00] INFO Exporting capture",
			want: "Exporting capture",
		},
		{
			name: "step prefix stripped",
			in:   "[scoop] INFO STEP [3/12]: Waiting for network idle",
			want: "Waiting for network idle",
		},
		{
			name: "plain line untouched",
			in:   "WACZ was finalized",
			want: "WACZ was finalized",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tidyMessage(tc.in))
		})
	}
}

func TestOutputRouter_Milestones(t *testing.T) {
	job := &model.CaptureJob{ID: "job-1"}
	r := &outputRouter{job: job, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	r.handle("[scoop] INFO STEP [1/5]: Initial page load")
	assert.True(t, r.progressed)
	assert.Equal(t, float64(1), job.StepCount)
	assert.Equal(t, "[Scoop] Initial page load.", job.StepDescription)

	r.progressed = false
	r.handle("Exporting capture to WACZ")
	assert.True(t, r.progressed)
	assert.Equal(t, float64(2), job.StepCount)
}

func TestOutputRouter_NonMilestonesDoNotAdvance(t *testing.T) {
	job := &model.CaptureJob{ID: "job-1"}
	r := &outputRouter{job: job, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	r.handle("WARN something noisy happened")
	r.handle("mundane debug chatter")
	r.handle("")

	assert.False(t, r.progressed)
	assert.Zero(t, job.StepCount)
	assert.Empty(t, job.StepDescription)
}
