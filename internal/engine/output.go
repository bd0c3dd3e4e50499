package engine

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/capturelab/scoopd/internal/domain/model"
)

// Milestone markers in the tool's stdout that advance the job's visible
// progress counter. Everything else is routed to logs only.
var progressMilestones = []string{
	"STEP",
	"Exporting capture",
	"saved to disk",
}

// Noteworthy but non-milestone lines, logged at info instead of debug.
var infoEvents = []string{
	"WARN",
	"ERROR",
	"User Agent",
	"captureTimeout",
	"Indexing WARCS",
	"Writing",
	"Finalizing WACZ",
	"WACZ was finalized",
}

var tidyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\[.*?\]`),
	regexp.MustCompile(`\s*INFO\s*`),
	regexp.MustCompile(`\s*STEP \[.*?\]:\s*`),
}

// tidyMessage strips the tool's log prefixes so progress descriptions read
// as plain sentences.
func tidyMessage(msg string) string {
	cleaned := msg
	for _, p := range tidyPatterns {
		cleaned = p.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}

// outputRouter classifies tool stdout lines and applies progress updates.
type outputRouter struct {
	job    *model.CaptureJob
	logger *slog.Logger

	// progressed is set when at least one milestone advanced the counter,
	// used by the engine to decide whether progress needs persisting.
	progressed bool
}

func (r *outputRouter) handle(line string) {
	if line == "" {
		return
	}
	if containsAny(line, progressMilestones) {
		r.job.IncProgress(1, "[Scoop] "+tidyMessage(line)+".")
		r.progressed = true
		r.logger.Info("capture progress",
			"job_id", r.job.ID,
			"step", r.job.StepCount,
			"description", r.job.StepDescription)
		return
	}
	if containsAny(line, infoEvents) {
		r.logger.Info("[Scoop] "+tidyMessage(line), "job_id", r.job.ID)
		return
	}
	r.logger.Debug(tidyMessage(line), "job_id", r.job.ID)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
