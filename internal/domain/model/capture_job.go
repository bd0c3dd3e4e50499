// Package model defines the core data types for the scoopd capture system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a capture job.
type Status string

const (
	// StatusPending indicates a job is waiting in the queue.
	StatusPending Status = "pending"
	// StatusInProgress indicates a worker has claimed the job.
	StatusInProgress Status = "in_progress"
	// StatusCompleted indicates the capture produced an archive.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the capture ended without a usable archive.
	StatusFailed Status = "failed"
	// StatusInvalid indicates the requested URL failed validation.
	StatusInvalid Status = "invalid"
)

// ErrNoJobsPending is returned when the queue holds no claimable jobs.
var ErrNoJobsPending = errors.New("no jobs pending")

// Valid returns true if the Status is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusInvalid:
		return true
	}
	return false
}

// Terminal returns true for states a job can never leave.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusInvalid
}

// UnmarshalText implements encoding.TextUnmarshaler for Status to allow env parsing.
func (s *Status) UnmarshalText(text []byte) error {
	v := Status(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid status: %q", string(text))
	}
	*s = v
	return nil
}

// CaptureOptions holds the per-job flags forwarded to the capture tool.
type CaptureOptions struct {
	IncludeRawExchanges             bool `json:"include_raw_exchanges"`
	IncludeScreenshot               bool `json:"include_screenshot"`
	IncludePDFSnapshot              bool `json:"include_pdf_snapshot"`
	IncludeDOMSnapshot              bool `json:"include_dom_snapshot"`
	IncludeVideosAsAttachment       bool `json:"include_videos_as_attachment"`
	IncludeCertificatesAsAttachment bool `json:"include_certificates_as_attachment"`
	RunSiteSpecificBehaviors        bool `json:"run_site_specific_behaviors"`
	Headless                        bool `json:"headless"`
}

// CaptureJob represents one queued request to archive one URL.
//
// Order is assigned exactly once when the job is created and establishes the
// dispatch sequence within a priority class; it is never mutated afterward.
// Status only moves forward: once a job leaves pending it never returns.
type CaptureJob struct {
	ID           string  `json:"id"            db:"id"`
	UserID       string  `json:"user_id"       db:"user_id"`
	RequestedURL string  `json:"requested_url" db:"requested_url"`
	ValidatedURL *string `json:"validated_url,omitempty" db:"validated_url"`

	// Human selects the priority class: human-flagged jobs always dispatch
	// before non-human ones.
	Human       bool    `json:"human"        db:"human"`
	Label       string  `json:"label"        db:"label"`
	WebhookData *string `json:"webhook_data,omitempty" db:"webhook_data"`

	Status  Status          `json:"status"  db:"status"`
	Order   float64         `json:"order"   db:"queue_order"`
	Message json.RawMessage `json:"message,omitempty" db:"message"`

	StepCount       float64 `json:"step_count"       db:"step_count"`
	StepDescription string  `json:"step_description" db:"step_description"`

	Options CaptureOptions `json:"capture_options"`

	CaptureStartTime *time.Time `json:"capture_start_time,omitempty" db:"capture_start_time"`
	CaptureEndTime   *time.Time `json:"capture_end_time,omitempty"   db:"capture_end_time"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`

	orig *captureJobSnapshot
}

// CreateCaptureJobRequest represents an intake request for a new capture job.
type CreateCaptureJobRequest struct {
	UserID       string         `json:"user_id"`
	RequestedURL string         `json:"requested_url"`
	Human        bool           `json:"human"`
	Label        string         `json:"label,omitempty"`
	WebhookData  *string        `json:"webhook_data,omitempty"`
	Options      CaptureOptions `json:"capture_options"`
}

// Validate validates the CreateCaptureJobRequest fields. URL content
// validation happens later, in the execution engine: even a malformed URL
// gets a job row so it can be marked invalid with a structured message.
func (r *CreateCaptureJobRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// captureJobSnapshot records the tracked field values observed at load or
// save time. Comparing against it answers "has this changed since the row
// was read" without re-querying the database.
type captureJobSnapshot struct {
	status          Status
	validatedURL    *string
	stepCount       float64
	stepDescription string
	message         string
}

func (j *CaptureJob) snapshot() *captureJobSnapshot {
	return &captureJobSnapshot{
		status:          j.Status,
		validatedURL:    j.ValidatedURL,
		stepCount:       j.StepCount,
		stepDescription: j.StepDescription,
		message:         string(j.Message),
	}
}

// ResetOriginalState re-baselines change tracking to the current field
// values. Repositories call this after loading or saving a row.
func (j *CaptureJob) ResetOriginalState() {
	j.orig = j.snapshot()
}

// StatusChanged reports whether Status differs from the last loaded or saved
// value. A job that has never been persisted reports true.
func (j *CaptureJob) StatusChanged() bool {
	if j.orig == nil {
		return true
	}
	return j.orig.status != j.Status
}

// ProgressChanged reports whether the step counter or description moved
// since the last load or save.
func (j *CaptureJob) ProgressChanged() bool {
	if j.orig == nil {
		return true
	}
	return j.orig.stepCount != j.StepCount || j.orig.stepDescription != j.StepDescription
}

// ValidatedURLChanged reports whether the validated URL was set or altered
// since the last load or save.
func (j *CaptureJob) ValidatedURLChanged() bool {
	if j.orig == nil {
		return true
	}
	return !equalStringPtr(j.orig.validatedURL, j.ValidatedURL)
}

// MessageChanged reports whether the structured error payload moved since
// the last load or save.
func (j *CaptureJob) MessageChanged() bool {
	if j.orig == nil {
		return true
	}
	return j.orig.message != string(j.Message)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// IncProgress advances the step counter and replaces the step description.
func (j *CaptureJob) IncProgress(inc float64, description string) {
	j.StepCount += inc
	j.StepDescription = description
}
