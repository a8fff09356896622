package monitor

import "time"

// Outcome is the terminal state of a run.
type Outcome string

// Run outcomes.
const (
	OutcomeUnchanged     Outcome = "unchanged"
	OutcomePublished     Outcome = "published"
	OutcomePublishFailed Outcome = "publish_failed"
	OutcomeNoContent     Outcome = "no_content"
	OutcomeCaptureFailed Outcome = "capture_failed"
	OutcomeCritical      Outcome = "critical"
)

// Report summarises one run.
type Report struct {
	RunID               string
	Outcome             Outcome
	Fingerprint         string
	PreviousFingerprint string
	Changed             bool
	Published           bool
	Saved               bool
	// Err is the error that ended the run early, if any. Expected misses
	// such as an absent alert leave it nil.
	Err error
	// FlushErr reports a failed delivery of the run log.
	FlushErr error
}

// ChangeEvent is published after a change notification went out.
type ChangeEvent struct {
	RunID               string    `json:"run_id"`
	URL                 string    `json:"url"`
	Fingerprint         string    `json:"fingerprint"`
	PreviousFingerprint string    `json:"previous_fingerprint,omitempty"`
	AlertText           string    `json:"alert_text"`
	UpdateDate          string    `json:"update_date,omitempty"`
	DetectedAt          time.Time `json:"detected_at"`
}
