package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobKind identifies one of the independent server-side data jobs.
type JobKind string

const (
	Summary  JobKind = "summary"
	Detailed JobKind = "detailed"
)

// Kinds lists every job kind in display order.
var Kinds = []JobKind{Summary, Detailed}

// ParseJobKind converts user input into a JobKind.
func ParseJobKind(s string) (JobKind, error) {
	switch JobKind(s) {
	case Summary, Detailed:
		return JobKind(s), nil
	default:
		return "", fmt.Errorf("unknown job kind %q (want summary or detailed)", s)
	}
}

// Status is the server-reported state of a job.
type Status string

const (
	// StatusUnknown is the client default before any successful fetch, and
	// the value any unrecognised wire status decodes to.
	StatusUnknown Status = "unknown"
	// StatusNull means the server has no record of a job ever running.
	StatusNull Status = "null"
	// StatusPending is the placeholder installed after an accepted refresh.
	StatusPending   Status = ""
	StatusQueued    Status = "queued"
	StatusStarted   Status = "started"
	StatusFinished  Status = "finished"
	StatusTooRecent Status = "too_recent"
	StatusCancelled Status = "canceled"
	StatusFailed    Status = "failed"
)

// ParseStatus maps a wire status string onto a Status.
func ParseStatus(s string) Status {
	switch s {
	case "", "queued", "started", "finished", "too_recent", "failed":
		return Status(s)
	case "canceled", "cancelled":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the status ends polling without further server action.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusCancelled, StatusFailed, StatusTooRecent:
		return true
	}
	return false
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s == StatusNull {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *Status) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = StatusNull
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		// Numbers, objects and the like are not statuses we know.
		*s = StatusUnknown
		return nil
	}
	*s = ParseStatus(raw)
	return nil
}

// JobStatus is the client-held view of one job.
type JobStatus struct {
	Status      Status `json:"status"`
	Message     string `json:"message"`
	StopPolling bool   `json:"stop_polling"`
}

// UnmarshalJSON accepts both the stop_polling and stopPolling spellings.
// A payload without a status field is reported as null.
func (j *JobStatus) UnmarshalJSON(data []byte) error {
	var aux struct {
		Status         *Status `json:"status"`
		Message        string  `json:"message"`
		StopPolling    *bool   `json:"stop_polling"`
		StopPollingAlt *bool   `json:"stopPolling"`
	}
	aux.Status = new(Status)
	*aux.Status = StatusNull
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	out := JobStatus{Status: StatusNull, Message: aux.Message}
	if aux.Status != nil {
		out.Status = *aux.Status
	}
	switch {
	case aux.StopPolling != nil:
		out.StopPolling = *aux.StopPolling
	case aux.StopPollingAlt != nil:
		out.StopPolling = *aux.StopPollingAlt
	}
	*j = out
	return nil
}

// InProgress reports whether a kickoff is underway, which is when the UI
// keeps the refresh control disabled.
func (j JobStatus) InProgress() bool {
	return !j.StopPolling
}

func InitialJobStatus() JobStatus {
	return JobStatus{Status: StatusUnknown, Message: "Data status unknown...", StopPolling: false}
}

func RefreshingJobStatus() JobStatus {
	return JobStatus{Status: StatusPending, Message: "Attempting to refresh data.", StopPolling: false}
}

func TooRecentJobStatus(message string) JobStatus {
	return JobStatus{Status: StatusTooRecent, Message: message, StopPolling: true}
}

// RefreshResult is the backend's answer to a kickoff request.
type RefreshResult struct {
	Accepted bool   `json:"refresh_accepted"`
	Message  string `json:"message"`
}

// DataStatus is the simplified single-job status of /api/data_status.
type DataStatus struct {
	Message    string `json:"message"`
	Downloaded bool   `json:"downloaded"`
}

// KindState is the poller's state for one job kind.
type KindState struct {
	Job     JobStatus `json:"job"`
	Polling bool      `json:"polling"`
}

// Snapshot is a read-only copy of the poller state handed to consumers.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Summary   KindState `json:"summary"`
	Detailed  KindState `json:"detailed"`
	Paid      bool      `json:"paid"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State returns the KindState for kind.
func (s Snapshot) State(kind JobKind) KindState {
	if kind == Detailed {
		return s.Detailed
	}
	return s.Summary
}

// Polling reports whether any kind still has a live polling loop.
func (s Snapshot) Polling() bool {
	return s.Summary.Polling || s.Detailed.Polling
}
