package stores

import (
	"time"
)

// AttributeDirectorUUID is the director_attributes row holding the UUID
// sent in every CPI context block.
const AttributeDirectorUUID = "uuid"

// CallEntry is one journaled CPI call.
type CallEntry struct {
	ID         int64         `json:"id"`
	RequestID  string        `json:"request_id,omitempty"`
	CPI        string        `json:"cpi"`
	Method     string        `json:"method"`
	Arguments  string        `json:"arguments"` // JSON array
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	ExitStatus int           `json:"exit_status"`

	StderrBytes int `json:"stderr_bytes"`

	Outcome      string `json:"outcome"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	OkToRetry    bool   `json:"ok_to_retry"`
}

// CallFilter selects journal entries. Zero fields match everything.
type CallFilter struct {
	CPI       string
	Method    string
	RequestID string
	Outcome   string
	Since     time.Time
	Limit     int
	Offset    int
}
