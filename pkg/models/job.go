package models

import (
	"time"

	"github.com/google/uuid"
)

// Portal job statuses. Only completed and failed end polling; the portal
// reports anything else (queued, pending, running, ...) while a job is live.
const (
	JobStatusQueued     = "queued"
	JobStatusPending    = "pending"
	JobStatusRunning    = "running"
	JobStatusInProgress = "in-progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// IsTerminalStatus reports whether a portal job status ends polling.
func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Run statuses. A run starts running and ends in exactly one of the others.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusStopped   = "stopped"
	RunStatusFailed    = "failed"
)

// Run is one invocation of the agent loop against a single objective.
type Run struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	Objective    string     `db:"objective"     json:"objective"`
	Provider     string     `db:"provider"      json:"provider"`
	Model        string     `db:"model"         json:"model"`
	Status       string     `db:"status"        json:"status"`
	Success      bool       `db:"success"       json:"success"`
	Iterations   int        `db:"iterations"    json:"iterations"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}

// Submission records one portal job made during a run: what was sent, what
// the portal reported back, and how many distinct tools the job triggered.
type Submission struct {
	ID                uuid.UUID `db:"id"                  json:"id"`
	RunID             uuid.UUID `db:"run_id"              json:"run_id"`
	Iteration         int       `db:"iteration"           json:"iteration"`
	JobID             string    `db:"job_id"              json:"job_id"`
	Status            string    `db:"status"              json:"status"`
	SubmittedPrompt   string    `db:"submitted_prompt"    json:"submitted_prompt"`
	Prompt            string    `db:"prompt"              json:"prompt"`
	PromptFingerprint string    `db:"prompt_fingerprint"  json:"prompt_fingerprint"`
	LLMResponse       string    `db:"llm_response"        json:"llm_response"`
	ToolCalls         *string   `db:"tool_calls"          json:"tool_calls,omitempty"`
	UniqueToolCount   int       `db:"unique_tool_count"   json:"unique_tool_count"`
	CreatedAt         time.Time `db:"created_at"          json:"created_at"`
}

// JobProgress is the latest poll snapshot for a live portal job, as mirrored
// into the cache for the history API.
type JobProgress struct {
	JobID         string    `json:"job_id"`
	Status        string    `json:"status"`
	Progress      *float64  `json:"progress,omitempty"`
	Message       *string   `json:"message,omitempty"`
	QueuePosition *int      `json:"queue_position,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
