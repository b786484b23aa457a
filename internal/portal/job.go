package portal

import "github.com/kiranshivaraju/portalpilot/pkg/models"

// Job is one submission to the portal. It has no ID until Submit succeeds;
// after that the ID never changes. Only the client mutates a Job.
type Job struct {
	id     string
	prompt string
	userID string
	status string
}

// NewJob creates an unsubmitted job for prompt, authenticated as userID.
func NewJob(prompt, userID string) *Job {
	return &Job{prompt: prompt, userID: userID}
}

func (j *Job) ID() string     { return j.id }
func (j *Job) Prompt() string { return j.prompt }
func (j *Job) UserID() string { return j.userID }

// Status is the last status observed by polling, empty before the first poll.
func (j *Job) Status() string { return j.status }

// Submitted reports whether the portal has assigned the job an ID.
func (j *Job) Submitted() bool { return j.id != "" }

// Terminal reports whether the last observed status ends the job.
func (j *Job) Terminal() bool { return models.IsTerminalStatus(j.status) }
