// Package agent runs the LLM-driven submission loop: ask the model for a
// prompt, push it through the portal, and feed the results back.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/portalpilot/internal/ai"
	"github.com/kiranshivaraju/portalpilot/internal/analysis"
	"github.com/kiranshivaraju/portalpilot/internal/cache"
	"github.com/kiranshivaraju/portalpilot/internal/config"
	"github.com/kiranshivaraju/portalpilot/internal/portal"
	"github.com/kiranshivaraju/portalpilot/internal/store"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

var (
	ErrEmptyObjective  = errors.New("an objective is required")
	ErrEmptyPrompt     = errors.New("empty prompt returned while FLAG_STOP was false")
	ErrInvalidDecision = errors.New("no valid prompt decision from the LLM")
)

const progressTTL = 30 * time.Minute

// Settings controls one Agent.
type Settings struct {
	UserID           string
	MaxIterations    int
	ParseRetries     int
	Temperature      float64
	InferenceTimeout time.Duration
	Poll             portal.PollOptions
}

// SettingsFromConfig collects the agent settings from the loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		UserID:           cfg.Portal.UserID,
		MaxIterations:    cfg.Agent.MaxIterations,
		ParseRetries:     cfg.Agent.ParseRetries,
		Temperature:      cfg.Agent.Temperature,
		InferenceTimeout: cfg.AI.InferenceTimeout,
		Poll: portal.PollOptions{
			Interval: cfg.Portal.PollInterval,
			MaxWait:  cfg.Portal.MaxWait,
		},
	}
}

// Agent drives the prompt loop. Runs are sequential; an Agent must not be
// shared between goroutines.
type Agent struct {
	provider models.AIProvider
	portal   portal.Client
	runs     store.RunStore
	progress cache.ProgressCache
	settings Settings
	schema   any

	history []models.ChatMessage
}

type Option func(*Agent)

// WithRunStore records runs and submissions, and seeds the best score from
// the stored leaderboard.
func WithRunStore(rs store.RunStore) Option {
	return func(a *Agent) { a.runs = rs }
}

// WithProgressCache mirrors every poll snapshot into pc.
func WithProgressCache(pc cache.ProgressCache) Option {
	return func(a *Agent) { a.progress = pc }
}

// New creates an Agent.
func New(provider models.AIProvider, client portal.Client, settings Settings, opts ...Option) *Agent {
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = 50
	}
	if settings.ParseRetries <= 0 {
		settings.ParseRetries = 3
	}
	a := &Agent{
		provider: provider,
		portal:   client,
		settings: settings,
		schema:   ai.SchemaFor[models.PromptDecision](),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunReport is the outcome of one Run.
type RunReport struct {
	Run         *models.Run
	Submissions []*models.Submission
	// BestUniqueToolCount is the highest distinct tool count seen, including
	// runs recorded before this one.
	BestUniqueToolCount int
}

// Run loops until the model sets FLAG_STOP, MaxIterations submissions have
// been made, or a step fails. The report is returned even on error.
func (a *Agent) Run(ctx context.Context, objective string) (*RunReport, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return nil, ErrEmptyObjective
	}

	now := time.Now().UTC()
	run := &models.Run{
		ID:        uuid.New(),
		Objective: objective,
		Provider:  a.provider.Name(),
		Model:     a.provider.Model(),
		Status:    models.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	report := &RunReport{Run: run, Submissions: []*models.Submission{}}
	a.history = nil

	if a.runs != nil {
		if err := a.runs.CreateRun(ctx, run); err != nil {
			slog.WarnContext(ctx, "recording run failed", "run_id", run.ID, "error", err)
		}
	}
	report.BestUniqueToolCount = a.seedBest(ctx)

	slog.InfoContext(ctx, "agent run started",
		"run_id", run.ID, "provider", run.Provider, "model", run.Model,
		"max_iterations", a.settings.MaxIterations)

	message := initialMessage(objective)
	for iteration := 1; iteration <= a.settings.MaxIterations; iteration++ {
		decision, err := a.requestDecision(ctx, message)
		if err != nil {
			return a.finish(ctx, report, models.RunStatusFailed, err)
		}

		if decision.Stop {
			slog.InfoContext(ctx, "agent flagged stop",
				"run_id", run.ID, "iteration", iteration, "success", decision.Success)
			run.Success = decision.Success
			return a.finish(ctx, report, models.RunStatusStopped, nil)
		}

		prompt := strings.TrimSpace(decision.Prompt)
		if prompt == "" {
			return a.finish(ctx, report, models.RunStatusFailed, ErrEmptyPrompt)
		}
		if decision.Success {
			slog.InfoContext(ctx, "agent noted success but FLAG_STOP was false", "run_id", run.ID, "iteration", iteration)
		}

		sub, err := a.submit(ctx, run.ID, iteration, prompt)
		if err != nil {
			return a.finish(ctx, report, models.RunStatusFailed, fmt.Errorf("iteration %d: %w", iteration, err))
		}
		report.Submissions = append(report.Submissions, sub)

		if sub.UniqueToolCount > report.BestUniqueToolCount {
			slog.InfoContext(ctx, "new best unique tool count",
				"run_id", run.ID, "job_id", sub.JobID,
				"unique_tool_count", sub.UniqueToolCount, "previous", report.BestUniqueToolCount)
			report.BestUniqueToolCount = sub.UniqueToolCount
		}

		if a.runs != nil {
			if err := a.runs.CreateSubmission(ctx, sub); err != nil {
				slog.WarnContext(ctx, "recording submission failed", "run_id", run.ID, "job_id", sub.JobID, "error", err)
			}
		}

		if iteration == a.settings.MaxIterations {
			break
		}
		message = resultMessage(sub, iteration)
	}

	return a.finish(ctx, report, models.RunStatusCompleted, nil)
}

func (a *Agent) seedBest(ctx context.Context) int {
	if a.runs == nil {
		return 0
	}
	top, err := a.runs.TopSubmissions(ctx, 1)
	if err != nil {
		slog.WarnContext(ctx, "loading leaderboard failed", "error", err)
		return 0
	}
	if len(top) == 0 {
		return 0
	}
	return top[0].UniqueToolCount
}

func (a *Agent) finish(ctx context.Context, report *RunReport, status string, runErr error) (*RunReport, error) {
	run := report.Run
	now := time.Now().UTC()
	run.Status = status
	run.Iterations = len(report.Submissions)
	run.CompletedAt = &now
	run.UpdatedAt = now

	opts := []store.RunUpdateOption{store.WithIterations(run.Iterations), store.WithSuccess(run.Success)}
	if runErr != nil {
		msg := runErr.Error()
		run.ErrorMessage = &msg
		opts = append(opts, store.WithErrorMessage(msg))
		slog.ErrorContext(ctx, "agent run failed", "run_id", run.ID, "iterations", run.Iterations, "error", runErr)
	} else {
		slog.InfoContext(ctx, "agent run finished",
			"run_id", run.ID, "status", status, "success", run.Success, "iterations", run.Iterations)
	}

	if a.runs != nil {
		// The run's own context may already be cancelled.
		if err := a.runs.UpdateRunStatus(context.WithoutCancel(ctx), run.ID, status, opts...); err != nil {
			slog.WarnContext(ctx, "recording run status failed", "run_id", run.ID, "error", err)
		}
	}
	return report, runErr
}

// requestDecision asks for the next decision, sending a correction message
// after each unparseable reply. Provider errors are not retried.
func (a *Agent) requestDecision(ctx context.Context, message string) (models.PromptDecision, error) {
	followup := message
	var lastErr error
	for attempt := 1; attempt <= a.settings.ParseRetries; attempt++ {
		reply, err := a.complete(ctx, followup)
		if err != nil {
			return models.PromptDecision{}, fmt.Errorf("requesting prompt: %w", err)
		}

		decision, err := ParseDecision(reply)
		if err == nil {
			return decision, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "invalid decision from LLM",
			"attempt", attempt, "retries", a.settings.ParseRetries, "error", err)
		followup = correctionMessage(err)
	}
	return models.PromptDecision{}, fmt.Errorf("%w after %d attempts: %v", ErrInvalidDecision, a.settings.ParseRetries, lastErr)
}

// complete sends the system prompt, the conversation so far and message,
// then appends message and the reply to the conversation.
func (a *Agent) complete(ctx context.Context, message string) (string, error) {
	if a.settings.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.settings.InferenceTimeout)
		defer cancel()
	}

	user := models.ChatMessage{Role: models.RoleUser, Content: message}
	msgs := make([]models.ChatMessage, 0, len(a.history)+2)
	msgs = append(msgs, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt})
	msgs = append(msgs, a.history...)
	msgs = append(msgs, user)

	temp := a.settings.Temperature
	reply, err := a.provider.Complete(ctx, models.ChatRequest{
		Messages:    msgs,
		Temperature: &temp,
		SchemaName:  "prompt_decision",
		Schema:      a.schema,
	})
	if err != nil {
		return "", err
	}

	a.history = append(a.history, user, models.ChatMessage{Role: models.RoleAssistant, Content: reply})
	slog.DebugContext(ctx, "llm reply", "content", strings.TrimSpace(reply))
	return reply, nil
}

// submit runs one prompt through the portal: submit, poll to a terminal
// status, fetch the result page and extract it.
func (a *Agent) submit(ctx context.Context, runID uuid.UUID, iteration int, prompt string) (*models.Submission, error) {
	slog.InfoContext(ctx, "submitting job", "run_id", runID, "iteration", iteration, "prompt_length", len(prompt))

	job := portal.NewJob(prompt, a.settings.UserID)
	if err := a.portal.Submit(ctx, job); err != nil {
		return nil, err
	}

	final, err := a.portal.Poll(job, a.settings.Poll).Wait(ctx, func(s portal.Snapshot) {
		a.recordProgress(ctx, job.ID(), s)
	})
	if err != nil {
		return nil, err
	}
	a.recordProgress(ctx, job.ID(), *final)

	page, err := a.portal.FetchResults(ctx, job)
	if err != nil {
		return nil, err
	}

	result := portal.Extract(page)
	unique, err := portal.UniqueToolCount(result.ToolCalls)
	if err != nil {
		return nil, err
	}

	sub := &models.Submission{
		ID:                uuid.New(),
		RunID:             runID,
		Iteration:         iteration,
		JobID:             job.ID(),
		Status:            final.Status,
		SubmittedPrompt:   prompt,
		Prompt:            result.Prompt,
		PromptFingerprint: analysis.PromptFingerprint(prompt),
		LLMResponse:       result.Response,
		ToolCalls:         result.ToolCalls,
		UniqueToolCount:   unique,
		CreatedAt:         time.Now().UTC(),
	}

	slog.InfoContext(ctx, "job finished",
		"run_id", runID, "iteration", iteration, "job_id", sub.JobID,
		"status", sub.Status, "unique_tool_count", unique)
	return sub, nil
}

func (a *Agent) recordProgress(ctx context.Context, jobID string, s portal.Snapshot) {
	attrs := []any{"job_id", jobID, "status", s.Status}
	if s.Progress != nil {
		attrs = append(attrs, "progress", *s.Progress)
	}
	if s.Message != nil {
		attrs = append(attrs, "message", *s.Message)
	}
	if s.QueuePosition != nil && *s.QueuePosition > 0 {
		attrs = append(attrs, "queue_position", *s.QueuePosition)
	}
	slog.InfoContext(ctx, "job progress", attrs...)

	if a.progress == nil {
		return
	}
	err := a.progress.SetJobProgress(ctx, &models.JobProgress{
		JobID:         jobID,
		Status:        s.Status,
		Progress:      s.Progress,
		Message:       s.Message,
		QueuePosition: s.QueuePosition,
		UpdatedAt:     time.Now().UTC(),
	}, progressTTL)
	if err != nil {
		slog.WarnContext(ctx, "caching job progress failed", "job_id", jobID, "error", err)
	}
}
