package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool. Rows are mapped
// onto the models by their db struct tags.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// uniqueViolation is the SQLSTATE Postgres reports for a unique index hit.
const uniqueViolation = "23505"

// execInsert runs an INSERT and maps unique violations to ErrDuplicateKey.
func (s *PostgresStore) execInsert(ctx context.Context, what, query string, args pgx.NamedArgs) error {
	_, err := s.pool.Exec(ctx, query, args)
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return ErrDuplicateKey
	case err != nil:
		return fmt.Errorf("create %s: %w", what, err)
	}
	return nil
}

// selectAll runs query and collects every row into a T. The result is
// never nil so handlers can encode it as [].
func selectAll[T any](ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]*T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*T{}
	}
	return out, nil
}

// clampPage fills in defaults for a page request and returns the row offset.
func clampPage(page, limit, def int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	limit = min(limit, maxPageSize)
	page = max(page, 1)
	return limit, (page - 1) * limit
}

const maxPageSize = 100

// API keys

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

// GetAPIKeyByPrefix returns every active key sharing prefix. Callers compare
// the bcrypt hash of each candidate.
func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	keys, err := selectAll[models.APIKey](ctx, s.pool,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch api key %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	return s.execInsert(ctx, "api key",
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES (@id, @name, @key_hash, @key_prefix, @scopes, @created_at, @updated_at)`,
		pgx.NamedArgs{
			"id":         key.ID,
			"name":       key.Name,
			"key_hash":   key.KeyHash,
			"key_prefix": key.KeyPrefix,
			"scopes":     key.Scopes,
			"created_at": key.CreatedAt,
			"updated_at": key.UpdatedAt,
		})
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	keys, err := selectAll[models.APIKey](ctx, s.pool,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey soft-deletes a key. An unknown or already revoked key is
// ErrNotFound.
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Runs

const runColumns = `id, objective, provider, model, status, success, iterations, error_message, completed_at, created_at, updated_at`

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	return s.execInsert(ctx, "run",
		`INSERT INTO runs (id, objective, provider, model, status, success, iterations, created_at, updated_at)
		 VALUES (@id, @objective, @provider, @model, @status, @success, @iterations, @created_at, @updated_at)`,
		pgx.NamedArgs{
			"id":         run.ID,
			"objective":  run.Objective,
			"provider":   run.Provider,
			"model":      run.Model,
			"status":     run.Status,
			"success":    run.Success,
			"iterations": run.Iterations,
			"created_at": run.CreatedAt,
			"updated_at": run.UpdatedAt,
		})
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	run, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[models.Run])
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns one page of runs, newest first, plus the total number of
// runs matching the filter.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]*models.Run, int, error) {
	limit, offset := clampPage(filter.Page, filter.Limit, 20)

	// An empty status matches every run.
	const where = `WHERE (@status = '' OR status = @status)`
	args := pgx.NamedArgs{"status": filter.Status, "limit": limit, "offset": offset}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM runs `+where, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	runs, err := selectAll[models.Run](ctx, s.pool,
		`SELECT `+runColumns+` FROM runs `+where+` ORDER BY created_at DESC LIMIT @limit OFFSET @offset`, args)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	return runs, total, nil
}

// terminalStatuses are the states a running run may move to. Finished runs
// never change again.
var terminalStatuses = []string{models.RunStatusCompleted, models.RunStatusStopped, models.RunStatusFailed}

// UpdateRunStatus finishes a running run. The status guard sits in the
// UPDATE itself, so two writers racing to finish the same run cannot both
// succeed.
func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error {
	var p runUpdateParams
	for _, opt := range opts {
		opt(&p)
	}

	if slices.Contains(terminalStatuses, status) {
		tag, err := s.pool.Exec(ctx,
			`UPDATE runs SET
			     status        = @status,
			     updated_at    = @now,
			     completed_at  = @now,
			     error_message = COALESCE(@error_message, error_message),
			     iterations    = COALESCE(@iterations, iterations),
			     success       = COALESCE(@success, success)
			 WHERE id = @id AND status = @from`,
			pgx.NamedArgs{
				"id":            id,
				"status":        status,
				"from":          models.RunStatusRunning,
				"now":           time.Now().UTC(),
				"error_message": p.ErrorMessage,
				"iterations":    p.Iterations,
				"success":       p.Success,
			})
		if err != nil {
			return fmt.Errorf("update run %s: %w", id, err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
	}

	// Nothing changed: the run is missing or the move is not allowed.
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1`, id).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("get run status %s: %w", id, err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

// Submissions

const submissionColumns = `id, run_id, iteration, job_id, status, submitted_prompt, prompt, prompt_fingerprint, llm_response, tool_calls, unique_tool_count, created_at`

// CreateSubmission stores one iteration of a run. A second submission for
// the same (run, iteration) is ErrDuplicateKey.
func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	return s.execInsert(ctx, "submission",
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES (@id, @run_id, @iteration, @job_id, @status, @submitted_prompt, @prompt,
		         @prompt_fingerprint, @llm_response, @tool_calls, @unique_tool_count, @created_at)`,
		pgx.NamedArgs{
			"id":                 sub.ID,
			"run_id":             sub.RunID,
			"iteration":          sub.Iteration,
			"job_id":             sub.JobID,
			"status":             sub.Status,
			"submitted_prompt":   sub.SubmittedPrompt,
			"prompt":             sub.Prompt,
			"prompt_fingerprint": sub.PromptFingerprint,
			"llm_response":       sub.LLMResponse,
			"tool_calls":         sub.ToolCalls,
			"unique_tool_count":  sub.UniqueToolCount,
			"created_at":         sub.CreatedAt,
		})
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, runID uuid.UUID) ([]*models.Submission, error) {
	subs, err := selectAll[models.Submission](ctx, s.pool,
		`SELECT `+submissionColumns+` FROM submissions WHERE run_id = $1 ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("list submissions for run %s: %w", runID, err)
	}
	return subs, nil
}

// TopSubmissions returns the submissions that triggered the most distinct
// tools, best first. Ties go to the earliest submission.
func (s *PostgresStore) TopSubmissions(ctx context.Context, limit int) ([]*models.Submission, error) {
	limit, _ = clampPage(1, limit, 10)
	subs, err := selectAll[models.Submission](ctx, s.pool,
		`SELECT `+submissionColumns+` FROM submissions
		 ORDER BY unique_tool_count DESC, created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top submissions: %w", err)
	}
	return subs, nil
}

var _ Store = (*PostgresStore)(nil)
