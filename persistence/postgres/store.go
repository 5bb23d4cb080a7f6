// Package postgres implements persistence.Repository against PostgreSQL,
// following the same github.com/jmoiron/sqlx + lib/pq idiom as
// checkpoint/postgres's Store, and the teacher's
// packages/com.r3e.services.gasbank/store_postgres.go raw-SQL CRUD style:
// a thin struct wrapping a database handle, one method per interface
// operation, $N placeholders, uuid.NewString() id generation, and
// database/sql null-wrapper types for optional columns.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/domain/project"
	"github.com/cardforge/cardforge/internal/apperr"
	"github.com/cardforge/cardforge/persistence"
)

// Store is a PostgreSQL-backed persistence.Repository.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-connected sqlx.DB.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

var _ persistence.Repository = (*Store)(nil)

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

// --- projects ---------------------------------------------------------

type projectRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	RepoURL       string    `db:"repo_url"`
	DefaultBranch string    `db:"default_branch"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r projectRow) toProject() project.Project {
	return project.Project{
		ID:            r.ID,
		Name:          r.Name,
		RepoURL:       r.RepoURL,
		DefaultBranch: r.DefaultBranch,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, repo_url, default_branch, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Name, p.RepoURL, p.DefaultBranch, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "inserting project", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	var row projectRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, repo_url, default_branch, created_at, updated_at
		FROM projects WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.CodeCardNotFound, "project %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "fetching project", err)
	}
	p := row.toProject()
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]project.Project, error) {
	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, repo_url, default_branch, created_at, updated_at
		FROM projects ORDER BY created_at DESC
	`); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "listing projects", err)
	}
	out := make([]project.Project, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toProject())
	}
	return out, nil
}

func (s *Store) UpdateProject(ctx context.Context, p *project.Project) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = $2, repo_url = $3, default_branch = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, p.Name, p.RepoURL, p.DefaultBranch, p.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "updating project", err)
	}
	return requireRowsAffected(res, apperr.CodeCardNotFound, "project %s not found", p.ID)
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "deleting project", err)
	}
	return nil
}

// --- cards --------------------------------------------------------------

type cardRow struct {
	ID                   string         `db:"id"`
	ProjectID            string         `db:"project_id"`
	TaskPrompt           string         `db:"task_prompt"`
	State                string         `db:"state"`
	PreviousState        string         `db:"previous_state"`
	StateChangedAt       time.Time      `db:"state_changed_at"`
	LoopIteration        int            `db:"loop_iteration"`
	TotalTokens          int64          `db:"total_tokens"`
	TotalCostUSD         float64        `db:"total_cost_usd"`
	TotalTimeSeconds     int64          `db:"total_time_seconds"`
	ErrorCount           int            `db:"error_count"`
	RetryCeiling         int            `db:"retry_ceiling"`
	WorktreePath         string         `db:"worktree_path"`
	BranchName           string         `db:"branch_name"`
	PullRequestURL       sql.NullString `db:"pull_request_url"`
	DeployTarget         sql.NullString `db:"deploy_target"`
	DeployNamespace      sql.NullString `db:"deploy_namespace"`
	HasAcceptanceCriteria bool          `db:"has_acceptance_criteria"`
	HasPlan              bool           `db:"has_plan"`
	HasGeneratedCode     bool           `db:"has_generated_code"`
	HasPullRequest       bool           `db:"has_pull_request"`
	TestsExist           bool           `db:"tests_exist"`
	BuildSucceeded       bool           `db:"build_succeeded"`
	SyncCompleted        bool           `db:"sync_completed"`
	HealthCheckPassed    bool           `db:"health_check_passed"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (r cardRow) toCard() card.Card {
	return card.Card{
		ID:               r.ID,
		ProjectID:        r.ProjectID,
		TaskPrompt:       r.TaskPrompt,
		State:            card.State(r.State),
		PreviousState:    card.State(r.PreviousState),
		StateChangedAt:   r.StateChangedAt,
		LoopIteration:    r.LoopIteration,
		TotalTokens:      r.TotalTokens,
		TotalCostUSD:     r.TotalCostUSD,
		TotalTimeSeconds: uint64(r.TotalTimeSeconds),
		ErrorCount:       r.ErrorCount,
		RetryCeiling:     r.RetryCeiling,
		WorktreePath:     r.WorktreePath,
		BranchName:       r.BranchName,
		PullRequestURL:   stringPtr(r.PullRequestURL),
		DeployTarget:     stringPtr(r.DeployTarget),
		DeployNamespace:  stringPtr(r.DeployNamespace),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (r cardRow) toWithFlags() *card.WithFlags {
	return &card.WithFlags{
		Card: r.toCard(),
		Flags: card.Flags{
			HasAcceptanceCriteria: r.HasAcceptanceCriteria,
			HasPlan:               r.HasPlan,
			HasGeneratedCode:      r.HasGeneratedCode,
			HasPullRequest:        r.HasPullRequest,
			TestsExist:            r.TestsExist,
			BuildSucceeded:        r.BuildSucceeded,
			SyncCompleted:         r.SyncCompleted,
			HealthCheckPassed:     r.HealthCheckPassed,
		},
	}
}

func (s *Store) CreateCard(ctx context.Context, c *card.Card) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt, c.StateChangedAt = now, now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (
			id, project_id, task_prompt, state, previous_state, state_changed_at,
			loop_iteration, total_tokens, total_cost_usd, total_time_seconds,
			error_count, retry_ceiling, worktree_path, branch_name,
			pull_request_url, deploy_target, deploy_namespace,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, c.ID, c.ProjectID, c.TaskPrompt, string(c.State), string(c.PreviousState), c.StateChangedAt,
		c.LoopIteration, c.TotalTokens, c.TotalCostUSD, int64(c.TotalTimeSeconds),
		c.ErrorCount, c.RetryCeiling, c.WorktreePath, c.BranchName,
		nullableString(c.PullRequestURL), nullableString(c.DeployTarget), nullableString(c.DeployNamespace),
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "inserting card", err)
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, id string) (*card.WithFlags, error) {
	var row cardRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, project_id, task_prompt, state, previous_state, state_changed_at,
		       loop_iteration, total_tokens, total_cost_usd, total_time_seconds,
		       error_count, retry_ceiling, worktree_path, branch_name,
		       pull_request_url, deploy_target, deploy_namespace,
		       has_acceptance_criteria, has_plan, has_generated_code, has_pull_request,
		       tests_exist, build_succeeded, sync_completed, health_check_passed,
		       created_at, updated_at
		FROM cards WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.CodeCardNotFound, "card %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "fetching card", err)
	}
	return row.toWithFlags(), nil
}

func (s *Store) ListCardsByProject(ctx context.Context, projectID string) ([]card.Card, error) {
	var rows []cardRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, project_id, task_prompt, state, previous_state, state_changed_at,
		       loop_iteration, total_tokens, total_cost_usd, total_time_seconds,
		       error_count, retry_ceiling, worktree_path, branch_name,
		       pull_request_url, deploy_target, deploy_namespace,
		       has_acceptance_criteria, has_plan, has_generated_code, has_pull_request,
		       tests_exist, build_succeeded, sync_completed, health_check_passed,
		       created_at, updated_at
		FROM cards WHERE project_id = $1 ORDER BY created_at DESC
	`, projectID); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "listing cards", err)
	}
	out := make([]card.Card, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCard())
	}
	return out, nil
}

func (s *Store) UpdateCard(ctx context.Context, c *card.Card) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cards SET
			task_prompt = $2, state = $3, previous_state = $4, state_changed_at = $5,
			loop_iteration = $6, total_tokens = $7, total_cost_usd = $8, total_time_seconds = $9,
			error_count = $10, retry_ceiling = $11, worktree_path = $12, branch_name = $13,
			pull_request_url = $14, deploy_target = $15, deploy_namespace = $16, updated_at = $17
		WHERE id = $1
	`, c.ID, c.TaskPrompt, string(c.State), string(c.PreviousState), c.StateChangedAt,
		c.LoopIteration, c.TotalTokens, c.TotalCostUSD, int64(c.TotalTimeSeconds),
		c.ErrorCount, c.RetryCeiling, c.WorktreePath, c.BranchName,
		nullableString(c.PullRequestURL), nullableString(c.DeployTarget), nullableString(c.DeployNamespace),
		c.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "updating card", err)
	}
	return requireRowsAffected(res, apperr.CodeCardNotFound, "card %s not found", c.ID)
}

// CardsInStates lists every card currently in one of states, across all
// projects, using sqlx.In to expand the variadic IN-clause.
func (s *Store) CardsInStates(ctx context.Context, states []card.State) ([]card.WithFlags, error) {
	if len(states) == 0 {
		return nil, nil
	}
	strStates := make([]string, len(states))
	for i, st := range states {
		strStates[i] = string(st)
	}
	query, args, err := sqlx.In(`
		SELECT id, project_id, task_prompt, state, previous_state, state_changed_at,
		       loop_iteration, total_tokens, total_cost_usd, total_time_seconds,
		       error_count, retry_ceiling, worktree_path, branch_name,
		       pull_request_url, deploy_target, deploy_namespace,
		       has_acceptance_criteria, has_plan, has_generated_code, has_pull_request,
		       tests_exist, build_succeeded, sync_completed, health_check_passed,
		       created_at, updated_at
		FROM cards WHERE state IN (?) ORDER BY created_at ASC
	`, strStates)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "building cards-in-states query", err)
	}
	query = s.db.Rebind(query)

	var rows []cardRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "listing cards in states", err)
	}
	out := make([]card.WithFlags, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toWithFlags())
	}
	return out, nil
}

func (s *Store) DeleteCard(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id); err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "deleting card", err)
	}
	return nil
}

// UpdateCardState updates the card row's state columns and inserts a
// TransitionLog row in a single transaction, and fails with CodeConflict
// if from no longer matches the stored state — the row-level analogue of
// the statemachine's compare-and-swap guard (spec.md §4.2).
func (s *Store) UpdateCardState(ctx context.Context, cardID string, from, to card.State, trigger card.Trigger) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "beginning state update transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE cards SET state = $3, previous_state = $2, state_changed_at = $4, updated_at = $4
		WHERE id = $1 AND state = $2
	`, cardID, string(from), string(to), now)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "updating card state", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "checking card state update", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.CodeConflict, "card %s is no longer in state %s", cardID, from)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO state_transitions (id, card_id, from_state, to_state, trigger, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), cardID, string(from), string(to), string(trigger), now)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "inserting transition log", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "committing state update", err)
	}
	return nil
}

// AddCardCost atomically increments a card's cumulative cost/time totals.
func (s *Store) AddCardCost(ctx context.Context, cardID string, deltaCostUSD float64, deltaTimeMS int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cards SET
			total_cost_usd = total_cost_usd + $2,
			total_time_seconds = total_time_seconds + $3,
			updated_at = $4
		WHERE id = $1
	`, cardID, deltaCostUSD, deltaTimeMS/1000, time.Now().UTC())
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "adding card cost", err)
	}
	return requireRowsAffected(res, apperr.CodeCardNotFound, "card %s not found", cardID)
}

type transitionRow struct {
	ID         string    `db:"id"`
	CardID     string    `db:"card_id"`
	FromState  string    `db:"from_state"`
	ToState    string    `db:"to_state"`
	Trigger    string    `db:"trigger"`
	OccurredAt time.Time `db:"occurred_at"`
}

func (s *Store) ListTransitions(ctx context.Context, cardID string) ([]card.TransitionLog, error) {
	var rows []transitionRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, card_id, from_state, to_state, trigger, occurred_at
		FROM state_transitions WHERE card_id = $1 ORDER BY occurred_at ASC
	`, cardID); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "listing transitions", err)
	}
	out := make([]card.TransitionLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, card.TransitionLog{
			ID:         r.ID,
			CardID:     r.CardID,
			FromState:  card.State(r.FromState),
			ToState:    card.State(r.ToState),
			Trigger:    card.Trigger(r.Trigger),
			OccurredAt: r.OccurredAt,
		})
	}
	return out, nil
}

// --- attempts -------------------------------------------------------------

type attemptRow struct {
	ID          string         `db:"id"`
	CardID      string         `db:"card_id"`
	Number      int            `db:"number"`
	Status      string         `db:"status"`
	StartedAt   time.Time      `db:"started_at"`
	EndedAt     sql.NullTime   `db:"ended_at"`
	TotalTokens int64          `db:"total_tokens"`
	CostUSD     float64        `db:"cost_usd"`
	CommitHash  sql.NullString `db:"commit_hash"`
	DiffAdded   sql.NullInt64  `db:"diff_added"`
	DiffRemoved sql.NullInt64  `db:"diff_removed"`
}

func (r attemptRow) toAttempt() card.Attempt {
	return card.Attempt{
		ID:          r.ID,
		CardID:      r.CardID,
		Number:      r.Number,
		Status:      card.AttemptStatus(r.Status),
		StartedAt:   r.StartedAt,
		EndedAt:     timePtr(r.EndedAt),
		TotalTokens: r.TotalTokens,
		CostUSD:     r.CostUSD,
		CommitHash:  stringPtr(r.CommitHash),
		DiffAdded:   intPtr(r.DiffAdded),
		DiffRemoved: intPtr(r.DiffRemoved),
	}
}

func (s *Store) CreateAttempt(ctx context.Context, a *card.Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (
			id, card_id, number, status, started_at, ended_at,
			total_tokens, cost_usd, commit_hash, diff_added, diff_removed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.CardID, a.Number, string(a.Status), a.StartedAt, nullableTime(a.EndedAt),
		a.TotalTokens, a.CostUSD, nullableString(a.CommitHash), nullableInt(a.DiffAdded), nullableInt(a.DiffRemoved))
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "inserting attempt", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (*card.Attempt, error) {
	var row attemptRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, card_id, number, status, started_at, ended_at,
		       total_tokens, cost_usd, commit_hash, diff_added, diff_removed
		FROM attempts WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.CodeCardNotFound, "attempt %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "fetching attempt", err)
	}
	a := row.toAttempt()
	return &a, nil
}

func (s *Store) ListAttemptsByCard(ctx context.Context, cardID string) ([]card.Attempt, error) {
	var rows []attemptRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, card_id, number, status, started_at, ended_at,
		       total_tokens, cost_usd, commit_hash, diff_added, diff_removed
		FROM attempts WHERE card_id = $1 ORDER BY number ASC
	`, cardID); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "listing attempts", err)
	}
	out := make([]card.Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAttempt())
	}
	return out, nil
}

func (s *Store) UpdateAttempt(ctx context.Context, a *card.Attempt) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attempts SET
			status = $2, ended_at = $3, total_tokens = $4, cost_usd = $5,
			commit_hash = $6, diff_added = $7, diff_removed = $8
		WHERE id = $1
	`, a.ID, string(a.Status), nullableTime(a.EndedAt), a.TotalTokens, a.CostUSD,
		nullableString(a.CommitHash), nullableInt(a.DiffAdded), nullableInt(a.DiffRemoved))
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "updating attempt", err)
	}
	return requireRowsAffected(res, apperr.CodeCardNotFound, "attempt %s not found", a.ID)
}

// --- card errors ------------------------------------------------------

type cardErrorRow struct {
	ID               string         `db:"id"`
	CardID           string         `db:"card_id"`
	Type             string         `db:"type"`
	Message          string         `db:"message"`
	Stack            sql.NullString `db:"stack"`
	Category         string         `db:"category"`
	Severity         string         `db:"severity"`
	Resolved         bool           `db:"resolved"`
	ResolvingAttempt sql.NullString `db:"resolving_attempt"`
	CreatedAt        time.Time      `db:"created_at"`
}

func (r cardErrorRow) toCardError() card.CardError {
	return card.CardError{
		ID:               r.ID,
		CardID:           r.CardID,
		Type:             r.Type,
		Message:          r.Message,
		Stack:            stringPtr(r.Stack),
		Category:         card.ErrorCategory(r.Category),
		Severity:         card.ErrorSeverity(r.Severity),
		Resolved:         r.Resolved,
		ResolvingAttempt: stringPtr(r.ResolvingAttempt),
		CreatedAt:        r.CreatedAt,
	}
}

func (s *Store) CreateCardError(ctx context.Context, e *card.CardError) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = card.SeverityMedium
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO card_errors (
			id, card_id, type, message, stack, category, severity,
			resolved, resolving_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.CardID, e.Type, e.Message, nullableString(e.Stack), string(e.Category), string(e.Severity),
		e.Resolved, nullableString(e.ResolvingAttempt), e.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "inserting card error", err)
	}
	return nil
}

func (s *Store) ListCardErrorsByCard(ctx context.Context, cardID string) ([]card.CardError, error) {
	var rows []cardErrorRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, card_id, type, message, stack, category, severity,
		       resolved, resolving_attempt, created_at
		FROM card_errors WHERE card_id = $1 ORDER BY created_at DESC
	`, cardID); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "listing card errors", err)
	}
	out := make([]card.CardError, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCardError())
	}
	return out, nil
}

func (s *Store) ResolveCardError(ctx context.Context, id, resolvingAttemptID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE card_errors SET resolved = true, resolving_attempt = $2 WHERE id = $1
	`, id, resolvingAttemptID)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "resolving card error", err)
	}
	return requireRowsAffected(res, apperr.CodeCardNotFound, "card error %s not found", id)
}

// --- snapshots ------------------------------------------------------------

type snapshotRow struct {
	ID         string    `db:"id"`
	CardID     string    `db:"card_id"`
	CardJSON   string    `db:"card_json"`
	CapturedAt time.Time `db:"captured_at"`
}

func (s *Store) CreateSnapshot(ctx context.Context, snap *card.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	cardJSON, err := json.Marshal(snap.Card)
	if err != nil {
		return apperr.Wrap(apperr.CodeBadArgument, "marshaling snapshot card", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO card_snapshots (id, card_id, card_json, captured_at)
		VALUES ($1, $2, $3, $4)
	`, snap.ID, snap.CardID, string(cardJSON), snap.CapturedAt)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "inserting snapshot", err)
	}
	return nil
}

func (s *Store) ListSnapshotsByCard(ctx context.Context, cardID string) ([]card.Snapshot, error) {
	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, card_id, card_json, captured_at
		FROM card_snapshots WHERE card_id = $1 ORDER BY captured_at DESC
	`, cardID); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "listing snapshots", err)
	}
	out := make([]card.Snapshot, 0, len(rows))
	for _, r := range rows {
		var c card.Card
		if err := json.Unmarshal([]byte(r.CardJSON), &c); err != nil {
			return nil, apperr.Wrapf(apperr.CodeStorageError, err, "snapshot %s: card_json is not valid JSON", r.ID)
		}
		out = append(out, card.Snapshot{
			ID:         r.ID,
			CardID:     r.CardID,
			Card:       c,
			CapturedAt: r.CapturedAt,
		})
	}
	return out, nil
}

func requireRowsAffected(res sql.Result, code apperr.Code, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "checking rows affected", err)
	}
	if n == 0 {
		return apperr.Newf(code, format, args...)
	}
	return nil
}
