// Package postgres implements checkpoint.Store against PostgreSQL, the
// system of record for loop checkpoints. Grounded on
// original_source/src/loops/checkpoint.rs's save_checkpoint /
// get_latest_checkpoint / get_checkpoints / delete_checkpoints /
// cleanup_old_checkpoints / has_resumable_checkpoint, translated from
// sqlx::SqlitePool to github.com/jmoiron/sqlx over PostgreSQL (lib/pq
// driver), following the teacher's packages/*/store_postgres.go idiom of a
// thin struct wrapping a database handle with one method per Store
// operation.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cardforge/cardforge/checkpoint"
	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/cardforge/cardforge/internal/apperr"
)

// Store is a PostgreSQL-backed checkpoint.Store.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-connected sqlx.DB.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// checkpointRow mirrors the loop_checkpoints table shape, matching
// original_source's CheckpointRow.
type checkpointRow struct {
	ID                  string         `db:"id"`
	CardID              string         `db:"card_id"`
	Iteration           int32          `db:"iteration"`
	Platform            string         `db:"platform"`
	Subscription        sql.NullString `db:"subscription"`
	StateJSON           string         `db:"state_json"`
	LastPrompt          sql.NullString `db:"last_prompt"`
	LastResponseSummary sql.NullString `db:"last_response_summary"`
	ModifiedFilesJSON   string         `db:"modified_files"`
	CheckpointCommit    sql.NullString `db:"checkpoint_commit"`
	TotalCostUSD        float64        `db:"total_cost_usd"`
	TotalTokens         int64          `db:"total_tokens"`
	CreatedAt           sql.NullTime   `db:"created_at"`
}

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

func (r checkpointRow) toCheckpoint() (loopcfg.Checkpoint, error) {
	var modifiedFiles []string
	if r.ModifiedFilesJSON != "" {
		if err := json.Unmarshal([]byte(r.ModifiedFilesJSON), &modifiedFiles); err != nil {
			return loopcfg.Checkpoint{}, apperr.Wrapf(apperr.CodeCheckpointCorrupted, err,
				"checkpoint %s: modified_files is not valid JSON", r.ID)
		}
	}
	cp := loopcfg.Checkpoint{
		ID:                  r.ID,
		CardID:              r.CardID,
		Iteration:           r.Iteration,
		Platform:            r.Platform,
		Subscription:        stringPtr(r.Subscription),
		StateJSON:           r.StateJSON,
		LastPrompt:          stringPtr(r.LastPrompt),
		LastResponseSummary: stringPtr(r.LastResponseSummary),
		ModifiedFiles:       modifiedFiles,
		CheckpointCommit:    stringPtr(r.CheckpointCommit),
		TotalCostUSD:        r.TotalCostUSD,
		TotalTokens:         r.TotalTokens,
	}
	if r.CreatedAt.Valid {
		cp.CreatedAt = r.CreatedAt.Time
	}
	// A checkpoint whose embedded state fails to deserialize is surfaced
	// rather than silently dropped, per spec.md §4.4.
	if _, err := cp.RestoreState(); err != nil {
		return loopcfg.Checkpoint{}, apperr.Wrapf(apperr.CodeCheckpointCorrupted, err,
			"checkpoint %s: embedded state_json failed to deserialize", r.ID)
	}
	return cp, nil
}

// Save inserts cp and then prunes cp.CardID's checkpoints down to
// checkpoint.MaxCheckpointsPerCard, within a single transaction so both
// steps appear atomic to readers.
func (s *Store) Save(ctx context.Context, cp loopcfg.Checkpoint) error {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	modifiedFilesJSON, err := json.Marshal(cp.ModifiedFiles)
	if err != nil {
		return apperr.Wrap(apperr.CodeBadArgument, "marshaling modified_files", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "beginning checkpoint save transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loop_checkpoints (
			id, card_id, iteration, platform, subscription,
			state_json, last_prompt, last_response_summary,
			modified_files, checkpoint_commit,
			total_cost_usd, total_tokens, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, cp.ID, cp.CardID, cp.Iteration, cp.Platform, nullableString(cp.Subscription),
		cp.StateJSON, nullableString(cp.LastPrompt), nullableString(cp.LastResponseSummary),
		string(modifiedFilesJSON), nullableString(cp.CheckpointCommit),
		cp.TotalCostUSD, cp.TotalTokens, cp.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "inserting checkpoint", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM loop_checkpoints
		WHERE card_id = $1
		AND id NOT IN (
			SELECT id FROM loop_checkpoints
			WHERE card_id = $1
			ORDER BY iteration DESC
			LIMIT $2
		)
	`, cp.CardID, checkpoint.MaxCheckpointsPerCard)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "pruning old checkpoints", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "committing checkpoint save", err)
	}
	return nil
}

// Latest returns cardID's most recent checkpoint by iteration, or nil.
func (s *Store) Latest(ctx context.Context, cardID string) (*loopcfg.Checkpoint, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, card_id, iteration, platform, subscription,
		       state_json, last_prompt, last_response_summary,
		       modified_files, checkpoint_commit,
		       total_cost_usd, total_tokens, created_at
		FROM loop_checkpoints
		WHERE card_id = $1
		ORDER BY iteration DESC
		LIMIT 1
	`, cardID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "fetching latest checkpoint", err)
	}
	cp, err := row.toCheckpoint()
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// List returns every checkpoint for cardID, ordered by iteration desc.
func (s *Store) List(ctx context.Context, cardID string) ([]loopcfg.Checkpoint, error) {
	var rows []checkpointRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, card_id, iteration, platform, subscription,
		       state_json, last_prompt, last_response_summary,
		       modified_files, checkpoint_commit,
		       total_cost_usd, total_tokens, created_at
		FROM loop_checkpoints
		WHERE card_id = $1
		ORDER BY iteration DESC
	`, cardID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, "listing checkpoints", err)
	}
	out := make([]loopcfg.Checkpoint, 0, len(rows))
	for _, r := range rows {
		cp, err := r.toCheckpoint()
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// DeleteAll removes every checkpoint for cardID.
func (s *Store) DeleteAll(ctx context.Context, cardID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM loop_checkpoints WHERE card_id = $1`, cardID); err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "deleting checkpoints", err)
	}
	return nil
}

// HasResumable reports whether cardID has at least one checkpoint.
func (s *Store) HasResumable(ctx context.Context, cardID string) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM loop_checkpoints WHERE card_id = $1`, cardID); err != nil {
		return false, apperr.Wrap(apperr.CodeStorageError, "counting checkpoints", err)
	}
	return count > 0, nil
}
