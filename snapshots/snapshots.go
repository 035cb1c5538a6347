// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/quorum/models"
)

var ErrNotFound = errors.New("snapshot not found")

// Fixed width so computed_at sorts correctly as TEXT
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists compiled reports per scope, keyed by inputs hash.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Save stores report for scopeKey under inputsKey, normally the report's
// inputs hash. If the scope already has a snapshot for inputsKey it is
// returned instead, with Reused set.
func (s *Store) Save(ctx context.Context, scopeKey, inputsKey string, report *models.CompileReport) (models.Snapshot, error) {
	if inputsKey != "" {
		existing, err := s.FindByHash(ctx, scopeKey, inputsKey)
		if err == nil {
			existing.Reused = true
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return models.Snapshot{}, err
		}
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to encode report: %w", err)
	}

	snap := models.Snapshot{
		ID:         uuid.NewString(),
		ScopeKey:   scopeKey,
		InputsHash: inputsKey,
		ComputedAt: s.now().UTC(),
		Report:     *report,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consensus_snapshot (id, scope_key, inputs_hash, computed_at, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.ID, snap.ScopeKey, snap.InputsHash, snap.ComputedAt.Format(timeLayout), string(payload))
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to store snapshot: %w", err)
	}
	return snap, nil
}

// FindByHash returns the newest snapshot of scopeKey computed from inputsHash.
func (s *Store) FindByHash(ctx context.Context, scopeKey, inputsHash string) (models.Snapshot, error) {
	return s.queryOne(ctx, `
		SELECT id, scope_key, inputs_hash, computed_at, payload
		FROM consensus_snapshot
		WHERE scope_key = $1 AND inputs_hash = $2
		ORDER BY computed_at DESC, id DESC
		LIMIT 1
	`, scopeKey, inputsHash)
}

// Latest returns the most recently computed snapshot of scopeKey.
func (s *Store) Latest(ctx context.Context, scopeKey string) (models.Snapshot, error) {
	return s.queryOne(ctx, `
		SELECT id, scope_key, inputs_hash, computed_at, payload
		FROM consensus_snapshot
		WHERE scope_key = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT 1
	`, scopeKey)
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (models.Snapshot, error) {
	var snap models.Snapshot
	var computedAt, payload string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&snap.ID, &snap.ScopeKey, &snap.InputsHash, &computedAt, &payload,
	)
	if err == sql.ErrNoRows {
		return models.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to query snapshot: %w", err)
	}

	snap.ComputedAt, err = time.Parse(timeLayout, computedAt)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to parse snapshot time: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &snap.Report); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to parse snapshot payload: %w", err)
	}
	return snap, nil
}
