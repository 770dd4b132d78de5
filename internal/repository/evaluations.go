package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lifelink-community/lifelink/internal/domain"
)

// SaveEvaluation stores a match evaluation with tenant isolation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.MatchEvaluation) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	weights, _ := json.Marshal(eval.Weights)
	candidates, _ := json.Marshal(eval.Candidates)
	excluded, _ := json.Marshal(eval.Excluded)
	metadata, _ := json.Marshal(eval.Metadata)

	query := `
		INSERT INTO match_evaluations (
			id, tenant_id, subject, subject_id, profile_id,
			weights, candidates, excluded, metadata, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, tenantID, eval.Subject, eval.SubjectID, eval.ProfileID,
		string(weights), string(candidates), string(excluded), string(metadata),
		eval.Timestamp.UTC(),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.MatchEvaluation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, subject, subject_id, profile_id,
			   weights, candidates, excluded, metadata, timestamp
		FROM match_evaluations
		WHERE tenant_id = ? AND id = ?
	`

	eval, err := scanEvaluation(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return eval, err
}

// GetLatestEvaluation retrieves the newest evaluation for a subject.
func (r *SQLRepository) GetLatestEvaluation(ctx context.Context, tenantID string, subject, subjectID string) (*domain.MatchEvaluation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, subject, subject_id, profile_id,
			   weights, candidates, excluded, metadata, timestamp
		FROM match_evaluations
		WHERE tenant_id = ? AND subject = ? AND subject_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	eval, err := scanEvaluation(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, subject, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return eval, err
}

func scanEvaluation(row rowScanner) (*domain.MatchEvaluation, error) {
	var eval domain.MatchEvaluation
	var profileID, excluded sql.NullString
	var weights, candidates, metadata string

	if err := row.Scan(
		&eval.ID, &eval.TenantID, &eval.Subject, &eval.SubjectID, &profileID,
		&weights, &candidates, &excluded, &metadata, &eval.Timestamp,
	); err != nil {
		return nil, err
	}

	eval.ProfileID = profileID.String
	json.Unmarshal([]byte(weights), &eval.Weights)
	json.Unmarshal([]byte(candidates), &eval.Candidates)
	if excluded.Valid {
		json.Unmarshal([]byte(excluded.String), &eval.Excluded)
	}
	json.Unmarshal([]byte(metadata), &eval.Metadata)

	return &eval, nil
}
