package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lifelink-community/lifelink/internal/domain"
)

// SaveScreeningRule stores a screening rule with tenant isolation.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screening_rules (
			id, tenant_id, name, description, version, expression, action, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			action = excluded.action,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(rule.Action), rule.Reason,
		boolToInt(rule.Enabled), now, now,
	)
	return err
}

// GetScreeningRule retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetScreeningRule(ctx context.Context, tenantID string, ruleID string) (*domain.ScreeningRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, action, reason, enabled
		FROM screening_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	rule, err := scanScreeningRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListScreeningRules retrieves all enabled screening rules for a tenant.
func (r *SQLRepository) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, action, reason, enabled
		FROM screening_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id, version
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ScreeningRule
	for rows.Next() {
		rule, err := scanScreeningRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}

	return out, rows.Err()
}

func scanScreeningRule(row rowScanner) (*domain.ScreeningRule, error) {
	var rule domain.ScreeningRule
	var description, reason sql.NullString
	var action string
	var enabled int

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description,
		&rule.Version, &rule.Expression, &action, &reason, &enabled,
	); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Reason = reason.String
	rule.Action = domain.ScreeningAction(action)
	rule.Enabled = enabled == 1
	return &rule, nil
}

// SaveProfile stores a weight profile with tenant isolation.
func (r *SQLRepository) SaveProfile(ctx context.Context, tenantID string, p *domain.WeightProfile) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	weights, _ := json.Marshal(p.Weights)
	now := time.Now().UTC()

	query := `
		INSERT INTO weight_profiles (
			id, tenant_id, name, description, version, weights, min_score, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			weights = excluded.weights,
			min_score = excluded.min_score,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.Name, p.Description,
		p.Version, string(weights), p.MinScore, boolToInt(p.Enabled),
		now, now,
	)
	return err
}

// GetProfile retrieves the latest enabled version of a weight profile.
func (r *SQLRepository) GetProfile(ctx context.Context, tenantID string, profileID string) (*domain.WeightProfile, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, version, weights, min_score, enabled, created_at, updated_at
		FROM weight_profiles
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	p, err := scanProfile(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, profileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListProfiles retrieves all enabled weight profiles for a tenant.
func (r *SQLRepository) ListProfiles(ctx context.Context, tenantID string) ([]*domain.WeightProfile, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, version, weights, min_score, enabled, created_at, updated_at
		FROM weight_profiles
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.WeightProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

// DeleteProfile soft-deletes a profile by setting enabled = 0.
func (r *SQLRepository) DeleteProfile(ctx context.Context, tenantID string, profileID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	query := `
		UPDATE weight_profiles
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, profileID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func scanProfile(row rowScanner) (*domain.WeightProfile, error) {
	var p domain.WeightProfile
	var description sql.NullString
	var weights string
	var enabled int

	if err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &description,
		&p.Version, &weights, &p.MinScore, &enabled,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Description = description.String
	p.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(weights), &p.Weights); err != nil {
		return nil, fmt.Errorf("failed to parse profile weights for %s: %w", p.ID, err)
	}
	return &p, nil
}
