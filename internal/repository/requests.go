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

const requestColumns = `id, tenant_id, patient_ref, hospital, blood_type, urgency, units, tags,
	lat, lng, status, created_at, updated_at`

// SaveRequest inserts or updates a blood request with tenant isolation.
func (r *SQLRepository) SaveRequest(ctx context.Context, tenantID string, req *domain.BloodRequest) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if req.ID == "" {
		return fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}

	tags, _ := json.Marshal(req.Tags)
	lat, lng := geoArgs(req.Location)

	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.Status == "" {
		req.Status = domain.RequestOpen
	}
	req.UpdatedAt = now

	query := `
		INSERT INTO blood_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			patient_ref = excluded.patient_ref,
			hospital = excluded.hospital,
			blood_type = excluded.blood_type,
			urgency = excluded.urgency,
			units = excluded.units,
			tags = excluded.tags,
			lat = excluded.lat,
			lng = excluded.lng,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		req.ID, tenantID, req.PatientRef, req.Hospital,
		string(req.BloodType), string(req.Urgency), req.Units, string(tags),
		lat, lng, string(req.Status),
		req.CreatedAt.UTC(), req.UpdatedAt,
	)
	return err
}

// GetRequest retrieves a blood request by ID with tenant isolation.
func (r *SQLRepository) GetRequest(ctx context.Context, tenantID string, requestID string) (*domain.BloodRequest, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + requestColumns + ` FROM blood_requests WHERE tenant_id = ? AND id = ?`

	req, err := scanRequest(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

// ListRequests returns requests matching the filter, oldest first.
func (r *SQLRepository) ListRequests(ctx context.Context, tenantID string, filter domain.RequestFilter) ([]*domain.BloodRequest, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + requestColumns + ` FROM blood_requests WHERE tenant_id = ?`
	args := []any{tenantID}

	if len(filter.BloodTypes) > 0 {
		query += ` AND blood_type IN (` + placeholders(len(filter.BloodTypes)) + `)`
		args = append(args, bloodTypeArgs(filter.BloodTypes)...)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.BloodRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// UpdateRequestStatus moves a request to a new lifecycle state.
func (r *SQLRepository) UpdateRequestStatus(ctx context.Context, tenantID string, requestID string, status domain.RequestStatus) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	query := `UPDATE blood_requests SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(status), time.Now().UTC(), tenantID, requestID)
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

func scanRequest(row rowScanner) (*domain.BloodRequest, error) {
	var req domain.BloodRequest
	var patientRef, hospital, tags sql.NullString
	var bloodType, urgency, status string
	var lat, lng sql.NullFloat64

	if err := row.Scan(
		&req.ID, &req.TenantID, &patientRef, &hospital,
		&bloodType, &urgency, &req.Units, &tags,
		&lat, &lng, &status, &req.CreatedAt, &req.UpdatedAt,
	); err != nil {
		return nil, err
	}

	req.PatientRef = patientRef.String
	req.Hospital = hospital.String
	req.BloodType = domain.BloodType(bloodType)
	req.Urgency = domain.Urgency(urgency)
	req.Status = domain.RequestStatus(status)
	req.Location = geoPoint(lat, lng)
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &req.Tags); err != nil {
			return nil, fmt.Errorf("failed to parse request tags: %w", err)
		}
	}

	return &req, nil
}
