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

const donorColumns = `id, tenant_id, name, blood_type, lat, lng, distance_hint_km, last_donation,
	donation_count, social_engagement, profile_completeness, available, metadata, created_at, updated_at`

// SaveDonor inserts or updates a donor with tenant isolation.
func (r *SQLRepository) SaveDonor(ctx context.Context, tenantID string, d *domain.Donor) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if d.ID == "" {
		return fmt.Errorf("%w: donor id is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(d.Metadata)
	lat, lng := geoArgs(d.Location)

	var last sql.NullTime
	if d.LastDonation != nil {
		last = sql.NullTime{Time: d.LastDonation.UTC(), Valid: true}
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	query := `
		INSERT INTO donors (` + donorColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			blood_type = excluded.blood_type,
			lat = excluded.lat,
			lng = excluded.lng,
			distance_hint_km = excluded.distance_hint_km,
			last_donation = excluded.last_donation,
			donation_count = excluded.donation_count,
			social_engagement = excluded.social_engagement,
			profile_completeness = excluded.profile_completeness,
			available = excluded.available,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, tenantID, d.Name, string(d.BloodType),
		lat, lng, nullFloat(d.DistanceHintKm), last,
		d.DonationCount, d.SocialEngagement, d.ProfileCompleteness,
		boolToInt(d.Available), string(metadata),
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

// GetDonor retrieves a donor by ID with tenant isolation.
func (r *SQLRepository) GetDonor(ctx context.Context, tenantID string, donorID string) (*domain.Donor, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + donorColumns + ` FROM donors WHERE tenant_id = ? AND id = ?`

	d, err := scanDonor(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, donorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDonors returns donors matching the filter, ordered by ID.
func (r *SQLRepository) ListDonors(ctx context.Context, tenantID string, filter domain.DonorFilter) ([]*domain.Donor, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + donorColumns + ` FROM donors WHERE tenant_id = ?`
	args := []any{tenantID}

	if len(filter.BloodTypes) > 0 {
		query += ` AND blood_type IN (` + placeholders(len(filter.BloodTypes)) + `)`
		args = append(args, bloodTypeArgs(filter.BloodTypes)...)
	}
	if filter.AvailableOnly {
		query += ` AND available = 1`
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var donors []*domain.Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, err
		}
		donors = append(donors, d)
	}

	return donors, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDonor(row rowScanner) (*domain.Donor, error) {
	var d domain.Donor
	var bloodType string
	var lat, lng, hint sql.NullFloat64
	var last sql.NullTime
	var available int
	var metadata sql.NullString

	if err := row.Scan(
		&d.ID, &d.TenantID, &d.Name, &bloodType,
		&lat, &lng, &hint, &last,
		&d.DonationCount, &d.SocialEngagement, &d.ProfileCompleteness,
		&available, &metadata, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	d.BloodType = domain.BloodType(bloodType)
	d.Location = geoPoint(lat, lng)
	d.DistanceHintKm = floatPtr(hint)
	if last.Valid {
		t := last.Time
		d.LastDonation = &t
	}
	d.Available = available == 1
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		json.Unmarshal([]byte(metadata.String), &d.Metadata)
	}

	return &d, nil
}

// SaveDonation appends a donation to the ledger.
func (r *SQLRepository) SaveDonation(ctx context.Context, tenantID string, donation *domain.Donation) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if donation.ID == "" || donation.DonorID == "" {
		return fmt.Errorf("%w: donation id and donor id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO donations (id, tenant_id, donor_id, request_id, volume_ml, donated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		donation.ID, tenantID, donation.DonorID,
		sql.NullString{String: donation.RequestID, Valid: donation.RequestID != ""},
		donation.VolumeML, donation.DonatedAt.UTC(),
	)
	return err
}

// ListDonations returns a donor's donations since a point in time, newest first.
func (r *SQLRepository) ListDonations(ctx context.Context, tenantID string, donorID string, since time.Time) ([]*domain.Donation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, donor_id, request_id, volume_ml, donated_at
		FROM donations
		WHERE tenant_id = ? AND donor_id = ? AND donated_at >= ?
		ORDER BY donated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, donorID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var donations []*domain.Donation
	for rows.Next() {
		var d domain.Donation
		var requestID sql.NullString
		if err := rows.Scan(&d.ID, &d.TenantID, &d.DonorID, &requestID, &d.VolumeML, &d.DonatedAt); err != nil {
			return nil, err
		}
		d.RequestID = requestID.String
		donations = append(donations, &d)
	}

	return donations, rows.Err()
}
