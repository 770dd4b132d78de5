// Package history maintains the donation ledger and derives donor
// readiness inputs from it.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/bus"
	"github.com/lifelink-community/lifelink/internal/domain"
)

// Service reads and writes the donation ledger.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	bus   domain.EventBus
	now   func() time.Time
}

// NewService creates a new history service. cache and events may be nil.
func NewService(repo domain.Repository, cache domain.Cache, events domain.EventBus) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		bus:   events,
		now:   time.Now,
	}
}

// Summary returns the donation count and most recent donation for a donor.
func (s *Service) Summary(ctx context.Context, tenantID, donorID string) (*domain.DonorSummary, error) {
	if tenantID == "" || donorID == "" {
		return nil, fmt.Errorf("tenantID and donorID are required")
	}

	donations, err := s.repo.ListDonations(ctx, tenantID, donorID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}

	summary := &domain.DonorSummary{DonorID: donorID, DonationCount: len(donations)}
	for _, d := range donations {
		if summary.LastDonation == nil || d.DonatedAt.After(*summary.LastDonation) {
			t := d.DonatedAt
			summary.LastDonation = &t
		}
	}
	return summary, nil
}

// Enrich overlays ledger data onto donors. A donor's own LastDonation and
// DonationCount are kept when the ledger knows less than the profile.
func (s *Service) Enrich(ctx context.Context, tenantID string, donors []*domain.Donor) error {
	for _, d := range donors {
		summary, err := s.Summary(ctx, tenantID, d.ID)
		if err != nil {
			return err
		}
		if summary.DonationCount > d.DonationCount {
			d.DonationCount = summary.DonationCount
		}
		if summary.LastDonation != nil && (d.LastDonation == nil || summary.LastDonation.After(*d.LastDonation)) {
			d.LastDonation = summary.LastDonation
		}
	}
	return nil
}

// Record appends a donation, updates the donor profile and publishes a
// donation-recorded event.
func (s *Service) Record(ctx context.Context, tenantID string, donation *domain.Donation) (*domain.Donor, error) {
	donor, err := s.repo.GetDonor(ctx, tenantID, donation.DonorID)
	if err != nil {
		return nil, err
	}

	if donation.ID == "" {
		donation.ID = uuid.New().String()
	}
	if donation.DonatedAt.IsZero() {
		donation.DonatedAt = s.now().UTC()
	}
	donation.TenantID = tenantID

	if err := s.repo.SaveDonation(ctx, tenantID, donation); err != nil {
		return nil, fmt.Errorf("failed to save donation: %w", err)
	}

	donor.DonationCount++
	if donor.LastDonation == nil || donation.DonatedAt.After(*donor.LastDonation) {
		t := donation.DonatedAt
		donor.LastDonation = &t
	}
	if err := s.repo.SaveDonor(ctx, tenantID, donor); err != nil {
		return nil, fmt.Errorf("failed to update donor: %w", err)
	}

	if s.bus != nil {
		ev := domain.DonationRecordedEvent{
			DonationID: donation.ID,
			DonorID:    donation.DonorID,
			RequestID:  donation.RequestID,
		}
		if err := bus.PublishJSON(ctx, s.bus, tenantID, domain.TopicDonationRecorded, ev); err != nil {
			zap.L().Warn("failed to publish donation event",
				zap.String("tenant_id", tenantID),
				zap.String("donation_id", donation.ID),
				zap.Error(err),
			)
		}
	}

	// The donor's readiness changed, so their own ranking and the request
	// they gave to are stale.
	if s.cache != nil {
		_ = s.cache.InvalidateEvaluation(ctx, tenantID, domain.SubjectDonor, donor.ID)
		if donation.RequestID != "" {
			_ = s.cache.InvalidateEvaluation(ctx, tenantID, domain.SubjectRequest, donation.RequestID)
		}
	}

	return donor, nil
}
