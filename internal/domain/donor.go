package domain

import (
	"time"
)

// Donor is a registered blood donor.
type Donor struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	BloodType BloodType `json:"bloodType"`

	// Location is optional; without it DistanceHintKm is used when present.
	Location       *GeoPoint `json:"location,omitempty"`
	DistanceHintKm *float64  `json:"distanceHintKm,omitempty"`

	// Donation history. LastDonation is nil for first-time donors.
	LastDonation  *time.Time `json:"lastDonation,omitempty"`
	DonationCount int        `json:"donationCount"`

	// Platform engagement signals, each on a 0-10 / 0-100 scale.
	SocialEngagement    float64 `json:"socialEngagement"`
	ProfileCompleteness float64 `json:"profileCompleteness"`

	Available bool                   `json:"available"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// ReadinessInput builds the readiness scoring input for this donor at the
// given pair distance. A nil distance means unknown.
func (d *Donor) ReadinessInput(distanceKm *float64) DonorReadinessInput {
	return DonorReadinessInput{
		LastDonation:        d.LastDonation,
		DonationCount:       d.DonationCount,
		Distance:            distanceKm,
		SocialEngagement:    d.SocialEngagement,
		ProfileCompleteness: d.ProfileCompleteness,
		BloodType:           d.BloodType,
	}
}

// Donation is one entry in a donor's donation ledger.
type Donation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	DonorID   string    `json:"donorId"`
	RequestID string    `json:"requestId,omitempty"`
	VolumeML  int       `json:"volumeMl"`
	DonatedAt time.Time `json:"donatedAt"`
}

// DonorSummary aggregates a donor's ledger.
type DonorSummary struct {
	DonorID       string     `json:"donorId"`
	DonationCount int        `json:"donationCount"`
	LastDonation  *time.Time `json:"lastDonation,omitempty"`
}
