// Package domain defines the core interfaces and types for LifeLink.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Donor operations
	SaveDonor(ctx context.Context, tenantID string, donor *Donor) error
	GetDonor(ctx context.Context, tenantID string, donorID string) (*Donor, error)
	ListDonors(ctx context.Context, tenantID string, filter DonorFilter) ([]*Donor, error)

	// Donation ledger
	SaveDonation(ctx context.Context, tenantID string, donation *Donation) error
	ListDonations(ctx context.Context, tenantID string, donorID string, since time.Time) ([]*Donation, error)

	// Blood request operations
	SaveRequest(ctx context.Context, tenantID string, req *BloodRequest) error
	GetRequest(ctx context.Context, tenantID string, requestID string) (*BloodRequest, error)
	ListRequests(ctx context.Context, tenantID string, filter RequestFilter) ([]*BloodRequest, error)
	UpdateRequestStatus(ctx context.Context, tenantID string, requestID string, status RequestStatus) error

	// Screening rule operations
	SaveScreeningRule(ctx context.Context, tenantID string, rule *ScreeningRule) error
	GetScreeningRule(ctx context.Context, tenantID string, ruleID string) (*ScreeningRule, error)
	ListScreeningRules(ctx context.Context, tenantID string) ([]*ScreeningRule, error)

	// Weight profile operations
	SaveProfile(ctx context.Context, tenantID string, profile *WeightProfile) error
	GetProfile(ctx context.Context, tenantID string, profileID string) (*WeightProfile, error)
	ListProfiles(ctx context.Context, tenantID string) ([]*WeightProfile, error)
	DeleteProfile(ctx context.Context, tenantID string, profileID string) error

	// Match evaluations
	SaveEvaluation(ctx context.Context, tenantID string, eval *MatchEvaluation) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*MatchEvaluation, error)
	GetLatestEvaluation(ctx context.Context, tenantID string, subject, subjectID string) (*MatchEvaluation, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// DonorFilter narrows ListDonors. Zero values mean "any".
type DonorFilter struct {
	BloodTypes    []BloodType
	AvailableOnly bool
	Limit         int
}

// RequestFilter narrows ListRequests. Zero values mean "any".
type RequestFilter struct {
	BloodTypes []BloodType
	Status     RequestStatus
	Limit      int
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "pgx"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlitePath"`

	// PostgreSQL specific (used by both "postgres" and "pgx")
	PostgresHost     string `mapstructure:"postgresHost"`
	PostgresPort     int    `mapstructure:"postgresPort"`
	PostgresUser     string `mapstructure:"postgresUser"`
	PostgresPassword string `mapstructure:"postgresPassword"`
	PostgresDB       string `mapstructure:"postgresDb"`
	PostgresSSLMode  string `mapstructure:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}
