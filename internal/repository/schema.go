package repository

// Schema definitions for the LifeLink database.
// Compatible with both SQLite and PostgreSQL.

const schemaDonors = `
CREATE TABLE IF NOT EXISTS donors (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    blood_type TEXT NOT NULL,
    lat REAL,
    lng REAL,
    distance_hint_km REAL,
    last_donation TIMESTAMP,
    donation_count INTEGER NOT NULL DEFAULT 0,
    social_engagement REAL NOT NULL DEFAULT 0,
    profile_completeness REAL NOT NULL DEFAULT 0,
    available INTEGER NOT NULL DEFAULT 1,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_donors_blood_type ON donors(tenant_id, blood_type, available);
`

const schemaDonations = `
CREATE TABLE IF NOT EXISTS donations (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    donor_id TEXT NOT NULL,
    request_id TEXT,
    volume_ml INTEGER NOT NULL DEFAULT 0,
    donated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_donations_donor ON donations(tenant_id, donor_id, donated_at);
`

const schemaRequests = `
CREATE TABLE IF NOT EXISTS blood_requests (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    patient_ref TEXT,
    hospital TEXT,
    blood_type TEXT NOT NULL,
    urgency TEXT NOT NULL,
    units INTEGER NOT NULL DEFAULT 1,
    tags TEXT,
    lat REAL,
    lng REAL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_requests_status ON blood_requests(tenant_id, status, blood_type);
`

const schemaScreeningRules = `
CREATE TABLE IF NOT EXISTS screening_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    action TEXT NOT NULL,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_screening_rules_enabled ON screening_rules(tenant_id, enabled);
`

// schemaProfiles holds weight profiles; weights are stored as JSON.
const schemaProfiles = `
CREATE TABLE IF NOT EXISTS weight_profiles (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    weights TEXT NOT NULL,
    min_score REAL NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_weight_profiles_enabled ON weight_profiles(tenant_id, enabled);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS match_evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    profile_id TEXT,
    weights TEXT NOT NULL,
    candidates TEXT NOT NULL,
    excluded TEXT,
    metadata TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_subject ON match_evaluations(tenant_id, subject, subject_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaDonors,
		schemaDonations,
		schemaRequests,
		schemaScreeningRules,
		schemaProfiles,
		schemaEvaluations,
	}
}
