package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink-community/lifelink/internal/api"
	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/output"
	"github.com/lifelink-community/lifelink/internal/repository"
	"github.com/lifelink-community/lifelink/internal/rules"
)

const fixedNow = "2026-03-01T12:00:00Z"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestScoreCommands(t *testing.T) {
	t.Run("Urgency", func(t *testing.T) {
		out, err := run(t, "score", "urgency", "--urgency", "Urgent", "--blood-type", "O-", "--now", fixedNow, "-o", "json")
		require.NoError(t, err)

		var got output.Score
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, 60.0, got.Value)
	})

	t.Run("UnknownBloodType", func(t *testing.T) {
		_, err := run(t, "score", "urgency", "--blood-type", "Q+", "-o", "json")
		assert.ErrorIs(t, err, domain.ErrUnknownBloodType)
	})

	t.Run("MatchWithExplicitWeights", func(t *testing.T) {
		out, err := run(t, "score", "match", "--rus", "50", "--drs", "60", "--distance", "10",
			"--request-type", "A+", "--donor-type", "O-", "--weights", "0.4,0.4,0.2", "-o", "json")
		require.NoError(t, err)

		var got output.Score
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.InDelta(t, 42.0, got.Value, 1e-9)
	})

	t.Run("MatchRejectsZeroWeights", func(t *testing.T) {
		_, err := run(t, "score", "match", "--request-type", "A+", "--donor-type", "O-", "--weights", "0,0,0", "-o", "json")
		assert.Error(t, err)
	})

	t.Run("Normalize", func(t *testing.T) {
		out, err := run(t, "score", "normalize", "10", "20", "30", "-o", "csv")
		require.NoError(t, err)

		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, []string{"20", "50.00"}, records[2])
	})
}

func TestCompatCommand(t *testing.T) {
	out, err := run(t, "compat", "O-", "-o", "json")
	require.NoError(t, err)

	var got output.Compatibility
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.CanDonateTo, 8)
	assert.Equal(t, []domain.BloodType{domain.BloodOMinus}, got.CanReceiveFrom)
}

func TestRankCommand(t *testing.T) {
	requestFile := writeFile(t, "request.json", domain.BloodRequest{
		ID: "req-1", BloodType: domain.BloodAPlus, Urgency: domain.UrgencyUrgent, Units: 1,
		Location: &domain.GeoPoint{Lat: 6.52, Lng: 3.37},
	})
	donorsFile := writeFile(t, "donors.json", []domain.Donor{
		{ID: "d1", BloodType: domain.BloodOMinus, Available: true, Location: &domain.GeoPoint{Lat: 6.52, Lng: 3.38}},
		{ID: "d2", BloodType: domain.BloodAPlus, Available: true},
		{ID: "d3", BloodType: domain.BloodBPlus, Available: true},
	})

	out, err := run(t, "rank", "--request", requestFile, "--donors", donorsFile, "--now", fixedNow, "-o", "json")
	require.NoError(t, err)

	var eval domain.MatchEvaluation
	require.NoError(t, json.Unmarshal([]byte(out), &eval))
	assert.Equal(t, "req-1", eval.SubjectID)
	require.Len(t, eval.Candidates, 2)
	for _, c := range eval.Candidates {
		assert.NotEqual(t, "d3", c.DonorID)
	}
}

func TestRankCommandRejectsNullEntries(t *testing.T) {
	requestFile := writeFile(t, "request.json", domain.BloodRequest{
		ID: "req-1", BloodType: domain.BloodAPlus, Urgency: domain.UrgencyUrgent, Units: 1,
	})
	donorsFile := writeFile(t, "donors.json", []*domain.Donor{
		{ID: "d1", BloodType: domain.BloodOMinus, Available: true},
		nil,
	})

	_, err := run(t, "rank", "--request", requestFile, "--donors", donorsFile, "--now", fixedNow, "-o", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1 is null")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
}

func TestLoadSettings(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "settings.db"),
	})
	require.NoError(t, err)
	defer repo.Close()

	screening, err := rules.NewEngine()
	require.NoError(t, err)
	profiles := rules.NewProfileEngine()

	require.NoError(t, loadSettings(ctx, repo, screening, profiles))
	assert.Equal(t, len(rules.DefaultRules()), screening.RulesCount())
	assert.Equal(t, len(rules.DefaultProfiles()), profiles.ProfileCount())

	// A stored profile edit survives a restart.
	p, err := repo.GetProfile(ctx, api.GlobalTenantID, domain.ProfileNearby)
	require.NoError(t, err)
	p.Enabled = false
	require.NoError(t, repo.SaveProfile(ctx, api.GlobalTenantID, p))

	profiles = rules.NewProfileEngine()
	require.NoError(t, loadSettings(ctx, repo, screening, profiles))
	assert.Equal(t, len(rules.DefaultProfiles())-1, profiles.ProfileCount())
}
