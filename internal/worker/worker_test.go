package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink-community/lifelink/internal/bus"
	"github.com/lifelink-community/lifelink/internal/cache"
	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/history"
	"github.com/lifelink-community/lifelink/internal/ranking"
	"github.com/lifelink-community/lifelink/internal/repository"
	"github.com/lifelink-community/lifelink/internal/rules"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

const tenantID = "tenant-001"

type fixture struct {
	repo     *repository.SQLRepository
	cache    *cache.Cache
	bus      *bus.ChannelBus
	pipeline *Pipeline
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	c := cache.NewMemory(100)
	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	screening, err := rules.NewEngine()
	require.NoError(t, err)
	require.NoError(t, screening.LoadRules(rules.DefaultRules()))

	profiles := rules.NewProfileEngine()
	require.NoError(t, profiles.LoadProfiles(rules.DefaultProfiles()))

	ranker := ranking.NewRanker(scoring.NewScorer(nil), screening, profiles, 4)
	hist := history.NewService(repo, c, b)

	return &fixture{
		repo:     repo,
		cache:    c,
		bus:      b,
		pipeline: NewPipeline(repo, c, b, hist, ranker, opts),
	}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	donors := []*domain.Donor{
		{ID: "d1", BloodType: domain.BloodOMinus, Location: &domain.GeoPoint{Lat: 6.52, Lng: 3.38}, Available: true, DonationCount: 4},
		{ID: "d2", BloodType: domain.BloodOPlus, Location: &domain.GeoPoint{Lat: 6.60, Lng: 3.35}, Available: true},
		{ID: "d3", BloodType: domain.BloodOPlus, Available: false},
		{ID: "d4", BloodType: domain.BloodAPlus, Available: true},
	}
	for _, d := range donors {
		require.NoError(t, f.repo.SaveDonor(ctx, tenantID, d))
	}

	require.NoError(t, f.repo.SaveRequest(ctx, tenantID, &domain.BloodRequest{
		ID:        "req-001",
		Hospital:  "General",
		BloodType: domain.BloodOPlus,
		Urgency:   domain.UrgencyUrgent,
		Units:     2,
		Location:  &domain.GeoPoint{Lat: 6.52, Lng: 3.37},
	}))
}

func TestPipeline(t *testing.T) {
	ctx := context.Background()

	t.Run("RanksCompatibleAvailableDonors", func(t *testing.T) {
		f := newFixture(t, Options{AlertThreshold: 101})
		f.seed(t)

		eval, err := f.pipeline.MatchRequest(ctx, tenantID, MatchRequestInput{RequestID: "req-001", TraceID: "trace-1"})
		require.NoError(t, err)

		ids := make([]string, len(eval.Candidates))
		for i, c := range eval.Candidates {
			ids[i] = c.DonorID
		}
		assert.ElementsMatch(t, []string{"d1", "d2"}, ids)
		assert.Equal(t, domain.SubjectRequest, eval.Subject)
		assert.Equal(t, "req-001", eval.SubjectID)
		assert.Equal(t, "trace-1", eval.Metadata.TraceID)

		stored, err := f.repo.GetLatestEvaluation(ctx, tenantID, domain.SubjectRequest, "req-001")
		require.NoError(t, err)
		assert.Equal(t, eval.ID, stored.ID)

		cached, err := f.cache.GetEvaluation(ctx, tenantID, domain.SubjectRequest, "req-001")
		require.NoError(t, err)
		require.NotNil(t, cached)
		assert.Equal(t, eval.ID, cached.ID)
	})

	t.Run("LimitOverridesTopN", func(t *testing.T) {
		f := newFixture(t, Options{TopN: 10})
		f.seed(t)

		eval, err := f.pipeline.MatchRequest(ctx, tenantID, MatchRequestInput{RequestID: "req-001", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, eval.Candidates, 1)
	})

	t.Run("InvalidWeights", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.seed(t)

		_, err := f.pipeline.MatchRequest(ctx, tenantID, MatchRequestInput{
			RequestID: "req-001",
			Weights:   &domain.MatchWeights{},
		})
		assert.ErrorIs(t, err, scoring.ErrInvalidWeights)
	})

	t.Run("UnknownRequest", func(t *testing.T) {
		f := newFixture(t, Options{})

		_, err := f.pipeline.MatchRequest(ctx, tenantID, MatchRequestInput{RequestID: "missing"})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("ClosedRequest", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.seed(t)
		require.NoError(t, f.repo.UpdateRequestStatus(ctx, tenantID, "req-001", domain.RequestFulfilled))

		_, err := f.pipeline.MatchRequest(ctx, tenantID, MatchRequestInput{RequestID: "req-001"})
		assert.ErrorIs(t, err, ErrRequestClosed)
	})
}

func TestWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AlertThreshold: 0})
	f.seed(t)

	ranked := make(chan domain.MatchRankedEvent, 1)
	_, err := f.bus.Subscribe(ctx, tenantID, domain.TopicMatchRanked, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.MatchRankedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		ranked <- ev
		return nil
	})
	require.NoError(t, err)

	alerts := make(chan domain.DonorAlertEvent, 10)
	_, err = f.bus.Subscribe(ctx, tenantID, domain.TopicDonorAlert, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.DonorAlertEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		alerts <- ev
		return nil
	})
	require.NoError(t, err)

	w := NewWorker(f.bus, f.pipeline)

	t.Run("StartAndStats", func(t *testing.T) {
		require.NoError(t, w.Start(Config{TenantIDs: []string{tenantID}}))

		stats := w.GetStats()
		assert.Equal(t, 1, stats.SubscriptionCount)
		assert.Equal(t, []string{domain.TopicRequestCreated}, stats.Topics)
	})

	t.Run("RequestCreatedProducesRankingAndAlerts", func(t *testing.T) {
		payload, _ := json.Marshal(domain.RequestCreatedEvent{RequestID: "req-001", ProfileID: domain.ProfileEmergency})
		require.NoError(t, f.bus.Publish(ctx, tenantID, domain.TopicRequestCreated, payload))

		select {
		case ev := <-ranked:
			assert.Equal(t, "req-001", ev.SubjectID)
			assert.Equal(t, 2, ev.Candidates)
			assert.NotEmpty(t, ev.TopDonorID)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for ranking event")
		}

		got := map[string]bool{}
		for len(got) < 2 {
			select {
			case ev := <-alerts:
				assert.Equal(t, "req-001", ev.RequestID)
				assert.Equal(t, domain.UrgencyUrgent, ev.Urgency)
				got[ev.DonorID] = true
			case <-time.After(2 * time.Second):
				t.Fatalf("expected 2 donor alerts, got %d", len(got))
			}
		}

		stored, err := f.repo.GetLatestEvaluation(ctx, tenantID, domain.SubjectRequest, "req-001")
		require.NoError(t, err)
		assert.Equal(t, domain.ProfileEmergency, stored.ProfileID)
	})

	t.Run("Stop", func(t *testing.T) {
		require.NoError(t, w.Stop())
		assert.Equal(t, 0, w.GetStats().SubscriptionCount)
	})
}

func TestWorkerServesAllTenantsByDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AlertThreshold: 101})
	f.seed(t)

	ranked := make(chan *domain.Message, 1)
	_, err := f.bus.Subscribe(ctx, domain.AllTenants, domain.TopicMatchRanked, func(_ context.Context, msg *domain.Message) error {
		ranked <- msg
		return nil
	})
	require.NoError(t, err)

	w := NewWorker(f.bus, f.pipeline)
	require.NoError(t, w.Start(Config{}))
	defer w.Stop()

	require.NoError(t, bus.PublishJSON(ctx, f.bus, tenantID, domain.TopicRequestCreated,
		domain.RequestCreatedEvent{RequestID: "req-001"}))

	select {
	case msg := <-ranked:
		assert.Equal(t, tenantID, msg.TenantID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ranking event")
	}
}
