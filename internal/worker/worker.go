// Package worker ranks donors for newly posted blood requests off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/bus"
	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/history"
	"github.com/lifelink-community/lifelink/internal/metrics"
	"github.com/lifelink-community/lifelink/internal/ranking"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

// ErrRequestClosed is returned when ranking a request that is no longer open.
var ErrRequestClosed = errors.New("request is not open")

// Options tune the request matching pipeline.
type Options struct {
	// TopN caps the candidates stored per evaluation. Zero keeps all.
	TopN int

	// AlertThreshold is the minimum score for a donor alert on Urgent requests.
	AlertThreshold float64

	// EvaluationTTL is how long a ranking stays in the cache.
	EvaluationTTL time.Duration
}

// MatchRequestInput selects the request and weighting for one ranking run.
type MatchRequestInput struct {
	RequestID string
	TraceID   string
	ProfileID string
	Weights   *domain.MatchWeights
	Limit     int
}

// Pipeline loads a request and its candidate donors, ranks them and fans
// the result out to storage, cache and bus. The HTTP API runs it
// synchronously; the Worker runs it for request.created events.
type Pipeline struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	history *history.Service
	ranker  *ranking.Ranker
	opts    Options
}

// NewPipeline creates a pipeline. cache, eventBus and hist may be nil.
func NewPipeline(repo domain.Repository, cache domain.Cache, eventBus domain.EventBus, hist *history.Service, ranker *ranking.Ranker, opts Options) *Pipeline {
	if opts.EvaluationTTL <= 0 {
		opts.EvaluationTTL = 5 * time.Minute
	}
	return &Pipeline{
		repo:    repo,
		cache:   cache,
		bus:     eventBus,
		history: hist,
		ranker:  ranker,
		opts:    opts,
	}
}

// MatchRequest ranks the compatible, available donors for a request.
func (p *Pipeline) MatchRequest(ctx context.Context, tenantID string, in MatchRequestInput) (*domain.MatchEvaluation, error) {
	start := time.Now()

	req, err := p.repo.GetRequest(ctx, tenantID, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestOpen {
		return nil, fmt.Errorf("%w: %s is %s", ErrRequestClosed, req.ID, req.Status)
	}

	donors, err := p.repo.ListDonors(ctx, tenantID, domain.DonorFilter{
		BloodTypes:    scoring.CompatibleDonors(req.BloodType),
		AvailableOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list donors: %w", err)
	}

	if p.history != nil {
		if err := p.history.Enrich(ctx, tenantID, donors); err != nil {
			return nil, fmt.Errorf("failed to load donation history: %w", err)
		}
	}

	limit := in.Limit
	if limit <= 0 {
		limit = p.opts.TopN
	}

	eval, err := p.ranker.RankDonors(ctx, &ranking.DonorRankInput{
		TenantID:  tenantID,
		TraceID:   in.TraceID,
		Request:   req,
		Donors:    donors,
		Weights:   in.Weights,
		ProfileID: in.ProfileID,
		Limit:     limit,
		StartTime: start,
	})
	if err != nil {
		return nil, err
	}

	if err := p.repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
		return nil, fmt.Errorf("failed to save evaluation: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.SetEvaluation(ctx, tenantID, eval, p.opts.EvaluationTTL); err != nil {
			zap.L().Warn("failed to cache evaluation",
				zap.String("evaluation_id", eval.ID),
				zap.Error(err),
			)
		}
	}

	p.publish(ctx, tenantID, req, eval)

	return eval, nil
}

// publish emits match.ranked and one donor.alert per qualifying candidate.
func (p *Pipeline) publish(ctx context.Context, tenantID string, req *domain.BloodRequest, eval *domain.MatchEvaluation) {
	if p.bus == nil {
		return
	}

	ranked := domain.MatchRankedEvent{
		EvaluationID: eval.ID,
		Subject:      eval.Subject,
		SubjectID:    eval.SubjectID,
		Candidates:   len(eval.Candidates),
	}
	if top := eval.Top(); top != nil {
		ranked.TopDonorID = top.DonorID
		ranked.TopScore = top.Score
	}
	if err := bus.PublishJSON(ctx, p.bus, tenantID, domain.TopicMatchRanked, ranked); err != nil {
		zap.L().Error("failed to publish ranking",
			zap.String("evaluation_id", eval.ID),
			zap.Error(err),
		)
	}

	for _, c := range ranking.AlertCandidates(req, eval, p.opts.AlertThreshold) {
		alert := domain.DonorAlertEvent{
			DonorID:   c.DonorID,
			RequestID: req.ID,
			Urgency:   req.Urgency,
			Score:     c.Score,
		}
		if err := bus.PublishJSON(ctx, p.bus, tenantID, domain.TopicDonorAlert, alert); err != nil {
			zap.L().Error("failed to publish donor alert",
				zap.String("donor_id", c.DonorID),
				zap.String("request_id", req.ID),
				zap.Error(err),
			)
			continue
		}
		metrics.DonorAlerts.Inc()
	}
}

// Worker consumes request.created events from the EventBus.
type Worker struct {
	bus      domain.EventBus
	pipeline *Pipeline

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = every tenant).
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, pipeline *Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      eventBus,
		pipeline: pipeline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to request.created for the given tenants.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.startTenantWorker(tenantID); err != nil {
			zap.L().Error("failed to start worker for tenant",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no tenant worker could subscribe")
	}

	zap.L().Info("workers started", zap.Int("tenant_count", started))
	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRequestCreated, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	zap.L().Info("tenant worker started",
		zap.String("tenant_id", tenantID),
		zap.String("topic", domain.TopicRequestCreated),
	)
	return nil
}

// processRequest ranks donors for the request named in the event.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	metrics.WorkerJobsActive.Inc()
	defer metrics.WorkerJobsActive.Dec()

	start := time.Now()

	var ev domain.RequestCreatedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		zap.L().Error("failed to parse request event",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return err
	}

	// Messages on the all-tenants subscription carry their own tenant.
	if msg.TenantID != "" {
		tenantID = msg.TenantID
	}

	traceID := msg.ID
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	eval, err := w.pipeline.MatchRequest(ctx, tenantID, MatchRequestInput{
		RequestID: ev.RequestID,
		TraceID:   traceID,
		ProfileID: ev.ProfileID,
	})
	if err != nil {
		zap.L().Error("request matching failed",
			zap.String("request_id", ev.RequestID),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return err
	}

	zap.L().Info("request matched",
		zap.String("request_id", ev.RequestID),
		zap.String("tenant_id", tenantID),
		zap.Int("candidates", len(eval.Candidates)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// Stop unsubscribes all tenant workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			zap.L().Error("failed to unsubscribe",
				zap.String("topic", sub.Topic()),
				zap.Error(err),
			)
		}
	}
	w.subscriptions = nil

	zap.L().Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
