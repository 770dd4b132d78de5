// Package rules provides the CEL-Go based screening engine and the
// weight profile registry used by the ranker.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

// Engine is the CEL-based screening engine.
// Rules are compiled once and evaluated against every candidate pair.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.ScreeningRule
	Program cel.Program
}

// NewEngine creates a new screening engine.
func NewEngine() (*Engine, error) {
	// Create CEL environment with pair variables
	env, err := cel.NewEnv(
		cel.Variable("donor", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("distance_km", cel.DoubleType),
		cel.Variable("distance_known", cel.BoolType),
		cel.Variable("days_since_donation", cel.DoubleType),
		cel.Variable("donor_blood_type", cel.StringType),
		cel.Variable("request_blood_type", cel.StringType),
		cel.Variable("urgency", cel.StringType),
		cel.Variable("donation_count", cel.IntType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("compatible", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.ScreeningRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *Engine) LoadRules(configs []*domain.ScreeningRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ScreenInput is one candidate pair.
type ScreenInput struct {
	Donor      *domain.Donor
	Request    *domain.BloodRequest
	DistanceKm *float64
	Compatible bool
	Now        time.Time
}

// ScreenOutcome is the result of screening one pair.
type ScreenOutcome struct {
	Excluded       bool
	ExcludedBy     string
	Reason         string
	Flags          []string
	RulesEvaluated int
}

// Screen evaluates every loaded rule against the pair, in rule ID order.
// The first exclude rule that matches removes the pair; flag rules attach
// their reason. Evaluation errors become flags and never exclude.
func (e *Engine) Screen(ctx context.Context, in *ScreenInput) ScreenOutcome {
	rules := e.snapshot()

	var out ScreenOutcome
	if len(rules) == 0 {
		return out
	}

	activation := buildActivation(in)

	for _, rule := range rules {
		if ctx.Err() != nil {
			break
		}
		out.RulesEvaluated++

		matched, err := evaluateRule(rule, activation)
		if err != nil {
			out.Flags = append(out.Flags, fmt.Sprintf("rule %s error: %v", rule.Config.ID, err))
			continue
		}
		if !matched {
			continue
		}

		switch rule.Config.Action {
		case domain.ActionExclude:
			out.Excluded = true
			out.ExcludedBy = rule.Config.ID
			out.Reason = reasonOf(rule.Config)
			return out
		default:
			out.Flags = append(out.Flags, reasonOf(rule.Config))
		}
	}

	return out
}

func (e *Engine) snapshot() []*CompiledRule {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })
	return rules
}

func buildActivation(in *ScreenInput) map[string]any {
	donor, req := in.Donor, in.Request

	distance, known := 100.0, false
	if in.DistanceKm != nil {
		distance, known = *in.DistanceKm, true
	}

	daysSince := -1.0
	if donor.LastDonation != nil {
		daysSince = in.Now.Sub(*donor.LastDonation).Hours() / 24
	}

	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	metadata := donor.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return map[string]any{
		"donor": map[string]any{
			"id":                   donor.ID,
			"name":                 donor.Name,
			"blood_type":           string(donor.BloodType),
			"donation_count":       int64(donor.DonationCount),
			"social_engagement":    donor.SocialEngagement,
			"profile_completeness": donor.ProfileCompleteness,
			"available":            donor.Available,
			"metadata":             metadata,
		},
		"request": map[string]any{
			"id":         req.ID,
			"blood_type": string(req.BloodType),
			"urgency":    string(req.Urgency),
			"units":      int64(req.Units),
			"hospital":   req.Hospital,
			"status":     string(req.Status),
			"tags":       tags,
		},
		"distance_km":         distance,
		"distance_known":      known,
		"days_since_donation": daysSince,
		"donor_blood_type":    string(donor.BloodType),
		"request_blood_type":  string(req.BloodType),
		"urgency":             string(req.Urgency),
		"donation_count":      int64(donor.DonationCount),
		"tags":                tags,
		"compatible":          in.Compatible,
	}
}

func evaluateRule(rule *CompiledRule, activation map[string]any) (bool, error) {
	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression returned %s, want bool", out.Type())
	}
	return bool(b), nil
}

func reasonOf(cfg *domain.ScreeningRule) string {
	if cfg.Reason != "" {
		return cfg.Reason
	}
	return cfg.Name
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// Either every enabled rule compiles and replaces the set, or nothing changes.
func (e *Engine) ReloadRules(configs []*domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.ScreeningRule {
	rules := e.snapshot()
	out := make([]*domain.ScreeningRule, 0, len(rules))
	for _, compiled := range rules {
		out = append(out, compiled.Config)
	}
	return out
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.ScreeningRule) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	switch cfg.Action {
	case domain.ActionExclude, domain.ActionFlag:
	default:
		return nil, fmt.Errorf("rule %s: action must be %q or %q, got %q",
			cfg.ID, domain.ActionExclude, domain.ActionFlag, cfg.Action)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if !outputType.IsExactType(cel.BoolType) && !outputType.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

// CompatibilityGate is a stock rule excluding ABO/Rh-incompatible pairs
// before scoring. Incompatible pairs already score 0; excluding them keeps
// them out of the normalized ranking.
func CompatibilityGate() *domain.ScreeningRule {
	return &domain.ScreeningRule{
		ID:          "rule-compatibility-gate",
		Name:        "Blood type compatibility",
		Description: "Exclude donors whose blood cannot be given to the recipient",
		Version:     "1.0.0",
		Expression:  "!compatible",
		Action:      domain.ActionExclude,
		Reason:      "incompatible blood type",
		Enabled:     true,
	}
}

// DeferralRule flags donors still inside the whole-blood deferral window.
func DeferralRule() *domain.ScreeningRule {
	return &domain.ScreeningRule{
		ID:          "rule-deferral-window",
		Name:        "Donation deferral window",
		Description: "Flag donors who donated fewer than 56 days ago",
		Version:     "1.0.0",
		Expression:  "days_since_donation >= 0.0 && days_since_donation < 56.0",
		Action:      domain.ActionFlag,
		Reason:      "inside 56-day deferral window",
		Enabled:     true,
	}
}

// DefaultRules returns the stock screening rules seeded for new tenants.
func DefaultRules() []*domain.ScreeningRule {
	return []*domain.ScreeningRule{CompatibilityGate(), DeferralRule()}
}

// IsCompatible is a convenience wrapper used when building ScreenInput.
func IsCompatible(donor *domain.Donor, req *domain.BloodRequest) bool {
	return scoring.CanDonate(donor.BloodType, req.BloodType)
}
