package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lifelink-community/lifelink/internal/domain"
)

var screenNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func pair(donorType, reqType domain.BloodType) *ScreenInput {
	d := 12.0
	return &ScreenInput{
		Donor: &domain.Donor{
			ID:            "donor-001",
			Name:          "Ada",
			BloodType:     donorType,
			DonationCount: 4,
			Available:     true,
		},
		Request: &domain.BloodRequest{
			ID:        "req-001",
			BloodType: reqType,
			Urgency:   domain.UrgencyUrgent,
			Units:     2,
			Tags:      []string{"surgery"},
			Status:    domain.RequestOpen,
		},
		DistanceKm: &d,
		Compatible: IsCompatible(&domain.Donor{BloodType: donorType}, &domain.BloodRequest{BloodType: reqType}),
		Now:        screenNow,
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}

	out := engine.Screen(context.Background(), pair(domain.BloodOMinus, domain.BloodAPlus))
	if out.Excluded || len(out.Flags) != 0 || out.RulesEvaluated != 0 {
		t.Errorf("empty engine should pass everything, got %+v", out)
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "far-away",
		Name:       "Far away",
		Expression: "distance_km > 50.0",
		Action:     domain.ActionExclude,
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	cases := map[string]*domain.ScreeningRule{
		"syntax":     {ID: "bad-syntax", Expression: "this is not valid CEL !!!", Action: domain.ActionFlag},
		"non-bool":   {ID: "non-bool", Expression: "distance_km * 2.0", Action: domain.ActionFlag},
		"bad-action": {ID: "bad-action", Expression: "compatible", Action: "delete"},
		"no-id":      {Expression: "compatible", Action: domain.ActionFlag},
		"unknown":    {ID: "unknown-var", Expression: "amount > 3.0", Action: domain.ActionFlag},
	}

	for name, rule := range cases {
		if err := engine.LoadRule(rule); err == nil {
			t.Errorf("%s: expected error", name)
		}
		if err := engine.ValidateRule(rule); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	if engine.RulesCount() != 0 {
		t.Errorf("invalid rules must not be loaded, got %d", engine.RulesCount())
	}
}

func TestScreenExclude(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	if err := engine.LoadRules(DefaultRules()); err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	ctx := context.Background()

	out := engine.Screen(ctx, pair(domain.BloodABPlus, domain.BloodAPlus))
	if !out.Excluded {
		t.Fatal("AB+ donor for A+ request should be excluded")
	}
	if out.ExcludedBy != "rule-compatibility-gate" {
		t.Errorf("expected compatibility gate, got %s", out.ExcludedBy)
	}
	if out.Reason != "incompatible blood type" {
		t.Errorf("unexpected reason %q", out.Reason)
	}

	out = engine.Screen(ctx, pair(domain.BloodOMinus, domain.BloodAPlus))
	if out.Excluded {
		t.Errorf("O- donor should not be excluded: %+v", out)
	}
	if out.RulesEvaluated != 2 {
		t.Errorf("expected 2 rules evaluated, got %d", out.RulesEvaluated)
	}
}

func TestScreenFlag(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRules(DefaultRules())

	in := pair(domain.BloodOMinus, domain.BloodAPlus)
	last := screenNow.Add(-20 * 24 * time.Hour)
	in.Donor.LastDonation = &last

	out := engine.Screen(context.Background(), in)
	if out.Excluded {
		t.Fatalf("flag rule must not exclude: %+v", out)
	}
	if len(out.Flags) != 1 || out.Flags[0] != "inside 56-day deferral window" {
		t.Errorf("unexpected flags %v", out.Flags)
	}

	// first-time donors have days_since_donation = -1
	out = engine.Screen(context.Background(), pair(domain.BloodOMinus, domain.BloodAPlus))
	if len(out.Flags) != 0 {
		t.Errorf("first-time donor should not be flagged: %v", out.Flags)
	}
}

func TestScreenVariables(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rules := []*domain.ScreeningRule{
		{ID: "a-tags", Expression: "'surgery' in tags && urgency == 'Urgent'", Action: domain.ActionFlag, Reason: "surgical urgent", Enabled: true},
		{ID: "b-maps", Expression: "donor.donation_count >= 3 && request.units == 2", Action: domain.ActionFlag, Reason: "maps", Enabled: true},
		{ID: "c-types", Expression: "donor_blood_type == 'O-' && request_blood_type == 'A+'", Action: domain.ActionFlag, Reason: "types", Enabled: true},
		{ID: "d-distance", Expression: "distance_known && distance_km < 20.0", Action: domain.ActionFlag, Reason: "close", Enabled: true},
		{ID: "e-disabled", Expression: "true", Action: domain.ActionExclude, Enabled: false},
	}
	if err := engine.LoadRules(rules); err != nil {
		t.Fatalf("load: %v", err)
	}
	if engine.RulesCount() != 4 {
		t.Fatalf("disabled rule should be skipped, got %d rules", engine.RulesCount())
	}

	out := engine.Screen(context.Background(), pair(domain.BloodOMinus, domain.BloodAPlus))
	want := []string{"surgical urgent", "maps", "types", "close"}
	if strings.Join(out.Flags, ",") != strings.Join(want, ",") {
		t.Errorf("flags = %v, want %v (rule ID order)", out.Flags, want)
	}
}

func TestScreenEvaluationError(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	// metadata has no "vip" key: runtime error, recorded as flag
	engine.LoadRule(&domain.ScreeningRule{
		ID:         "meta",
		Expression: "donor.metadata.vip == true",
		Action:     domain.ActionExclude,
		Enabled:    true,
	})

	out := engine.Screen(context.Background(), pair(domain.BloodOMinus, domain.BloodAPlus))
	if out.Excluded {
		t.Error("evaluation errors must not exclude")
	}
	if len(out.Flags) != 1 || !strings.HasPrefix(out.Flags[0], "rule meta error:") {
		t.Errorf("expected error flag, got %v", out.Flags)
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRules(DefaultRules())

	err := engine.ReloadRules([]*domain.ScreeningRule{
		{ID: "only", Expression: "compatible", Action: domain.ActionFlag, Enabled: true},
	})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule after reload, got %d", engine.RulesCount())
	}

	// a broken rule rejects the whole reload
	err = engine.ReloadRules([]*domain.ScreeningRule{
		{ID: "ok", Expression: "compatible", Action: domain.ActionFlag, Enabled: true},
		{ID: "broken", Expression: "((", Action: domain.ActionFlag, Enabled: true},
	})
	if err == nil {
		t.Fatal("expected reload error")
	}
	loaded := engine.GetLoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "only" {
		t.Errorf("failed reload must keep previous rules, got %v", loaded)
	}
}

func TestConcurrentScreening(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRules(DefaultRules())

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			donorType := domain.AllBloodTypes[i%len(domain.AllBloodTypes)]
			out := engine.Screen(context.Background(), pair(donorType, domain.BloodAPlus))
			compatible := IsCompatible(&domain.Donor{BloodType: donorType}, &domain.BloodRequest{BloodType: domain.BloodAPlus})
			if out.Excluded == compatible {
				errs <- fmt.Errorf("%s: excluded=%v compatible=%v", donorType, out.Excluded, compatible)
			}
			if i%16 == 0 {
				engine.ReloadRules(DefaultRules())
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
