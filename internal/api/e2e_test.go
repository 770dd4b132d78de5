//go:build integration

// End-to-end tests against a running LifeLink server.
//
// Run with: LIFELINK_TEST_URL=http://localhost:8080 go test -tags=integration ./internal/api/...
//
// The server must have been started at least once so the stock screening
// rules and weight profiles are seeded. IDs carry a per-run suffix so the
// tests can be repeated against the same database.
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/lifelink-community/lifelink/internal/api"
	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

type e2eConfig struct {
	BaseURL  string
	TenantID string
	Suffix   string
}

func getE2EConfig() e2eConfig {
	baseURL := os.Getenv("LIFELINK_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return e2eConfig{
		BaseURL:  baseURL,
		TenantID: "e2e-tenant",
		Suffix:   fmt.Sprintf("%d", time.Now().UnixNano()),
	}
}

func (c e2eConfig) id(prefix string) string {
	return prefix + "-" + c.Suffix
}

func call(t *testing.T, config e2eConfig, method, path string, body any, wantStatus int, dst any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(api.TenantIDHeader, config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, wantStatus, resp.StatusCode, respBody)
	}
	if dst != nil {
		if err := json.Unmarshal(respBody, dst); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, respBody)
		}
	}
}

func seedDonor(t *testing.T, config e2eConfig, id string, bt domain.BloodType, loc *domain.GeoPoint) {
	t.Helper()
	call(t, config, http.MethodPost, "/donors", api.DonorRequest{
		ID:                  id,
		Name:                id,
		BloodType:           bt,
		Location:            loc,
		DonationCount:       3,
		ProfileCompleteness: 80,
	}, http.StatusCreated, nil)
}

func TestRankingOnlyCompatibleDonors(t *testing.T) {
	config := getE2EConfig()
	hospital := &domain.GeoPoint{Lat: 6.5244, Lng: 3.3792}

	universal := config.id("donor-o-neg")
	same := config.id("donor-a-pos")
	wrong := config.id("donor-b-pos")
	seedDonor(t, config, universal, domain.BloodOMinus, &domain.GeoPoint{Lat: 6.53, Lng: 3.38})
	seedDonor(t, config, same, domain.BloodAPlus, &domain.GeoPoint{Lat: 6.60, Lng: 3.40})
	seedDonor(t, config, wrong, domain.BloodBPlus, &domain.GeoPoint{Lat: 6.52, Lng: 3.37})

	var created api.CreateRequestResponse
	call(t, config, http.MethodPost, "/requests", api.BloodRequestBody{
		ID:        config.id("req-a-pos"),
		Hospital:  "Lagos Island General",
		BloodType: domain.BloodAPlus,
		Urgency:   domain.UrgencyUrgent,
		Units:     2,
		Location:  hospital,
	}, http.StatusCreated, &created)

	eval := created.Evaluation
	if eval == nil {
		t.Fatal("Expected an inline evaluation")
	}

	seen := map[string]bool{}
	for i, c := range eval.Candidates {
		seen[c.DonorID] = true
		if !scoring.CanDonate(c.DonorBloodType, c.RequestBloodType) {
			t.Errorf("Incompatible donor %s (%s) ranked for %s", c.DonorID, c.DonorBloodType, c.RequestBloodType)
		}
		if c.Score < 0 || c.Score > 100 {
			t.Errorf("Score out of range: %.2f", c.Score)
		}
		if i > 0 && c.Score > eval.Candidates[i-1].Score {
			t.Errorf("Candidates not sorted: %.2f after %.2f", c.Score, eval.Candidates[i-1].Score)
		}
	}
	if !seen[universal] || !seen[same] {
		t.Errorf("Expected %s and %s among candidates, got %v", universal, same, seen)
	}
	if seen[wrong] {
		t.Errorf("B+ donor %s must not be ranked for A+", wrong)
	}
	if eval.Metadata.PairsIncompatible < 1 {
		t.Errorf("Expected at least one incompatible pair, got %d", eval.Metadata.PairsIncompatible)
	}

	t.Logf("✓ %d candidates ranked, %d incompatible", len(eval.Candidates), eval.Metadata.PairsIncompatible)
}

func TestClosedRequestRejectsMatching(t *testing.T) {
	config := getE2EConfig()
	requestID := config.id("req-closed")

	call(t, config, http.MethodPost, "/requests", api.BloodRequestBody{
		ID:        requestID,
		BloodType: domain.BloodOPlus,
		Urgency:   domain.UrgencyStandard,
	}, http.StatusCreated, nil)

	call(t, config, http.MethodPut, "/requests/"+requestID+"/status",
		map[string]string{"status": string(domain.RequestFulfilled)}, http.StatusOK, nil)

	call(t, config, http.MethodPost, "/requests/"+requestID+"/matches", nil, http.StatusConflict, nil)

	t.Log("✓ Fulfilled request refuses new matching runs")
}

func TestDonationUpdatesHistory(t *testing.T) {
	config := getE2EConfig()
	donorID := config.id("donor-history")
	seedDonor(t, config, donorID, domain.BloodOPlus, nil)

	call(t, config, http.MethodPost, "/donors/"+donorID+"/donations",
		map[string]any{"volumeMl": 450}, http.StatusCreated, nil)

	var donor domain.Donor
	call(t, config, http.MethodGet, "/donors/"+donorID, nil, http.StatusOK, &donor)
	if donor.DonationCount != 4 {
		t.Errorf("Expected donationCount 4 after one donation, got %d", donor.DonationCount)
	}
	if donor.LastDonation == nil {
		t.Error("Expected lastDonation to be set")
	}

	t.Logf("✓ Donation recorded: count=%d", donor.DonationCount)
}

func TestMissingTenantHeader_Error(t *testing.T) {
	config := getE2EConfig()

	httpReq, _ := http.NewRequest(http.MethodGet, config.BaseURL+"/donors", nil)
	// No X-Tenant-ID header.

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing tenant, got %d", resp.StatusCode)
	}
}
