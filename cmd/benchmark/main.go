// Benchmark drives a running LifeLink server with synthetic donors and
// blood requests, then reports latency, throughput and ranking checks.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lifelink-community/lifelink/internal/api"
	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

type options struct {
	url      string
	tenant   string
	donors   int
	requests int
	workers  int
	profile  string
	seed     uint64
	timeout  time.Duration
}

// Metrics tracks benchmark counters.
type Metrics struct {
	DonorsSeeded    atomic.Int64
	DonorErrors     atomic.Int64
	RequestsSent    atomic.Int64
	RequestErrors   atomic.Int64
	CandidatesTotal atomic.Int64
	EmptyRankings   atomic.Int64
	Incompatible    atomic.Int64
	OutOfOrder      atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) observe(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

// Blood type distribution roughly matching a general donor population.
var bloodTypeWeights = []struct {
	bt     domain.BloodType
	weight int
}{
	{domain.BloodOPlus, 37},
	{domain.BloodAPlus, 30},
	{domain.BloodBPlus, 9},
	{domain.BloodOMinus, 7},
	{domain.BloodAMinus, 6},
	{domain.BloodABPlus, 4},
	{domain.BloodBMinus, 2},
	{domain.BloodABMinus, 1},
}

var urgencies = []domain.Urgency{domain.UrgencyStandard, domain.UrgencyHigh, domain.UrgencyUrgent}

var requestTags = []string{"surgery", "accident", "trauma", "maternity", "oncology"}

// Lagos city centre.
var center = domain.GeoPoint{Lat: 6.5244, Lng: 3.3792}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "benchmark",
		Short:        "Load test a LifeLink server.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "http://localhost:8080", "LifeLink server URL")
	f.StringVar(&opts.tenant, "tenant", "benchmark", "Tenant ID")
	f.IntVar(&opts.donors, "donors", 500, "Donors to seed")
	f.IntVar(&opts.requests, "requests", 1000, "Blood requests to post")
	f.IntVar(&opts.workers, "workers", 8, "Concurrent workers")
	f.StringVar(&opts.profile, "profile", "", "Weight profile for ranking")
	f.Uint64Var(&opts.seed, "seed", 1, "Random seed for synthetic data")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per-request HTTP timeout")

	if err := cmd.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	if opts.workers < 1 {
		opts.workers = 1
	}
	client := &http.Client{Timeout: opts.timeout}

	fmt.Println("LifeLink Benchmark")
	fmt.Println("==================")
	fmt.Printf("Server:   %s\n", opts.url)
	fmt.Printf("Tenant:   %s\n", opts.tenant)
	fmt.Printf("Donors:   %d\n", opts.donors)
	fmt.Printf("Requests: %d\n", opts.requests)
	fmt.Printf("Workers:  %d\n", opts.workers)
	fmt.Println()

	if err := checkHealth(client, opts.url); err != nil {
		return fmt.Errorf("server health check failed: %w", err)
	}
	fmt.Println("Server is healthy")

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	metrics := &Metrics{latencies: make([]time.Duration, 0, opts.requests)}

	// Generation happens up front so workers never share the RNG.
	donors := make([]api.DonorRequest, opts.donors)
	for i := range donors {
		donors[i] = randomDonor(rng, i)
	}
	requests := make([]api.BloodRequestBody, opts.requests)
	for i := range requests {
		requests[i] = randomRequest(rng, opts.profile)
	}

	fmt.Printf("Seeding %d donors...\n", len(donors))
	seedStart := time.Now()
	pool(opts.workers, len(donors), func(i int) {
		if err := post(client, opts, "/donors", donors[i], nil); err != nil {
			metrics.DonorErrors.Add(1)
			return
		}
		metrics.DonorsSeeded.Add(1)
	})
	seedDuration := time.Since(seedStart)

	fmt.Printf("Posting %d blood requests...\n", len(requests))
	start := time.Now()
	var lastReport atomic.Int64
	pool(opts.workers, len(requests), func(i int) {
		var resp api.CreateRequestResponse
		t0 := time.Now()
		err := post(client, opts, "/requests", requests[i], &resp)
		metrics.observe(time.Since(t0))
		metrics.RequestsSent.Add(1)
		if err != nil {
			metrics.RequestErrors.Add(1)
			return
		}
		check(metrics, &resp)

		sent := metrics.RequestsSent.Load()
		if sent%500 == 0 && lastReport.Swap(sent) != sent {
			fmt.Printf("  progress: %d/%d\n", sent, len(requests))
		}
	})
	duration := time.Since(start)

	printResults(metrics, seedDuration, duration)
	if metrics.Incompatible.Load() > 0 || metrics.OutOfOrder.Load() > 0 {
		return fmt.Errorf("ranking checks failed")
	}
	return nil
}

// pool runs fn over [0,n) with at most workers goroutines in flight.
func pool(workers, n int, fn func(int)) {
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

// check verifies every candidate is ABO/Rh compatible and ranked by score.
func check(m *Metrics, resp *api.CreateRequestResponse) {
	eval := resp.Evaluation
	if eval == nil || len(eval.Candidates) == 0 {
		m.EmptyRankings.Add(1)
		return
	}
	m.CandidatesTotal.Add(int64(len(eval.Candidates)))
	for i, c := range eval.Candidates {
		if !scoring.CanDonate(c.DonorBloodType, c.RequestBloodType) {
			m.Incompatible.Add(1)
		}
		if i > 0 && c.Score > eval.Candidates[i-1].Score {
			m.OutOfOrder.Add(1)
		}
	}
}

func checkHealth(client *http.Client, url string) error {
	resp, err := client.Get(url + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func post(client *http.Client, opts *options, path string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, opts.url+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.TenantIDHeader, opts.tenant)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	if dst == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func randomDonor(rng *rand.Rand, i int) api.DonorRequest {
	d := api.DonorRequest{
		ID:                  fmt.Sprintf("bench-donor-%d-%s", i, uuid.NewString()[:8]),
		Name:                fmt.Sprintf("Donor %d", i),
		BloodType:           randomBloodType(rng),
		Location:            jitter(rng, 0.25),
		DonationCount:       rng.IntN(15),
		SocialEngagement:    float64(rng.IntN(101)),
		ProfileCompleteness: float64(40 + rng.IntN(61)),
	}
	if d.DonationCount > 0 {
		last := time.Now().AddDate(0, 0, -rng.IntN(365))
		d.LastDonation = &last
	}
	return d
}

func randomRequest(rng *rand.Rand, profile string) api.BloodRequestBody {
	r := api.BloodRequestBody{
		Hospital:  "Benchmark General",
		BloodType: randomBloodType(rng),
		Urgency:   urgencies[rng.IntN(len(urgencies))],
		Units:     1 + rng.IntN(4),
		Location:  jitter(rng, 0.15),
		ProfileID: profile,
	}
	if rng.IntN(3) == 0 {
		r.Tags = []string{requestTags[rng.IntN(len(requestTags))]}
	}
	return r
}

func randomBloodType(rng *rand.Rand) domain.BloodType {
	n := rng.IntN(100)
	for _, w := range bloodTypeWeights {
		if n < w.weight {
			return w.bt
		}
		n -= w.weight
	}
	return domain.BloodOPlus
}

// jitter returns a point within +/- spread degrees of the centre.
func jitter(rng *rand.Rand, spread float64) *domain.GeoPoint {
	return &domain.GeoPoint{
		Lat: center.Lat + (rng.Float64()*2-1)*spread,
		Lng: center.Lng + (rng.Float64()*2-1)*spread,
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted))*p+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printResults(m *Metrics, seedDuration, duration time.Duration) {
	sent := m.RequestsSent.Load()
	errs := m.RequestErrors.Load()
	ok := sent - errs

	m.mu.Lock()
	lat := append([]time.Duration(nil), m.latencies...)
	m.mu.Unlock()
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })

	var avg time.Duration
	if len(lat) > 0 {
		var sum time.Duration
		for _, l := range lat {
			sum += l
		}
		avg = sum / time.Duration(len(lat))
	}
	var throughput, avgCandidates float64
	if duration > 0 {
		throughput = float64(sent) / duration.Seconds()
	}
	if ok > 0 {
		avgCandidates = float64(m.CandidatesTotal.Load()) / float64(ok)
	}

	fmt.Println()
	fmt.Println("RESULTS")

	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Metric", "Value"})
	_ = table.Bulk([][]string{
		{"Donors seeded", fmt.Sprintf("%d (%d errors) in %s", m.DonorsSeeded.Load(), m.DonorErrors.Load(), seedDuration.Round(time.Millisecond))},
		{"Requests", strconv.FormatInt(sent, 10)},
		{"Errors", strconv.FormatInt(errs, 10)},
		{"Duration", duration.Round(time.Millisecond).String()},
		{"Throughput", fmt.Sprintf("%.1f req/s", throughput)},
		{"Latency avg", avg.Round(time.Microsecond).String()},
		{"Latency p50", percentile(lat, 0.50).Round(time.Microsecond).String()},
		{"Latency p95", percentile(lat, 0.95).Round(time.Microsecond).String()},
		{"Latency p99", percentile(lat, 0.99).Round(time.Microsecond).String()},
		{"Avg candidates", fmt.Sprintf("%.1f", avgCandidates)},
		{"Empty rankings", strconv.FormatInt(m.EmptyRankings.Load(), 10)},
		{"Incompatible pairs", strconv.FormatInt(m.Incompatible.Load(), 10)},
		{"Out-of-order pairs", strconv.FormatInt(m.OutOfOrder.Load(), 10)},
	})
	_ = table.Render()

	fmt.Println()
	switch {
	case m.Incompatible.Load() > 0:
		color.Red("FAIL: incompatible donors were ranked")
	case m.OutOfOrder.Load() > 0:
		color.Red("FAIL: candidates were not sorted by score")
	case errs > 0:
		color.Yellow("WARN: %d requests failed", errs)
	default:
		color.Green("PASS: every ranked pair is compatible and ordered")
	}
}
