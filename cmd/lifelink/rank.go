package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/ranking"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank donors for a request (or requests for a donor) from JSON files.",
	Long: `Rank candidates locally with the stock screening rules and weight profiles.

Pass --request with --donors to rank donors for one request, or --donor with
--requests to rank open requests for one donor. Files hold a single JSON
object or an array of them. Requests without createdAt are taken as posted
now.

Examples:
  lifelink rank --request req.json --donors donors.json --profile profile-emergency
  lifelink rank --donor donor.json --requests requests.json -o csv`,
	Args: cobra.NoArgs,
	RunE: runRank,
}

func init() {
	f := rankCmd.Flags()
	f.String("request", "", "JSON file with one blood request")
	f.String("donors", "", "JSON file with an array of donors")
	f.String("donor", "", "JSON file with one donor")
	f.String("requests", "", "JSON file with an array of blood requests")
	f.String("weights", "", "Explicit weights as rus,drs,distance")
	f.String("profile", "", "Weight profile ID")
	f.Int("limit", 0, "Keep only the top N candidates (0 = all)")
	rankCmd.MarkFlagsRequiredTogether("request", "donors")
	rankCmd.MarkFlagsRequiredTogether("donor", "requests")
	rankCmd.MarkFlagsMutuallyExclusive("request", "donor")
}

func runRank(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	requestFile, _ := flags.GetString("request")
	donorsFile, _ := flags.GetString("donors")
	donorFile, _ := flags.GetString("donor")
	requestsFile, _ := flags.GetString("requests")
	profileID, _ := flags.GetString("profile")
	rawWeights, _ := flags.GetString("weights")
	limit, _ := flags.GetInt("limit")

	if requestFile == "" && donorFile == "" {
		return errors.New("one of --request or --donor is required")
	}

	weights, err := parseWeights(rawWeights)
	if err != nil {
		return err
	}
	scorer, err := newScorer(cmd)
	if err != nil {
		return err
	}
	ranker, err := localRanker(scorer)
	if err != nil {
		return err
	}

	var eval *domain.MatchEvaluation
	start := time.Now()
	if requestFile != "" {
		var req domain.BloodRequest
		if err := readJSON(requestFile, &req); err != nil {
			return err
		}
		if req.CreatedAt.IsZero() {
			req.CreatedAt = scorer.Now()
		}
		var donors []*domain.Donor
		if err := readJSONList(donorsFile, &donors); err != nil {
			return err
		}
		eval, err = ranker.RankDonors(cmd.Context(), &ranking.DonorRankInput{
			TenantID:  "local",
			Request:   &req,
			Donors:    donors,
			Weights:   weights,
			ProfileID: profileID,
			Limit:     limit,
			StartTime: start,
		})
	} else {
		var donor domain.Donor
		if err := readJSON(donorFile, &donor); err != nil {
			return err
		}
		var requests []*domain.BloodRequest
		if err := readJSONList(requestsFile, &requests); err != nil {
			return err
		}
		for _, req := range requests {
			if req.CreatedAt.IsZero() {
				req.CreatedAt = scorer.Now()
			}
		}
		eval, err = ranker.RankRequests(cmd.Context(), &ranking.RequestRankInput{
			TenantID:  "local",
			Donor:     &donor,
			Requests:  requests,
			Weights:   weights,
			ProfileID: profileID,
			Limit:     limit,
			StartTime: start,
		})
	}
	if err != nil {
		return err
	}

	w, err := newWriter(cmd)
	if err != nil {
		return err
	}
	return w.WriteEvaluation(eval)
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// readJSONList accepts either an array or a single object. null array
// elements are rejected.
func readJSONList[T any](path string, dst *[]*T) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err == nil {
		for i, v := range *dst {
			if v == nil {
				return fmt.Errorf("%s: entry %d is null", path, i)
			}
		}
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	*dst = []*T{&one}
	return nil
}
