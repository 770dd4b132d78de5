package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/output"
	"github.com/lifelink-community/lifelink/internal/ranking"
	"github.com/lifelink-community/lifelink/internal/rules"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute a single score without a database.",
}

var scoreUrgencyCmd = &cobra.Command{
	Use:   "urgency",
	Short: "Request Urgency Score (0-100).",
	Long: `Compute the Request Urgency Score from urgency level, age, tags and
blood type.

Examples:
  lifelink score urgency --urgency Urgent --blood-type O-
  lifelink score urgency --urgency Standard --blood-type A+ --created-at 2026-03-01T08:00:00Z --tags surgery`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		scorer, err := newScorer(cmd)
		if err != nil {
			return err
		}

		urgency, _ := cmd.Flags().GetString("urgency")
		bloodType, _ := cmd.Flags().GetString("blood-type")
		createdAt, _ := cmd.Flags().GetString("created-at")
		tags, _ := cmd.Flags().GetStringSlice("tags")

		bt, err := domain.ParseBloodType(bloodType)
		if err != nil {
			return err
		}
		in := domain.RequestUrgencyInput{
			Urgency:   domain.Urgency(urgency),
			BloodType: bt,
			Tags:      tags,
			CreatedAt: scorer.Now(),
		}
		if createdAt != "" {
			if in.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
				return fmt.Errorf("invalid --created-at: %w", err)
			}
		}

		return writeScores(cmd, output.Score{Name: "urgency", Value: scorer.RUS(in)})
	},
}

var scoreReadinessCmd = &cobra.Command{
	Use:   "readiness",
	Short: "Donor Readiness Score (0-100).",
	Long: `Compute the Donor Readiness Score. Omitted --last-donation and --distance
are treated as unknown.

Example:
  lifelink score readiness --blood-type O- --donation-count 6 --last-donation 2025-12-01T00:00:00Z --distance 4.2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		scorer, err := newScorer(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()

		bloodType, _ := flags.GetString("blood-type")
		bt, err := domain.ParseBloodType(bloodType)
		if err != nil {
			return err
		}

		in := domain.DonorReadinessInput{BloodType: bt}
		in.DonationCount, _ = flags.GetInt("donation-count")
		in.SocialEngagement, _ = flags.GetFloat64("social")
		in.ProfileCompleteness, _ = flags.GetFloat64("completeness")

		if raw, _ := flags.GetString("last-donation"); raw != "" {
			last, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("invalid --last-donation: %w", err)
			}
			in.LastDonation = &last
		}
		if flags.Changed("distance") {
			d, _ := flags.GetFloat64("distance")
			in.Distance = &d
		}

		// Components are on 0-10; scale them to read alongside the total.
		b := scoring.ReadinessComponents(in, scorer.Now())
		return writeScores(cmd,
			output.Score{Name: "readiness", Value: scorer.DRS(in)},
			output.Score{Name: "eligibility", Value: b.Eligibility * 10},
			output.Score{Name: "experience", Value: b.Experience * 10},
			output.Score{Name: "distance", Value: b.Distance * 10},
			output.Score{Name: "engagement", Value: b.Engagement * 10},
			output.Score{Name: "completeness", Value: b.Completeness * 10},
			output.Score{Name: "universality", Value: b.Universality * 10},
		)
	},
}

var scoreMatchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match score for one donor/request pair.",
	Long: `Blend urgency, readiness and distance into a match score. Weights are
taken from --weights (rus,drs,distance), else --profile, else the defaults.

Example:
  lifelink score match --rus 60 --drs 75 --distance 12 --request-type A+ --donor-type O- --profile profile-emergency`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		scorer, err := newScorer(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()

		rus, _ := flags.GetFloat64("rus")
		drs, _ := flags.GetFloat64("drs")
		distance, _ := flags.GetFloat64("distance")
		profileID, _ := flags.GetString("profile")
		rawWeights, _ := flags.GetString("weights")
		requestType, _ := flags.GetString("request-type")
		donorType, _ := flags.GetString("donor-type")

		reqBT, err := domain.ParseBloodType(requestType)
		if err != nil {
			return err
		}
		donorBT, err := domain.ParseBloodType(donorType)
		if err != nil {
			return err
		}

		explicit, err := parseWeights(rawWeights)
		if err != nil {
			return err
		}

		ranker, err := localRanker(scorer)
		if err != nil {
			return err
		}
		resolved, err := ranker.ResolveWeights(explicit, profileID)
		if err != nil {
			return err
		}

		score, err := scorer.Match(rus, drs, distance, resolved.Weights, reqBT, donorBT)
		if err != nil {
			return err
		}
		return writeScores(cmd, output.Score{Name: "match", Value: score})
	},
}

var scoreNormalizeCmd = &cobra.Command{
	Use:   "normalize SCORE...",
	Short: "Min-max rescale scores onto 0-100.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := make([]float64, len(args))
		for i, a := range args {
			f, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return fmt.Errorf("invalid score %q: %w", a, err)
			}
			raw[i] = f
		}

		normalized := scoring.NormalizeScores(raw)
		scores := make([]output.Score, len(normalized))
		for i, n := range normalized {
			scores[i] = output.Score{Name: args[i], Value: n}
		}
		return writeScores(cmd, scores...)
	},
}

func init() {
	f := scoreUrgencyCmd.Flags()
	f.String("urgency", string(domain.UrgencyStandard), "Urgency level: Standard, High or Urgent")
	f.String("blood-type", "", "Requested blood type, e.g. O-")
	f.String("created-at", "", "Request creation time (RFC3339); defaults to now")
	f.StringSlice("tags", nil, "Request tags, e.g. surgery,accident")
	_ = scoreUrgencyCmd.MarkFlagRequired("blood-type")

	f = scoreReadinessCmd.Flags()
	f.String("blood-type", "", "Donor blood type")
	f.String("last-donation", "", "Last donation time (RFC3339)")
	f.Int("donation-count", 0, "Lifetime donations")
	f.Float64("distance", 0, "Distance to the requester in km")
	f.Float64("social", 0, "Social engagement (0-100)")
	f.Float64("completeness", 0, "Profile completeness (0-100)")
	_ = scoreReadinessCmd.MarkFlagRequired("blood-type")

	f = scoreMatchCmd.Flags()
	f.Float64("rus", 0, "Request Urgency Score")
	f.Float64("drs", 0, "Donor Readiness Score")
	f.Float64("distance", 0, "Distance in km")
	f.String("request-type", "", "Requested blood type")
	f.String("donor-type", "", "Donor blood type")
	f.String("weights", "", "Explicit weights as rus,drs,distance")
	f.String("profile", "", "Weight profile ID")
	_ = scoreMatchCmd.MarkFlagRequired("request-type")
	_ = scoreMatchCmd.MarkFlagRequired("donor-type")

	scoreCmd.AddCommand(scoreUrgencyCmd, scoreReadinessCmd, scoreMatchCmd, scoreNormalizeCmd)
}

var compatCmd = &cobra.Command{
	Use:   "compat BLOOD_TYPE",
	Short: "Show who a blood type can give to and receive from.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bt, err := domain.ParseBloodType(args[0])
		if err != nil {
			return err
		}
		w, err := newWriter(cmd)
		if err != nil {
			return err
		}
		return w.WriteCompatibility(output.Compatibility{
			BloodType:      bt,
			CanDonateTo:    scoring.CompatibleRecipients(bt),
			CanReceiveFrom: scoring.CompatibleDonors(bt),
		})
	},
}

func writeScores(cmd *cobra.Command, scores ...output.Score) error {
	w, err := newWriter(cmd)
	if err != nil {
		return err
	}
	return w.WriteScores(scores)
}

// parseWeights reads "rus,drs,distance". The empty string means none.
func parseWeights(raw string) (*domain.MatchWeights, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid --weights %q: want rus,drs,distance", raw)
	}
	var vals [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --weights %q: %w", raw, err)
		}
		vals[i] = f
	}
	return &domain.MatchWeights{RUS: vals[0], DRS: vals[1], Distance: vals[2]}, nil
}

// localRanker is a ranker over the stock screening rules and profiles.
func localRanker(scorer *scoring.Scorer) (*ranking.Ranker, error) {
	screening, err := rules.NewEngine()
	if err != nil {
		return nil, err
	}
	if err := screening.LoadRules(rules.DefaultRules()); err != nil {
		return nil, err
	}
	profiles := rules.NewProfileEngine()
	if err := profiles.LoadProfiles(rules.DefaultProfiles()); err != nil {
		return nil, err
	}
	return ranking.NewRanker(scorer, screening, profiles, 0), nil
}
