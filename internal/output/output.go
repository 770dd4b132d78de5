// Package output renders scores and rankings for the command line.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/lifelink-community/lifelink/internal/domain"
)

// Format selects how results are written.
type Format string

// Supported output formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a format name. The empty string means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or csv)", s)
	}
}

// Match strength labels.
const (
	StrongLabel = "Strong"
	GoodLabel   = "Good"
	FairLabel   = "Fair"
	WeakLabel   = "Weak"
)

var (
	strongColor = color.New(color.FgGreen, color.Bold)
	goodColor   = color.New(color.FgCyan)
	fairColor   = color.New(color.FgYellow)
	weakColor   = color.New(color.FgRed)
)

// PlainLabel buckets a 0-100 score.
func PlainLabel(score float64) string {
	switch {
	case score >= 75:
		return StrongLabel
	case score >= 50:
		return GoodLabel
	case score >= 25:
		return FairLabel
	default:
		return WeakLabel
	}
}

// ColorLabel is PlainLabel with terminal colors. Colors are dropped
// automatically when stdout is not a terminal.
func ColorLabel(score float64) string {
	text := PlainLabel(score)
	switch text {
	case StrongLabel:
		return strongColor.Sprint(text)
	case GoodLabel:
		return goodColor.Sprint(text)
	case FairLabel:
		return fairColor.Sprint(text)
	default:
		return weakColor.Sprint(text)
	}
}

// Writer renders results in one format with a fixed float precision.
type Writer struct {
	out       io.Writer
	format    Format
	precision int
}

// NewWriter creates a writer. A negative precision means 2.
func NewWriter(out io.Writer, format Format, precision int) *Writer {
	if precision < 0 {
		precision = 2
	}
	if format == "" {
		format = FormatTable
	}
	return &Writer{out: out, format: format, precision: precision}
}

func (w *Writer) fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', w.precision, 64)
}

// WriteEvaluation writes a ranking.
func (w *Writer) WriteEvaluation(eval *domain.MatchEvaluation) error {
	switch w.format {
	case FormatJSON:
		return writeJSON(w.out, eval)
	case FormatCSV:
		return w.writeEvaluationCSV(eval)
	default:
		return w.writeEvaluationTable(eval)
	}
}

func candidateHeader(subject string) string {
	if subject == domain.SubjectDonor {
		return "Request"
	}
	return "Donor"
}

func candidateID(subject string, c domain.MatchCandidate) (string, domain.BloodType) {
	if subject == domain.SubjectDonor {
		return c.RequestID, c.RequestBloodType
	}
	return c.DonorID, c.DonorBloodType
}

func (w *Writer) distance(c domain.MatchCandidate) string {
	if !c.DistanceKnown {
		return "-"
	}
	return w.fmtFloat(c.DistanceKm)
}

func (w *Writer) writeEvaluationTable(eval *domain.MatchEvaluation) error {
	table := tablewriter.NewWriter(w.out)
	table.Header([]string{"Rank", candidateHeader(eval.Subject), "Blood", "Score", "Norm", "RUS", "DRS", "Km", "Label", "Flags"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(eval.Candidates))
	for i, c := range eval.Candidates {
		id, bt := candidateID(eval.Subject, c)
		data = append(data, []string{
			strconv.Itoa(i + 1),
			id,
			string(bt),
			w.fmtFloat(c.Score),
			w.fmtFloat(c.NormalizedScore),
			w.fmtFloat(c.RUS),
			w.fmtFloat(c.DRS),
			w.distance(c),
			ColorLabel(c.NormalizedScore),
			strings.Join(c.Flags, ","),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	m := eval.Metadata
	_, err := fmt.Fprintf(w.out, "%d ranked, %d excluded, %d incompatible of %d pairs (weights rus=%s drs=%s distance=%s)\n",
		len(eval.Candidates), len(eval.Excluded), m.PairsIncompatible, m.PairsEvaluated,
		w.fmtFloat(eval.Weights.RUS), w.fmtFloat(eval.Weights.DRS), w.fmtFloat(eval.Weights.Distance))
	return err
}

func (w *Writer) writeEvaluationCSV(eval *domain.MatchEvaluation) error {
	header := []string{"rank", "donor_id", "request_id", "donor_blood_type", "request_blood_type", "score", "normalized", "rus", "drs", "distance_km", "flags"}
	return writeCSVWithHeader(w.out, header, func(cw *csv.Writer) error {
		for i, c := range eval.Candidates {
			row := []string{
				strconv.Itoa(i + 1),
				c.DonorID,
				c.RequestID,
				string(c.DonorBloodType),
				string(c.RequestBloodType),
				w.fmtFloat(c.Score),
				w.fmtFloat(c.NormalizedScore),
				w.fmtFloat(c.RUS),
				w.fmtFloat(c.DRS),
				w.distance(c),
				strings.Join(c.Flags, ";"),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
		return nil
	})
}

// Score is a named value written by the score subcommands.
type Score struct {
	Name  string  `json:"name"`
	Value float64 `json:"score"`
}

// WriteScores writes one or more named scores.
func (w *Writer) WriteScores(scores []Score) error {
	switch w.format {
	case FormatJSON:
		if len(scores) == 1 {
			return writeJSON(w.out, scores[0])
		}
		return writeJSON(w.out, scores)
	case FormatCSV:
		return writeCSVWithHeader(w.out, []string{"name", "score"}, func(cw *csv.Writer) error {
			for _, s := range scores {
				if err := cw.Write([]string{s.Name, w.fmtFloat(s.Value)}); err != nil {
					return fmt.Errorf("failed to write CSV row: %w", err)
				}
			}
			return nil
		})
	default:
		table := tablewriter.NewWriter(w.out)
		table.Header([]string{"Name", "Score", "Label"})
		table.Configure(func(cfg *tablewriter.Config) {
			cfg.Row.Alignment.Global = tw.AlignRight
		})
		data := make([][]string, 0, len(scores))
		for _, s := range scores {
			data = append(data, []string{s.Name, w.fmtFloat(s.Value), ColorLabel(s.Value)})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		return table.Render()
	}
}

// Compatibility lists who a blood type can give to and receive from.
type Compatibility struct {
	BloodType      domain.BloodType   `json:"bloodType"`
	CanDonateTo    []domain.BloodType `json:"canDonateTo"`
	CanReceiveFrom []domain.BloodType `json:"canReceiveFrom"`
}

// WriteCompatibility writes a compatibility listing.
func (w *Writer) WriteCompatibility(c Compatibility) error {
	join := func(types []domain.BloodType, sep string) string {
		parts := make([]string, len(types))
		for i, t := range types {
			parts[i] = string(t)
		}
		return strings.Join(parts, sep)
	}

	switch w.format {
	case FormatJSON:
		return writeJSON(w.out, c)
	case FormatCSV:
		return writeCSVWithHeader(w.out, []string{"blood_type", "can_donate_to", "can_receive_from"}, func(cw *csv.Writer) error {
			return cw.Write([]string{string(c.BloodType), join(c.CanDonateTo, ";"), join(c.CanReceiveFrom, ";")})
		})
	default:
		table := tablewriter.NewWriter(w.out)
		table.Header([]string{"Blood Type", "Can Donate To", "Can Receive From"})
		if err := table.Bulk([][]string{{string(c.BloodType), join(c.CanDonateTo, " "), join(c.CanReceiveFrom, " ")}}); err != nil {
			return err
		}
		return table.Render()
	}
}

func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeCSVWithHeader(w io.Writer, header []string, writeRows func(*csv.Writer) error) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	return writeRows(cw)
}
