package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink-community/lifelink/internal/domain"
)

func init() {
	color.NoColor = true
}

func sampleEvaluation() *domain.MatchEvaluation {
	return &domain.MatchEvaluation{
		ID:        "eval-1",
		Subject:   domain.SubjectRequest,
		SubjectID: "req-1",
		Weights:   domain.DefaultMatchWeights(),
		Candidates: []domain.MatchCandidate{
			{DonorID: "d1", RequestID: "req-1", DonorBloodType: domain.BloodOMinus, RequestBloodType: domain.BloodAPlus,
				Compatible: true, RUS: 50, DRS: 80, DistanceKm: 2.5, DistanceKnown: true, Score: 51, NormalizedScore: 100},
			{DonorID: "d2", RequestID: "req-1", DonorBloodType: domain.BloodAPlus, RequestBloodType: domain.BloodAPlus,
				Compatible: true, RUS: 50, DRS: 40, Score: 16, NormalizedScore: 0, Flags: []string{"rule-deferral-window"}},
		},
		Metadata: domain.EvaluationMetadata{PairsEvaluated: 3, PairsIncompatible: 1},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "TABLE": FormatTable, "json": FormatJSON, " csv ": FormatCSV} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestPlainLabel(t *testing.T) {
	assert.Equal(t, StrongLabel, PlainLabel(75))
	assert.Equal(t, GoodLabel, PlainLabel(50))
	assert.Equal(t, FairLabel, PlainLabel(25))
	assert.Equal(t, WeakLabel, PlainLabel(24.9))
	assert.Equal(t, StrongLabel, ColorLabel(90))
}

func TestWriteEvaluation(t *testing.T) {
	eval := sampleEvaluation()

	t.Run("Table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewWriter(&buf, FormatTable, 1).WriteEvaluation(eval))

		out := buf.String()
		assert.Contains(t, out, "d1")
		assert.Contains(t, out, "2.5")
		assert.Contains(t, out, "rule-deferral-window")
		assert.Contains(t, out, "2 ranked, 0 excluded, 1 incompatible of 3 pairs")
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewWriter(&buf, FormatJSON, 2).WriteEvaluation(eval))

		var got domain.MatchEvaluation
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, eval.ID, got.ID)
		assert.Len(t, got.Candidates, 2)
	})

	t.Run("CSV", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewWriter(&buf, FormatCSV, 2).WriteEvaluation(eval))

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "rank", records[0][0])
		assert.Equal(t, []string{"1", "d1", "req-1", "O-", "A+", "51.00", "100.00", "50.00", "80.00", "2.50", ""}, records[1])
		assert.Equal(t, "-", records[2][9])
	})
}

func TestWriteScores(t *testing.T) {
	scores := []Score{{Name: "urgency", Value: 60}}

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, FormatJSON, 2).WriteScores(scores))
	assert.JSONEq(t, `{"name":"urgency","score":60}`, buf.String())

	buf.Reset()
	require.NoError(t, NewWriter(&buf, FormatTable, 0).WriteScores(scores))
	assert.Contains(t, buf.String(), "Good")
}

func TestWriteCompatibility(t *testing.T) {
	c := Compatibility{
		BloodType:      domain.BloodABPlus,
		CanDonateTo:    []domain.BloodType{domain.BloodABPlus},
		CanReceiveFrom: domain.AllBloodTypes,
	}

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, FormatCSV, 2).WriteCompatibility(c))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "AB+", records[1][1])
}
