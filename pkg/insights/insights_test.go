package insights

import (
	"fmt"
	"math"
	"testing"

	"github.com/emailpilot/epctl/pkg/aggregate"
	"github.com/emailpilot/epctl/pkg/normalize"
)

func campaignRecord(id string, rpr, orders float64) map[string]interface{} {
	return map[string]interface{}{
		normalize.FieldCampaignID:          id,
		normalize.FieldCampaignName:        "Campaign " + id,
		normalize.FieldRevenuePerRecipient: rpr,
		normalize.FieldPlacedOrderCount:    orders,
	}
}

func TestAnalyze_CompositeAtPercentileBoundary(t *testing.T) {
	// With fewer than ten points p90 degrades to the maximum, so the top
	// campaign's revenue term contributes exactly its full weight.
	records := []map[string]interface{}{
		campaignRecord("c1", 2.0, 0),
		campaignRecord("c2", 1.0, 0),
		campaignRecord("c3", 0.5, 0),
	}
	scores := scoreCampaigns(records)

	if math.Abs(scores[0].Composite-0.6) > 1e-9 {
		t.Errorf("top composite = %v, want 0.6 from the revenue term alone", scores[0].Composite)
	}
	if scores[0].Tier != TierLow {
		t.Errorf("tier = %s, want low below 0.8", scores[0].Tier)
	}
}

func TestAnalyze_CompositeCapped(t *testing.T) {
	records := []map[string]interface{}{
		campaignRecord("c1", 1e9, 1e9),
		campaignRecord("c2", 0.01, 1),
	}
	for i := 3; i <= 12; i++ {
		records = append(records, campaignRecord(fmt.Sprintf("c%d", i), 0.1, 1))
	}
	for _, s := range scoreCampaigns(records) {
		if s.Composite > 2.0 {
			t.Errorf("composite %v for %s exceeds cap", s.Composite, s.ID)
		}
	}
}

func TestAnalyze_Tiering(t *testing.T) {
	tests := []struct {
		composite float64
		want      Tier
	}{
		{1.5, TierHigh},
		{2.0, TierHigh},
		{1.49, TierMedium},
		{0.8, TierMedium},
		{0.79, TierLow},
		{0, TierLow},
	}
	for _, tt := range tests {
		if got := tierFor(tt.composite); got != tt.want {
			t.Errorf("tierFor(%v) = %s, want %s", tt.composite, got, tt.want)
		}
	}
}

func TestPercentile90(t *testing.T) {
	// Eleven points: pos = 0.9 * 10 = 9, an exact order statistic.
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	if got := percentile90(values); got != 10 {
		t.Errorf("percentile90 = %v, want 10", got)
	}

	// Below the sample threshold the maximum is used.
	if got := percentile90([]float64{3, 7, 5}); got != 7 {
		t.Errorf("small-sample percentile90 = %v, want max 7", got)
	}

	if got := percentile90(nil); got != 0 {
		t.Errorf("empty percentile90 = %v, want 0", got)
	}
}

func TestAnalyze_Recommendations(t *testing.T) {
	agg := &aggregate.Result{
		Campaigns: &aggregate.Campaigns{Total: 4},
		Segments:  &aggregate.Segments{Total: 30, Active: 25},
		SendTimes: &aggregate.SendTimes{
			Analyzed:     12,
			OptimalTimes: []aggregate.SendTimeBucket{{Slot: "tuesday_10", Count: 3}},
		},
	}
	s := New().Analyze(agg)

	want := []string{
		"only 4 campaigns in range; consider increasing campaign frequency",
		"25 active segments; consider consolidating overlapping segments",
		"optimal send time: tuesday at 10:00",
	}
	if len(s.Recommendations) != len(want) {
		t.Fatalf("recommendations = %v, want %d entries", s.Recommendations, len(want))
	}
	for i := range want {
		if s.Recommendations[i] != want[i] {
			t.Errorf("recommendation[%d] = %q, want %q", i, s.Recommendations[i], want[i])
		}
	}
}

func TestAnalyze_NoRecommendationsForHealthyAccount(t *testing.T) {
	agg := &aggregate.Result{
		Campaigns: &aggregate.Campaigns{Total: 15},
		Segments:  &aggregate.Segments{Total: 10, Active: 8},
	}
	s := New().Analyze(agg)
	if len(s.Recommendations) != 0 {
		t.Errorf("recommendations = %v, want none", s.Recommendations)
	}
}

func TestAnalyze_DataQuality(t *testing.T) {
	tests := []struct {
		name         string
		agg          *aggregate.Result
		completeness int
		missing      []string
	}{
		{
			name:         "nothing",
			agg:          &aggregate.Result{},
			completeness: 0,
			missing:      []string{"campaigns", "segments", "revenue", "send_times"},
		},
		{
			name: "campaigns and revenue",
			agg: &aggregate.Result{
				Campaigns: &aggregate.Campaigns{Total: 3},
				Revenue:   &aggregate.Revenue{TotalRevenue: 120.5, Transactions: 4},
			},
			completeness: 50,
			missing:      []string{"segments", "send_times"},
		},
		{
			name: "all four",
			agg: &aggregate.Result{
				Campaigns: &aggregate.Campaigns{Total: 3},
				Segments:  &aggregate.Segments{Total: 2},
				Revenue:   &aggregate.Revenue{Transactions: 1},
				SendTimes: &aggregate.SendTimes{Analyzed: 5},
			},
			completeness: 100,
			missing:      []string{},
		},
		{
			name: "present but empty does not count",
			agg: &aggregate.Result{
				Campaigns: &aggregate.Campaigns{Total: 0},
			},
			completeness: 0,
			missing:      []string{"campaigns", "segments", "revenue", "send_times"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dq := scoreQuality(tt.agg)
			if dq.Completeness != tt.completeness {
				t.Errorf("completeness = %d, want %d", dq.Completeness, tt.completeness)
			}
			if len(dq.MissingData) != len(tt.missing) {
				t.Fatalf("missing_data = %v, want %v", dq.MissingData, tt.missing)
			}
			for i := range tt.missing {
				if dq.MissingData[i] != tt.missing[i] {
					t.Errorf("missing_data[%d] = %q, want %q", i, dq.MissingData[i], tt.missing[i])
				}
			}
		})
	}
}

func TestAnalyze_NilAggregate(t *testing.T) {
	s := New().Analyze(nil)
	if s.DataQuality.Completeness != 0 {
		t.Errorf("completeness = %d, want 0", s.DataQuality.Completeness)
	}
	if len(s.CampaignScores) != 0 {
		t.Errorf("campaign scores = %v, want none", s.CampaignScores)
	}
}

func TestAnalyze_HighPerformerCount(t *testing.T) {
	var records []map[string]interface{}
	for i := 0; i < 18; i++ {
		records = append(records, campaignRecord(fmt.Sprintf("c%d", i), 1, 5))
	}
	records = append(records,
		campaignRecord("star1", 100, 500),
		campaignRecord("star2", 100, 500))

	agg := &aggregate.Result{
		Campaigns: &aggregate.Campaigns{Total: len(records), Records: records},
	}
	s := New().Analyze(agg)
	if s.HighPerformers != 2 {
		t.Errorf("high performers = %d, want 2", s.HighPerformers)
	}
	if len(s.CampaignScores) != len(records) {
		t.Errorf("campaign scores = %d, want %d", len(s.CampaignScores), len(records))
	}
}
