// Package insights derives secondary analytics from aggregated query
// results: percentile-based composite campaign scores, threshold-driven
// recommendations, and a data-quality score.
package insights

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/emailpilot/epctl/pkg/aggregate"
	"github.com/emailpilot/epctl/pkg/normalize"
)

const (
	// compositeCap bounds the composite score so a single runaway campaign
	// cannot dominate downstream ranking.
	compositeCap = 2.0

	revenueWeight = 0.6
	ordersWeight  = 0.4

	// minPercentilePoints is the sample size below which the 90th
	// percentile degrades to the observed maximum.
	minPercentilePoints = 10

	tierHighThreshold   = 1.5
	tierMediumThreshold = 0.8

	lowCampaignCount   = 10
	highActiveSegments = 20
	pointsPerSection   = 25
)

// Tier buckets a composite score.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// CampaignScore is the per-campaign composite score with its tier.
type CampaignScore struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Composite float64 `json:"composite"`
	Tier      Tier    `json:"tier"`
}

// DataQuality scores how much of the tracked data the query surfaced.
type DataQuality struct {
	Completeness int      `json:"completeness"`
	MissingData  []string `json:"missing_data"`
}

// Summary is the full derived-analytics block attached to a query response.
type Summary struct {
	CampaignScores  []CampaignScore `json:"campaign_scores,omitempty"`
	HighPerformers  int             `json:"high_performers"`
	Recommendations []string        `json:"recommendations"`
	DataQuality     DataQuality     `json:"data_quality"`
}

// Engine derives a Summary from an aggregate.Result.
type Engine struct{}

// New returns an insight Engine.
func New() *Engine {
	return &Engine{}
}

// Analyze computes campaign scores, recommendations, and data quality for
// the aggregated result. It never fails; thin data produces a thin summary.
func (e *Engine) Analyze(agg *aggregate.Result) *Summary {
	s := &Summary{Recommendations: []string{}}
	if agg == nil {
		s.DataQuality = scoreQuality(&aggregate.Result{})
		return s
	}

	if agg.Campaigns != nil {
		s.CampaignScores = scoreCampaigns(agg.Campaigns.Records)
		for _, cs := range s.CampaignScores {
			if cs.Tier == TierHigh {
				s.HighPerformers++
			}
		}
	}
	s.Recommendations = recommend(agg)
	s.DataQuality = scoreQuality(agg)
	return s
}

// scoreCampaigns computes the composite score for each campaign record:
// a revenue-per-recipient term and an order-count term, each relative to
// the working set's 90th percentile, weighted 60/40 and capped.
func scoreCampaigns(records []map[string]interface{}) []CampaignScore {
	if len(records) == 0 {
		return nil
	}

	rprs := make([]float64, len(records))
	orders := make([]float64, len(records))
	for i, rec := range records {
		rprs[i] = normalize.Float(rec, normalize.FieldRevenuePerRecipient)
		orders[i] = normalize.Float(rec, normalize.FieldPlacedOrderCount)
	}
	p90RPR := percentile90(rprs)
	p90Orders := percentile90(orders)

	scores := make([]CampaignScore, len(records))
	for i, rec := range records {
		composite := revenueWeight*ratio(rprs[i], p90RPR) + ordersWeight*ratio(orders[i], p90Orders)
		if composite > compositeCap {
			composite = compositeCap
		}
		scores[i] = CampaignScore{
			ID:        normalize.String(rec, normalize.FieldCampaignID),
			Name:      normalize.String(rec, normalize.FieldCampaignName),
			Composite: composite,
			Tier:      tierFor(composite),
		}
	}
	return scores
}

func tierFor(composite float64) Tier {
	switch {
	case composite >= tierHighThreshold:
		return TierHigh
	case composite >= tierMediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

func ratio(value, denom float64) float64 {
	if denom <= 0 {
		return 0
	}
	return value / denom
}

// percentile90 returns the 90th percentile of values using linear
// interpolation between order statistics. Small samples fall back to the
// maximum so the denominator stays meaningful.
func percentile90(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) < minPercentilePoints {
		return sorted[len(sorted)-1]
	}
	pos := 0.9 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func recommend(agg *aggregate.Result) []string {
	recs := []string{}

	if agg.Campaigns != nil && agg.Campaigns.Total < lowCampaignCount {
		recs = append(recs, fmt.Sprintf(
			"only %d campaigns in range; consider increasing campaign frequency",
			agg.Campaigns.Total))
	}
	if agg.Segments != nil && agg.Segments.Active > highActiveSegments {
		recs = append(recs, fmt.Sprintf(
			"%d active segments; consider consolidating overlapping segments",
			agg.Segments.Active))
	}
	if agg.SendTimes != nil && len(agg.SendTimes.OptimalTimes) > 0 {
		if day, hour, ok := splitSlot(agg.SendTimes.OptimalTimes[0].Slot); ok {
			recs = append(recs, fmt.Sprintf("optimal send time: %s at %d:00", day, hour))
		}
	}
	return recs
}

// splitSlot parses a "{weekday}_{HH}" frequency key back into its parts.
func splitSlot(slot string) (string, int, bool) {
	i := strings.LastIndex(slot, "_")
	if i <= 0 || i == len(slot)-1 {
		return "", 0, false
	}
	hour, err := strconv.Atoi(slot[i+1:])
	if err != nil {
		return "", 0, false
	}
	return slot[:i], hour, true
}

// scoreQuality grants 25 points per populated tracked section and lists
// the sections that came back empty or absent.
func scoreQuality(agg *aggregate.Result) DataQuality {
	dq := DataQuality{MissingData: []string{}}

	tracked := []struct {
		name    string
		present bool
	}{
		{"campaigns", agg.Campaigns != nil && agg.Campaigns.Total > 0},
		{"segments", agg.Segments != nil && agg.Segments.Total > 0},
		{"revenue", agg.Revenue != nil && (agg.Revenue.Transactions > 0 || agg.Revenue.TotalRevenue > 0 || len(agg.Revenue.Series) > 0)},
		{"send_times", agg.SendTimes != nil && agg.SendTimes.Analyzed > 0},
	}
	for _, sec := range tracked {
		if sec.present {
			dq.Completeness += pointsPerSection
		} else {
			dq.MissingData = append(dq.MissingData, sec.name)
		}
	}
	return dq
}
