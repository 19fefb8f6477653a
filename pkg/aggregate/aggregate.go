// Package aggregate folds settled sub-request results into the sectioned
// response structure consumed by the insight engine and the output layer.
package aggregate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emailpilot/epctl/pkg/logging"
	"github.com/emailpilot/epctl/pkg/normalize"
	"github.com/emailpilot/epctl/pkg/query"
)

const (
	campaignSummaryCap = 10
	contentSummaryCap  = 20
	optimalTimesCap    = 5
)

// CampaignSummary is the per-campaign slice of the campaigns section.
type CampaignSummary struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Status   string      `json:"status"`
	SendTime string      `json:"send_time,omitempty"`
	Audiences interface{} `json:"audiences,omitempty"`
}

// Campaigns summarizes campaign list results. Total counts the full result
// set, not the capped slice. Records keeps the normalized per-campaign
// metrics for downstream scoring and is not part of the serialized output.
type Campaigns struct {
	Items []CampaignSummary `json:"items"`
	Total int               `json:"total"`

	Records []map[string]interface{} `json:"-"`
}

// SegmentSummary is the per-segment slice of the segments section.
type SegmentSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
	Created  string `json:"created,omitempty"`
	Updated  string `json:"updated,omitempty"`
}

// Segments summarizes segment list results.
type Segments struct {
	Items  []SegmentSummary `json:"items"`
	Active int              `json:"active"`
	Total  int              `json:"total"`
}

// RevenuePoint is one period of the revenue series.
type RevenuePoint struct {
	Date    string  `json:"date,omitempty"`
	Revenue float64 `json:"revenue"`
	Orders  float64 `json:"orders"`
}

// Revenue sums the metric-aggregate series.
type Revenue struct {
	TotalRevenue float64        `json:"total_revenue"`
	Transactions int            `json:"transactions"`
	Series       []RevenuePoint `json:"series,omitempty"`
}

// SendTimeBucket is one "{weekday}_{HH}" slot with its observed frequency.
type SendTimeBucket struct {
	Slot  string `json:"slot"`
	Count int    `json:"count"`
}

// SendTimes ranks historical send slots by frequency.
type SendTimes struct {
	OptimalTimes []SendTimeBucket `json:"optimal_times"`
	Analyzed     int              `json:"analyzed"`
}

// ContentSummary is the per-campaign slice of the content section.
type ContentSummary struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Content lists campaigns for content/theme review.
type Content struct {
	Items []ContentSummary `json:"items"`
	Total int              `json:"total"`
}

// Result is the sectioned aggregate. A section pointer is non-nil if and
// only if at least one sub-request of that query type succeeded, so absent
// sections are distinguishable from present-but-empty ones.
type Result struct {
	Campaigns *Campaigns `json:"campaigns,omitempty"`
	Segments  *Segments  `json:"segments,omitempty"`
	Revenue   *Revenue   `json:"revenue,omitempty"`
	SendTimes *SendTimes `json:"send_times,omitempty"`
	Content   *Content   `json:"content,omitempty"`
}

// Sections returns the names of the populated sections.
func (r *Result) Sections() []string {
	var names []string
	if r.Campaigns != nil {
		names = append(names, "campaigns")
	}
	if r.Segments != nil {
		names = append(names, "segments")
	}
	if r.Revenue != nil {
		names = append(names, "revenue")
	}
	if r.SendTimes != nil {
		names = append(names, "send_times")
	}
	if r.Content != nil {
		names = append(names, "content")
	}
	return names
}

// Aggregator folds executor results into a Result, normalizing each upstream
// record through the connector's declared unit convention.
type Aggregator struct {
	conv normalize.Convention
	log  logging.Logger
}

// New returns an Aggregator using the given connector convention.
func New(conv normalize.Convention, log logging.Logger) *Aggregator {
	if log == nil {
		log = logging.Nop()
	}
	return &Aggregator{conv: conv, log: log}
}

// Aggregate groups successful results by query type and applies the
// type-specific extractor for each group. Failed results are skipped here;
// the executor has already logged them. The returned maps record, per
// normalized record, which upstream alias supplied each canonical field.
func (a *Aggregator) Aggregate(results []query.Result) (*Result, []normalize.Map) {
	grouped := make(map[query.Type][]query.Result)
	for _, r := range results {
		if !r.OK() {
			continue
		}
		grouped[r.Request.Type] = append(grouped[r.Request.Type], r)
	}

	out := &Result{}
	var audit []normalize.Map

	if rs, ok := grouped[query.TypeCampaignPerformance]; ok {
		section, maps := a.campaigns(rs)
		out.Campaigns = section
		audit = append(audit, maps...)
	}
	if rs, ok := grouped[query.TypeSegments]; ok {
		out.Segments = a.segments(rs)
	}
	if rs, ok := grouped[query.TypeRevenue]; ok {
		out.Revenue = a.revenue(rs)
	}
	if rs, ok := grouped[query.TypeSendTimeAnalysis]; ok {
		section, maps := a.sendTimes(rs)
		out.SendTimes = section
		audit = append(audit, maps...)
	}
	if rs, ok := grouped[query.TypeContentAnalysis]; ok {
		out.Content = a.content(rs)
	}
	return out, audit
}

func (a *Aggregator) campaigns(results []query.Result) (*Campaigns, []normalize.Map) {
	section := &Campaigns{Items: []CampaignSummary{}}
	var audit []normalize.Map

	for _, r := range results {
		if r.Request.Tool != query.ToolCampaignsList {
			// Companion metric-aggregate requests contribute to the revenue
			// section, not the campaign list.
			continue
		}
		for _, raw := range decodeRecords(r.Data) {
			record, nmap := normalize.Normalize(raw, a.conv)
			audit = append(audit, nmap)
			section.Records = append(section.Records, record)
			section.Total++
			if len(section.Items) < campaignSummaryCap {
				section.Items = append(section.Items, CampaignSummary{
					ID:        normalize.String(record, normalize.FieldCampaignID),
					Name:      normalize.String(record, normalize.FieldCampaignName),
					Status:    normalize.String(record, normalize.FieldStatus),
					SendTime:  normalize.String(record, normalize.FieldSendTime),
					Audiences: record[normalize.FieldAudiences],
				})
			}
		}
	}
	return section, audit
}

func (a *Aggregator) segments(results []query.Result) *Segments {
	section := &Segments{Items: []SegmentSummary{}}
	for _, r := range results {
		for _, raw := range decodeRecords(r.Data) {
			s := SegmentSummary{
				ID:      stringAt(raw, "id"),
				Name:    stringAt(raw, "name"),
				Created: stringAt(raw, "created"),
				Updated: stringAt(raw, "updated"),
			}
			if v, ok := raw["is_active"].(bool); ok {
				s.IsActive = v
			}
			if s.IsActive {
				section.Active++
			}
			section.Items = append(section.Items, s)
			section.Total++
		}
	}
	return section
}

func (a *Aggregator) revenue(results []query.Result) *Revenue {
	section := &Revenue{}
	for _, r := range results {
		env := decodeRevenue(r.Data)
		if env == nil {
			a.log.Warn("revenue payload not in expected shape, skipping",
				logging.F("tool", r.Request.Tool))
			continue
		}
		for i := range env.values {
			point := RevenuePoint{Revenue: env.values[i]}
			if i < len(env.counts) {
				point.Orders = env.counts[i]
			}
			if i < len(env.dates) {
				point.Date = env.dates[i]
			}
			section.TotalRevenue += point.Revenue
			section.Transactions += int(point.Orders)
			section.Series = append(section.Series, point)
		}
	}
	return section
}

func (a *Aggregator) sendTimes(results []query.Result) (*SendTimes, []normalize.Map) {
	section := &SendTimes{OptimalTimes: []SendTimeBucket{}}
	var audit []normalize.Map

	freq := make(map[string]int)
	for _, r := range results {
		for _, raw := range decodeRecords(r.Data) {
			record, nmap := normalize.Normalize(raw, a.conv)
			audit = append(audit, nmap)
			slot, ok := sendSlot(normalize.String(record, normalize.FieldSendTime))
			if !ok {
				continue
			}
			freq[slot]++
			section.Analyzed++
		}
	}

	buckets := make([]SendTimeBucket, 0, len(freq))
	for slot, count := range freq {
		buckets = append(buckets, SendTimeBucket{Slot: slot, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Slot < buckets[j].Slot
	})
	if len(buckets) > optimalTimesCap {
		buckets = buckets[:optimalTimesCap]
	}
	section.OptimalTimes = buckets
	return section, audit
}

func (a *Aggregator) content(results []query.Result) *Content {
	section := &Content{Items: []ContentSummary{}}
	for _, r := range results {
		for _, raw := range decodeRecords(r.Data) {
			section.Total++
			if len(section.Items) < contentSummaryCap {
				section.Items = append(section.Items, ContentSummary{
					Name:   stringAt(raw, "name"),
					Status: stringAt(raw, "status"),
				})
			}
		}
	}
	return section
}

// sendSlot converts an RFC 3339 send timestamp into its "{weekday}_{HH}"
// frequency key.
func sendSlot(ts string) (string, bool) {
	if ts == "" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s_%02d", strings.ToLower(t.Weekday().String()), t.Hour()), true
}

// decodeRecords accepts either a bare JSON array of objects or an envelope
// with the array under "data" or "results".
func decodeRecords(raw json.RawMessage) []map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var list []map[string]interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var envelope struct {
		Data    []map[string]interface{} `json:"data"`
		Results []map[string]interface{} `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	if envelope.Data != nil {
		return envelope.Data
	}
	return envelope.Results
}

type revenueSeries struct {
	values []float64
	counts []float64
	dates  []string
}

// decodeRevenue extracts the sum_value and count measurement arrays from a
// metric-aggregate response, tolerating both a bare result object and the
// data/results envelope.
func decodeRevenue(raw json.RawMessage) *revenueSeries {
	type measurements struct {
		SumValue []float64 `json:"sum_value"`
		Count    []float64 `json:"count"`
	}
	type result struct {
		Measurements measurements `json:"measurements"`
		Dates        []string     `json:"dates"`
	}
	var envelope struct {
		Data struct {
			Results []result `json:"results"`
		} `json:"data"`
		Results      []result     `json:"results"`
		Measurements measurements `json:"measurements"`
		Dates        []string     `json:"dates"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}

	series := &revenueSeries{}
	merge := func(r result) {
		series.values = append(series.values, r.Measurements.SumValue...)
		series.counts = append(series.counts, r.Measurements.Count...)
		series.dates = append(series.dates, r.Dates...)
	}
	switch {
	case len(envelope.Data.Results) > 0:
		for _, r := range envelope.Data.Results {
			merge(r)
		}
	case len(envelope.Results) > 0:
		for _, r := range envelope.Results {
			merge(r)
		}
	case len(envelope.Measurements.SumValue) > 0 || len(envelope.Measurements.Count) > 0:
		merge(result{Measurements: envelope.Measurements, Dates: envelope.Dates})
	default:
		return nil
	}
	return series
}

func stringAt(record map[string]interface{}, key string) string {
	if v, ok := record[key].(string); ok {
		return v
	}
	return ""
}
