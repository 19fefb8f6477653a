package query

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	eperrors "github.com/emailpilot/epctl/pkg/errors"
)

// Page-size caps per gateway tool usage. Listing clauses use the smaller cap;
// send-time and content analysis scan more history and use the larger one.
const (
	listPageSize     = 50
	analysisPageSize = 100
)

// defaultWindowDays is the fallback window per query type when a clause
// carries no time expression. Segments are not time-filtered.
var defaultWindowDays = map[Type]int{
	TypeCampaignPerformance: 30,
	TypeRevenue:             30,
	TypeSendTimeAnalysis:    90,
	TypeContentAnalysis:     30,
}

// trigger defines the keyword conditions under which a clause matches a rule:
// every substring in all must be present, and at least one substring in any
// (when any is non-empty).
type trigger struct {
	all []string
	any []string
}

func (t trigger) matches(clause string) bool {
	for _, sub := range t.all {
		if !strings.Contains(clause, sub) {
			return false
		}
	}
	if len(t.any) == 0 {
		return true
	}
	for _, sub := range t.any {
		if strings.Contains(clause, sub) {
			return true
		}
	}
	return false
}

// buildInput is everything a rule's builder needs to shape gateway requests
// for one matched clause.
type buildInput struct {
	clause  string
	tr      *TimeRange
	months  []MonthRange
	metrics []string
	qctx    Context
	now     time.Time
}

// rule maps a query type to its trigger keywords, default metric set, and
// request builder. The table is iterated once per clause; a clause may match
// several rules ("campaign performance and revenue" in one sentence).
type rule struct {
	qtype          Type
	trigger        trigger
	defaultMetrics []string
	build          func(in buildInput) []Request
}

// metricSynonyms maps canonical metric names to the substrings that request
// them. Ordered so repeated parses extract metrics in a stable order.
var metricSynonyms = []struct {
	name  string
	terms []string
}{
	{"open_rate", []string{"open rate", "opens"}},
	{"click_rate", []string{"click rate", "clicks", "ctr", "click-through"}},
	{"revenue", []string{"revenue", "sales", "income"}},
	{"conversion_rate", []string{"conversion"}},
	{"delivery_rate", []string{"delivery rate", "delivered"}},
	{"unsubscribe_rate", []string{"unsubscribe", "opt-out", "opt out"}},
	{"bounce_rate", []string{"bounce"}},
}

// Parser decomposes a multi-clause input string into an ordered, deduplicated
// list of Requests. It holds only the immutable rule table and is safe for
// concurrent use.
type Parser struct {
	rules []rule
}

// NewParser creates a Parser with the standard rule table.
func NewParser() *Parser {
	return &Parser{rules: standardRules()}
}

func standardRules() []rule {
	return []rule{
		{
			qtype:          TypeCampaignPerformance,
			trigger:        trigger{all: []string{"campaign"}, any: []string{"performance", "metric", "stats", "results"}},
			defaultMetrics: []string{"open_rate", "click_rate", "revenue"},
			build:          buildCampaignPerformance,
		},
		{
			qtype:   TypeSegments,
			trigger: trigger{any: []string{"segment"}},
			build:   buildSegments,
		},
		{
			qtype:          TypeRevenue,
			trigger:        trigger{any: []string{"revenue", "sales", "income"}},
			defaultMetrics: []string{"revenue"},
			build:          buildRevenue,
		},
		{
			qtype:   TypeSendTimeAnalysis,
			trigger: trigger{any: []string{"send time", "sending time", "optimal time", "best time to send"}},
			build:   buildSendTimes,
		},
		{
			qtype:   TypeContentAnalysis,
			trigger: trigger{any: []string{"subject line", "content theme", "content analysis", "cta", "call to action"}},
			build:   buildContent,
		},
	}
}

// Parse splits input into clauses, matches each clause against the rule
// table, and returns the deduplicated requests in first-seen order. Clauses
// matching no rule are dropped silently; an input producing zero requests is
// a legitimate outcome, not an error. Parsing is deterministic: the same
// input always yields the same request list.
func (p *Parser) Parse(input string, qctx Context) []Request {
	now := qctx.now()

	var requests []Request
	for _, clause := range splitClauses(input) {
		lower := strings.ToLower(strings.TrimSpace(clause))
		if lower == "" {
			continue
		}

		tr := ParseTimeRange(lower, now)

		for _, r := range p.rules {
			if !r.trigger.matches(lower) {
				continue
			}
			in := buildInput{
				clause:  lower,
				tr:      tr.Primary,
				months:  tr.Months,
				metrics: extractMetrics(lower, r.defaultMetrics),
				qctx:    qctx,
				now:     now,
			}
			requests = append(requests, r.build(in)...)
		}
	}

	return dedupe(requests)
}

// splitClauses breaks the input into clauses: by newline when any newline is
// present, otherwise by sentence-ending periods. A period between two digits
// ("3.5") never splits.
func splitClauses(input string) []string {
	if strings.Contains(input, "\n") {
		return strings.Split(input, "\n")
	}

	var clauses []string
	runes := []rune(input)
	start := 0
	for i, r := range runes {
		if r != '.' {
			continue
		}
		prevDigit := i > 0 && runes[i-1] >= '0' && runes[i-1] <= '9'
		nextDigit := i+1 < len(runes) && runes[i+1] >= '0' && runes[i+1] <= '9'
		if prevDigit && nextDigit {
			continue
		}
		clauses = append(clauses, string(runes[start:i]))
		start = i + 1
	}
	if start < len(runes) {
		clauses = append(clauses, string(runes[start:]))
	}
	return clauses
}

// extractMetrics returns the canonical metric names whose synonyms appear in
// the clause, falling back to the rule's default set when none are named.
func extractMetrics(clause string, defaults []string) []string {
	var metrics []string
	for _, syn := range metricSynonyms {
		for _, term := range syn.terms {
			if strings.Contains(clause, term) {
				metrics = append(metrics, syn.name)
				break
			}
		}
	}
	if len(metrics) == 0 {
		return append([]string(nil), defaults...)
	}
	return metrics
}

// dedupe removes requests whose (tool, params) pair was already seen,
// preserving first-seen order.
func dedupe(requests []Request) []Request {
	seen := make(map[string]struct{}, len(requests))
	out := requests[:0]
	for _, req := range requests {
		key := req.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, req)
	}
	return out
}

// expandRanges resolves the windows a time-filtered request should cover:
// one per explicit month mention, else the clause's own range, else the
// type default.
func expandRanges(in buildInput, qtype Type) []TimeRange {
	if len(in.months) > 0 {
		ranges := make([]TimeRange, 0, len(in.months))
		for _, m := range in.months {
			ranges = append(ranges, m.Range())
		}
		return ranges
	}
	if in.tr != nil {
		return []TimeRange{*in.tr}
	}
	return []TimeRange{DefaultRange(defaultWindowDays[qtype], in.now)}
}

func rangeParams(tr TimeRange) (string, string) {
	return tr.Start.UTC().Format(time.RFC3339), tr.End.UTC().Format(time.RFC3339)
}

func describe(qtype Type, clause string) string {
	const maxLen = 60
	if len(clause) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(clause[cut]) {
			cut--
		}
		clause = clause[:cut] + "…"
	}
	return fmt.Sprintf("%s: %s", qtype, clause)
}

func buildCampaignPerformance(in buildInput) []Request {
	var requests []Request
	for _, tr := range expandRanges(in, TypeCampaignPerformance) {
		tr := tr
		start, end := rangeParams(tr)
		requests = append(requests, Request{
			Type:      TypeCampaignPerformance,
			Metrics:   in.metrics,
			TimeRange: &tr,
			Tool:      ToolCampaignsList,
			Params: map[string]interface{}{
				"page_size":  listPageSize,
				"start_time": start,
				"end_time":   end,
			},
			Description: describe(TypeCampaignPerformance, in.clause),
		})

		// A campaign clause naming revenue also needs the aggregation
		// series; skipped quietly when no metric ID is configured since
		// only revenue-type clauses fail closed.
		if containsMetric(in.metrics, "revenue") && in.qctx.ConversionMetricID != "" {
			requests = append(requests, revenueRequest(in, tr))
		}
	}
	return requests
}

func buildSegments(in buildInput) []Request {
	req := Request{
		Type: TypeSegments,
		Tool: ToolSegmentsList,
		Params: map[string]interface{}{
			"page_size": listPageSize,
		},
		Description: describe(TypeSegments, in.clause),
	}
	if strings.Contains(in.clause, "active") {
		req.Filters = map[string]interface{}{"is_active": true}
	}
	return []Request{req}
}

func buildRevenue(in buildInput) []Request {
	var requests []Request
	for _, tr := range expandRanges(in, TypeRevenue) {
		tr := tr
		if in.qctx.ConversionMetricID == "" {
			requests = append(requests, Request{
				Type:        TypeRevenue,
				Metrics:     in.metrics,
				TimeRange:   &tr,
				Tool:        ToolMetricsAggregate,
				Params:      map[string]interface{}{},
				Description: describe(TypeRevenue, in.clause),
				Precondition: eperrors.NewPreconditionError(
					eperrors.CodePreconditionFailed,
					"revenue query requires a configured conversion metric ID",
				),
			})
			continue
		}
		requests = append(requests, revenueRequest(in, tr))
	}
	return requests
}

// revenueRequest shapes a metrics.aggregate call for one window.
func revenueRequest(in buildInput, tr TimeRange) Request {
	start, end := rangeParams(tr)
	return Request{
		Type:      TypeRevenue,
		Metrics:   []string{"revenue"},
		TimeRange: &tr,
		Tool:      ToolMetricsAggregate,
		Params: map[string]interface{}{
			"metric_id":    in.qctx.ConversionMetricID,
			"measurements": []string{"sum_value", "count"},
			"interval":     "day",
			"start_time":   start,
			"end_time":     end,
		},
		Description: describe(TypeRevenue, in.clause),
	}
}

func buildSendTimes(in buildInput) []Request {
	var requests []Request
	for _, tr := range expandRanges(in, TypeSendTimeAnalysis) {
		tr := tr
		start, end := rangeParams(tr)
		requests = append(requests, Request{
			Type:      TypeSendTimeAnalysis,
			TimeRange: &tr,
			Tool:      ToolCampaignsList,
			Params: map[string]interface{}{
				"page_size":  analysisPageSize,
				"start_time": start,
				"end_time":   end,
			},
			Description: describe(TypeSendTimeAnalysis, in.clause),
		})
	}
	return requests
}

func buildContent(in buildInput) []Request {
	var requests []Request
	for _, tr := range expandRanges(in, TypeContentAnalysis) {
		tr := tr
		start, end := rangeParams(tr)
		requests = append(requests, Request{
			Type:      TypeContentAnalysis,
			TimeRange: &tr,
			Tool:      ToolCampaignsList,
			Params: map[string]interface{}{
				"page_size":  analysisPageSize,
				"start_time": start,
				"end_time":   end,
			},
			Description: describe(TypeContentAnalysis, in.clause),
		})
	}
	return requests
}

func containsMetric(metrics []string, name string) bool {
	for _, m := range metrics {
		if m == name {
			return true
		}
	}
	return false
}
