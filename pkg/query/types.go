// Package query decomposes free-text analytical requests into typed,
// independently executable sub-queries against the metrics gateway. It supports
// multi-clause inputs ("get campaign performance for last 30 days and list all
// active segments") and natural-language time expressions.
package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Type identifies the kind of analytical sub-query a clause resolved to.
type Type string

const (
	// TypeCampaignPerformance lists campaigns with their delivery metadata.
	TypeCampaignPerformance Type = "campaign_performance"
	// TypeSegments lists audience segments and their activity state.
	TypeSegments Type = "segments"
	// TypeRevenue aggregates the client's conversion metric over time.
	TypeRevenue Type = "revenue"
	// TypeSendTimeAnalysis derives optimal send times from campaign history.
	TypeSendTimeAnalysis Type = "send_time_analysis"
	// TypeContentAnalysis surveys campaign names/status for content themes.
	TypeContentAnalysis Type = "content_analysis"
)

// AllTypes lists every query type in a stable order.
var AllTypes = []Type{
	TypeCampaignPerformance,
	TypeSegments,
	TypeRevenue,
	TypeSendTimeAnalysis,
	TypeContentAnalysis,
}

// Tool names understood by the metrics gateway.
const (
	ToolCampaignsList    = "campaigns.list"
	ToolSegmentsList     = "segments.list"
	ToolMetricsAggregate = "metrics.aggregate"
)

// TimeRange is a concrete start/end window resolved from a time expression.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// RawDays is the window length in days as the user expressed it
	// (0 when the range came from an explicit month mention).
	RawDays int `json:"raw_days,omitempty"`
}

// MonthRange is one explicit "Month Year" mention resolved to its calendar bounds.
type MonthRange struct {
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

// Range converts the month bounds to a TimeRange.
func (m MonthRange) Range() TimeRange {
	return TimeRange{Start: m.Start, End: m.End}
}

// TimeRangeResult carries every time expression recognized in one input.
// Primary is nil when nothing matched; callers apply a type-specific default
// rather than treating that as an error. Months holds ALL explicit month
// mentions so multi-month inputs fan out to one request per month.
type TimeRangeResult struct {
	Primary *TimeRange
	Months  []MonthRange
}

// Context carries per-client configuration consumed while building requests.
type Context struct {
	// ConversionMetricID is the gateway metric ID used for revenue
	// aggregation. Revenue clauses fail closed when it is empty.
	ConversionMetricID string

	// Now pins the clock for time-range resolution. Zero means time.Now().
	Now time.Time
}

func (c Context) now() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// Request is one decomposed, executable unit of work.
type Request struct {
	// Type is the query type this clause resolved to.
	Type Type `json:"query_type"`

	// Metrics names the specific measurements requested. Empty means the
	// type-specific default set applies.
	Metrics []string `json:"metrics,omitempty"`

	// TimeRange is the explicit window, nil when the clause carried none.
	TimeRange *TimeRange `json:"time_range,omitempty"`

	// Filters holds free-form constraints consumed per-tool.
	Filters map[string]interface{} `json:"filters,omitempty"`

	// Tool identifies the gateway capability to invoke.
	Tool string `json:"tool"`

	// Params are the literal call parameters, already shaped to the tool's
	// contract.
	Params map[string]interface{} `json:"params"`

	// Description is a human-readable label for logging and tracing.
	Description string `json:"description"`

	// Precondition, when non-nil, marks a request that must fail closed at
	// execution time without any gateway call.
	Precondition error `json:"-"`
}

// Key returns the deduplication key for the request: the tool name plus a
// canonical rendering of the params. Two clauses resolving to an identical
// call share a key and are merged before execution.
func (r Request) Key() string {
	return r.Tool + "|" + canonicalParams(r.Params)
}

// canonicalParams renders a params map deterministically (sorted keys,
// recursing into nested maps) so map iteration order cannot affect dedup.
func canonicalParams(params map[string]interface{}) string {
	if len(params) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		switch v := params[k].(type) {
		case map[string]interface{}:
			sb.WriteString(canonicalParams(v))
		case []string:
			sb.WriteString("[" + strings.Join(v, ",") + "]")
		default:
			fmt.Fprintf(&sb, "%v", v)
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

// Result is the settled outcome of one Request. It carries a back-reference
// to the originating request for attribution during aggregation, and is
// consumed once by the aggregator.
type Result struct {
	Request  Request
	Data     json.RawMessage
	Err      error
	Elapsed  time.Duration
	Attempts int
	Cached   bool
}

// OK reports whether the request settled successfully.
func (r Result) OK() bool {
	return r.Err == nil
}
