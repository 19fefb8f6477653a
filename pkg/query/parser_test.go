package query

import (
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	eperrors "github.com/emailpilot/epctl/pkg/errors"
)

func testContext() Context {
	return Context{
		ConversionMetricID: "MET-123",
		Now:                fixedNow,
	}
}

func requestsOfType(requests []Request, qtype Type) []Request {
	var out []Request
	for _, r := range requests {
		if r.Type == qtype {
			out = append(out, r)
		}
	}
	return out
}

func TestParse_SingleClauseTypes(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name     string
		input    string
		wantType Type
		wantTool string
	}{
		{"campaign_performance", "get campaign performance for last 30 days", TypeCampaignPerformance, ToolCampaignsList},
		{"segments", "list all active segments", TypeSegments, ToolSegmentsList},
		{"revenue", "total revenue for the last 7 days", TypeRevenue, ToolMetricsAggregate},
		{"send_time", "what is the optimal time to send", TypeSendTimeAnalysis, ToolCampaignsList},
		{"content", "analyze our subject lines", TypeContentAnalysis, ToolCampaignsList},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requests := p.Parse(tt.input, testContext())
			matched := requestsOfType(requests, tt.wantType)
			if len(matched) == 0 {
				t.Fatalf("no %s request parsed from %q (got %d requests)", tt.wantType, tt.input, len(requests))
			}
			if matched[0].Tool != tt.wantTool {
				t.Errorf("Tool = %q, want %q", matched[0].Tool, tt.wantTool)
			}
		})
	}
}

func TestParse_MultiClause(t *testing.T) {
	p := NewParser()
	input := "get campaign performance for last 30 days. list all active segments"
	requests := p.Parse(input, testContext())

	if len(requestsOfType(requests, TypeCampaignPerformance)) == 0 {
		t.Error("missing campaign_performance request")
	}
	if len(requestsOfType(requests, TypeSegments)) == 0 {
		t.Error("missing segments request")
	}
}

func TestParse_NewlineSplit(t *testing.T) {
	p := NewParser()
	input := "campaign performance last 7 days\nrevenue month to date"
	requests := p.Parse(input, testContext())

	if len(requestsOfType(requests, TypeCampaignPerformance)) == 0 {
		t.Error("missing campaign_performance request")
	}
	if len(requestsOfType(requests, TypeRevenue)) == 0 {
		t.Error("missing revenue request")
	}
}

func TestParse_DecimalDoesNotSplit(t *testing.T) {
	clauses := splitClauses("revenue grew 3.5 percent. list segments")
	if len(clauses) != 2 {
		t.Fatalf("clauses = %d (%q), want 2", len(clauses), clauses)
	}
	if clauses[0] != "revenue grew 3.5 percent" {
		t.Errorf("first clause = %q, digit-guard failed", clauses[0])
	}
}

func TestParse_Idempotent(t *testing.T) {
	p := NewParser()
	input := "campaign performance last 30 days. active segments. revenue for October 2023"

	first := p.Parse(input, testContext())
	second := p.Parse(input, testContext())

	if !reflect.DeepEqual(first, second) {
		t.Error("parsing the same input twice produced different request lists")
	}
}

func TestParse_Deduplication(t *testing.T) {
	p := NewParser()
	// Two clauses resolving to the identical segments.list call.
	input := "list all segments. show me the segments"
	requests := p.Parse(input, testContext())

	segs := requestsOfType(requests, TypeSegments)
	if len(segs) != 1 {
		t.Errorf("segments requests = %d, want 1 after dedup", len(segs))
	}
}

func TestParse_UnmatchedClausesDropped(t *testing.T) {
	p := NewParser()
	requests := p.Parse("hello there. how is the weather today", testContext())
	if len(requests) != 0 {
		t.Errorf("requests = %d, want 0 for unmatched input", len(requests))
	}
}

func TestParse_RevenueWithoutMetricIDFailsClosed(t *testing.T) {
	p := NewParser()
	qctx := Context{Now: fixedNow} // no ConversionMetricID
	requests := p.Parse("revenue for the last 7 days", qctx)

	revs := requestsOfType(requests, TypeRevenue)
	if len(revs) != 1 {
		t.Fatalf("revenue requests = %d, want 1", len(revs))
	}
	if revs[0].Precondition == nil {
		t.Fatal("Precondition = nil, want a fail-closed marker")
	}
	if !eperrors.IsPrecondition(revs[0].Precondition) {
		t.Errorf("Precondition = %v, want ErrPrecondition in chain", revs[0].Precondition)
	}
}

func TestParse_MultiMonthFansOut(t *testing.T) {
	p := NewParser()
	requests := p.Parse("revenue for October 2023 and November 2023", testContext())

	revs := requestsOfType(requests, TypeRevenue)
	if len(revs) != 2 {
		t.Fatalf("revenue requests = %d, want 2 (one per month)", len(revs))
	}
	if revs[0].TimeRange.Start.Month() != time.October {
		t.Errorf("first request month = %v, want October", revs[0].TimeRange.Start.Month())
	}
	if revs[1].TimeRange.Start.Month() != time.November {
		t.Errorf("second request month = %v, want November", revs[1].TimeRange.Start.Month())
	}
}

func TestParse_MetricExtraction(t *testing.T) {
	p := NewParser()
	requests := p.Parse("campaign performance with open rate and click rate", testContext())

	camps := requestsOfType(requests, TypeCampaignPerformance)
	if len(camps) == 0 {
		t.Fatal("no campaign_performance request")
	}
	want := []string{"open_rate", "click_rate"}
	if !reflect.DeepEqual(camps[0].Metrics, want) {
		t.Errorf("Metrics = %v, want %v", camps[0].Metrics, want)
	}
}

func TestParse_DefaultMetricsApply(t *testing.T) {
	p := NewParser()
	requests := p.Parse("show campaign performance", testContext())

	camps := requestsOfType(requests, TypeCampaignPerformance)
	if len(camps) == 0 {
		t.Fatal("no campaign_performance request")
	}
	if len(camps[0].Metrics) == 0 {
		t.Error("Metrics empty, want type defaults")
	}
}

func TestParse_CampaignRevenueMetricAddsAggregate(t *testing.T) {
	p := NewParser()
	requests := p.Parse("campaign performance with revenue last 30 days", testContext())

	if len(requestsOfType(requests, TypeCampaignPerformance)) == 0 {
		t.Error("missing campaign listing request")
	}
	if len(requestsOfType(requests, TypeRevenue)) == 0 {
		t.Error("missing revenue aggregation request for campaign revenue metric")
	}
}

func TestParse_DefaultWindowApplied(t *testing.T) {
	p := NewParser()
	requests := p.Parse("show campaign performance", testContext())

	camps := requestsOfType(requests, TypeCampaignPerformance)
	if len(camps) == 0 {
		t.Fatal("no campaign_performance request")
	}
	start, ok := camps[0].Params["start_time"].(string)
	if !ok || start == "" {
		t.Error("params missing default start_time window")
	}
}

func TestParse_ActiveSegmentFilter(t *testing.T) {
	p := NewParser()
	requests := p.Parse("list all active segments", testContext())

	segs := requestsOfType(requests, TypeSegments)
	if len(segs) == 0 {
		t.Fatal("no segments request")
	}
	if v, ok := segs[0].Filters["is_active"].(bool); !ok || !v {
		t.Errorf("Filters = %v, want is_active=true", segs[0].Filters)
	}
}

func TestRequest_KeyDeterministic(t *testing.T) {
	a := Request{
		Tool:   ToolCampaignsList,
		Params: map[string]interface{}{"page_size": 50, "start_time": "x", "end_time": "y"},
	}
	b := Request{
		Tool:   ToolCampaignsList,
		Params: map[string]interface{}{"end_time": "y", "start_time": "x", "page_size": 50},
	}
	if a.Key() != b.Key() {
		t.Errorf("keys differ for identical params:\n%s\n%s", a.Key(), b.Key())
	}
}

func TestDescribeTruncatesOnRuneBoundary(t *testing.T) {
	// 59 ASCII bytes followed by a multibyte rune straddling the cap.
	clause := strings.Repeat("a", 59) + "é and more text to exceed the limit"

	desc := describe(TypeCampaignPerformance, clause)
	if !utf8.ValidString(desc) {
		t.Fatalf("describe produced invalid UTF-8: %q", desc)
	}
	if !strings.HasSuffix(desc, "…") {
		t.Errorf("long clause description should end with ellipsis: %q", desc)
	}

	short := describe(TypeSegments, "active segments")
	if short != "segments: active segments" {
		t.Errorf("short clause description = %q", short)
	}
}
