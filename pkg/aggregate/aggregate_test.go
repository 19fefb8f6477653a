package aggregate

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	eperrors "github.com/emailpilot/epctl/pkg/errors"
	"github.com/emailpilot/epctl/pkg/normalize"
	"github.com/emailpilot/epctl/pkg/query"
)

func newTestAggregator() *Aggregator {
	return New(normalize.DefaultConvention, nil)
}

func okResult(qtype query.Type, tool string, payload string) query.Result {
	return query.Result{
		Request: query.Request{Type: qtype, Tool: tool},
		Data:    json.RawMessage(payload),
	}
}

func failedResult(qtype query.Type, tool string) query.Result {
	return query.Result{
		Request: query.Request{Type: qtype, Tool: tool},
		Err:     eperrors.NewPermanentError(eperrors.CodeBadRequest, "rejected", nil),
	}
}

func TestAggregate_SectionAbsentWithoutSuccess(t *testing.T) {
	agg := newTestAggregator()

	out, _ := agg.Aggregate([]query.Result{
		okResult(query.TypeSegments, query.ToolSegmentsList, `{"data":[{"id":"s1","name":"VIP","is_active":true}]}`),
		failedResult(query.TypeCampaignPerformance, query.ToolCampaignsList),
	})

	if out.Segments == nil {
		t.Fatal("segments section absent, want present")
	}
	if out.Campaigns != nil {
		t.Error("campaigns section present despite only a failed result")
	}
	if out.Revenue != nil || out.SendTimes != nil || out.Content != nil {
		t.Error("unrequested sections present, want absent")
	}
	if got := out.Sections(); len(got) != 1 || got[0] != "segments" {
		t.Errorf("Sections() = %v, want [segments]", got)
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	out, maps := newTestAggregator().Aggregate(nil)
	if len(out.Sections()) != 0 {
		t.Errorf("Sections() = %v, want none", out.Sections())
	}
	if len(maps) != 0 {
		t.Errorf("normalization maps = %d, want 0", len(maps))
	}
}

func TestAggregate_CampaignsCapAndTotal(t *testing.T) {
	records := make([]string, 0, 13)
	for i := 0; i < 13; i++ {
		records = append(records, fmt.Sprintf(
			`{"id":"c%d","name":"Campaign %d","status":"sent","sent_count":100,"open_rate":25}`, i, i))
	}
	payload := `{"data":[` + strings.Join(records, ",") + `]}`

	out, maps := newTestAggregator().Aggregate([]query.Result{
		okResult(query.TypeCampaignPerformance, query.ToolCampaignsList, payload),
	})

	c := out.Campaigns
	if c == nil {
		t.Fatal("campaigns section absent")
	}
	if len(c.Items) != 10 {
		t.Errorf("items = %d, want capped at 10", len(c.Items))
	}
	if c.Total != 13 {
		t.Errorf("total = %d, want 13 over the full set", c.Total)
	}
	if len(c.Records) != 13 {
		t.Errorf("records = %d, want 13 for scoring", len(c.Records))
	}
	if len(maps) != 13 {
		t.Errorf("normalization maps = %d, want one per record", len(maps))
	}
	// Rates are converted per the connector convention.
	if got := normalize.Float(c.Records[0], normalize.FieldOpenRate); got != 0.25 {
		t.Errorf("open_rate = %v, want 0.25", got)
	}
}

func TestAggregate_SegmentsActiveCount(t *testing.T) {
	out, _ := newTestAggregator().Aggregate([]query.Result{
		okResult(query.TypeSegments, query.ToolSegmentsList, `{"data":[
			{"id":"s1","name":"VIP","is_active":true},
			{"id":"s2","name":"Churned","is_active":false},
			{"id":"s3","name":"Engaged","is_active":true}
		]}`),
	})

	s := out.Segments
	if s == nil {
		t.Fatal("segments section absent")
	}
	if s.Total != 3 {
		t.Errorf("total = %d, want 3", s.Total)
	}
	if s.Active != 2 {
		t.Errorf("active = %d, want 2", s.Active)
	}
}

func TestAggregate_RevenueSeries(t *testing.T) {
	payload := `{"data":{"results":[{
		"measurements":{"sum_value":[100.5,200.25,49.25],"count":[3,5,2]},
		"dates":["2024-05-01","2024-05-02","2024-05-03"]
	}]}}`

	out, _ := newTestAggregator().Aggregate([]query.Result{
		okResult(query.TypeRevenue, query.ToolMetricsAggregate, payload),
	})

	r := out.Revenue
	if r == nil {
		t.Fatal("revenue section absent")
	}
	if r.TotalRevenue != 350.0 {
		t.Errorf("total_revenue = %v, want 350", r.TotalRevenue)
	}
	if r.Transactions != 10 {
		t.Errorf("transactions = %d, want 10", r.Transactions)
	}
	if len(r.Series) != 3 {
		t.Fatalf("series length = %d, want 3", len(r.Series))
	}
	if r.Series[1].Date != "2024-05-02" || r.Series[1].Orders != 5 {
		t.Errorf("series[1] = %+v, want date 2024-05-02 with 5 orders", r.Series[1])
	}
}

func TestAggregate_SendTimeFrequency(t *testing.T) {
	// Three Tuesday-10:00 sends, two Thursday-14:00, one each of four
	// other slots so only the top five survive.
	payload := `{"data":[
		{"id":"c1","send_time":"2024-05-07T10:15:00Z"},
		{"id":"c2","send_time":"2024-05-14T10:45:00Z"},
		{"id":"c3","send_time":"2024-05-21T10:05:00Z"},
		{"id":"c4","send_time":"2024-05-09T14:00:00Z"},
		{"id":"c5","send_time":"2024-05-16T14:30:00Z"},
		{"id":"c6","send_time":"2024-05-06T08:00:00Z"},
		{"id":"c7","send_time":"2024-05-08T09:00:00Z"},
		{"id":"c8","send_time":"2024-05-10T16:00:00Z"},
		{"id":"c9","send_time":"2024-05-11T12:00:00Z"},
		{"id":"c10","send_time":"not a timestamp"}
	]}`

	out, _ := newTestAggregator().Aggregate([]query.Result{
		okResult(query.TypeSendTimeAnalysis, query.ToolCampaignsList, payload),
	})

	st := out.SendTimes
	if st == nil {
		t.Fatal("send_times section absent")
	}
	if st.Analyzed != 9 {
		t.Errorf("analyzed = %d, want 9 (unparseable timestamp skipped)", st.Analyzed)
	}
	if len(st.OptimalTimes) != 5 {
		t.Fatalf("optimal_times = %d, want top 5", len(st.OptimalTimes))
	}
	if st.OptimalTimes[0].Slot != "tuesday_10" || st.OptimalTimes[0].Count != 3 {
		t.Errorf("top slot = %+v, want tuesday_10 x3", st.OptimalTimes[0])
	}
	if st.OptimalTimes[1].Slot != "thursday_14" || st.OptimalTimes[1].Count != 2 {
		t.Errorf("second slot = %+v, want thursday_14 x2", st.OptimalTimes[1])
	}
}

func TestAggregate_ContentCap(t *testing.T) {
	records := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		records = append(records, fmt.Sprintf(`{"name":"Campaign %d","status":"sent"}`, i))
	}
	out, _ := newTestAggregator().Aggregate([]query.Result{
		okResult(query.TypeContentAnalysis, query.ToolCampaignsList, `{"data":[`+strings.Join(records, ",")+`]}`),
	})

	c := out.Content
	if c == nil {
		t.Fatal("content section absent")
	}
	if len(c.Items) != 20 {
		t.Errorf("items = %d, want capped at 20", len(c.Items))
	}
	if c.Total != 25 {
		t.Errorf("total = %d, want 25", c.Total)
	}
}

func TestAggregate_CompanionRevenueRequestSkippedInCampaigns(t *testing.T) {
	// A campaign-performance clause with revenue metrics fans out a second
	// metric-aggregate request; it must not pollute the campaign list.
	out, _ := newTestAggregator().Aggregate([]query.Result{
		okResult(query.TypeCampaignPerformance, query.ToolCampaignsList,
			`{"data":[{"id":"c1","name":"Spring Sale","status":"sent"}]}`),
		okResult(query.TypeCampaignPerformance, query.ToolMetricsAggregate,
			`{"data":{"results":[{"measurements":{"sum_value":[10],"count":[1]}}]}}`),
	})

	if out.Campaigns == nil {
		t.Fatal("campaigns section absent")
	}
	if out.Campaigns.Total != 1 {
		t.Errorf("campaign total = %d, want 1", out.Campaigns.Total)
	}
}

func TestSendSlot(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-05-07T10:15:00Z", "tuesday_10", true},
		{"2024-05-06T08:59:59Z", "monday_08", true},
		{"", "", false},
		{"garbage", "", false},
	}
	for _, tt := range tests {
		got, ok := sendSlot(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("sendSlot(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
