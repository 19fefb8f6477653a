// Package normalize reconciles heterogeneous upstream record shapes onto the
// canonical campaign schema used by aggregation and insights. Different
// connectors name the same measurement differently ("sent_count" vs "sends")
// and disagree on whether rates arrive as percentages or decimals; this
// package resolves both via a static alias table and an explicit per-connector
// unit convention.
package normalize

import "fmt"

// Canonical field names produced by Normalize.
const (
	FieldCampaignID          = "campaign_id"
	FieldCampaignName        = "campaign_name"
	FieldStatus              = "status"
	FieldSendTime            = "send_time"
	FieldAudiences           = "audiences"
	FieldSends               = "sends"
	FieldOpenRate            = "open_rate"
	FieldClickRate           = "click_rate"
	FieldRevenuePerRecipient = "revenue_per_recipient"
	FieldPlacedOrderCount    = "placed_order_count"
	FieldTotalRevenue        = "total_revenue"
)

// aliasEntry binds one canonical field to its accepted upstream names,
// checked in order with first match winning, plus its value kind.
type aliasEntry struct {
	canonical string
	aliases   []string
	kind      fieldKind
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindRate // numeric, subject to percent-to-decimal conversion
	kindAny
)

// aliasTable is the static canonical-name → upstream-alias mapping. The
// canonical name itself is always accepted first so already-normalized
// records pass through untouched.
var aliasTable = []aliasEntry{
	{FieldCampaignID, []string{FieldCampaignID, "id", "message_id"}, kindString},
	{FieldCampaignName, []string{FieldCampaignName, "name", "campaign", "subject"}, kindString},
	{FieldStatus, []string{FieldStatus, "state", "campaign_status"}, kindString},
	{FieldSendTime, []string{FieldSendTime, "sent_at", "scheduled_at", "send_at"}, kindString},
	{FieldAudiences, []string{FieldAudiences, "included_audiences", "lists"}, kindAny},
	{FieldSends, []string{FieldSends, "sent_count", "recipients", "delivered"}, kindNumber},
	{FieldOpenRate, []string{FieldOpenRate, "opens_rate", "unique_open_rate"}, kindRate},
	{FieldClickRate, []string{FieldClickRate, "clicks_rate", "unique_click_rate", "ctr"}, kindRate},
	{FieldRevenuePerRecipient, []string{FieldRevenuePerRecipient, "rpr", "revenue_per_recipient_value"}, kindNumber},
	{FieldPlacedOrderCount, []string{FieldPlacedOrderCount, "conversions", "orders", "placed_orders"}, kindNumber},
	{FieldTotalRevenue, []string{FieldTotalRevenue, "conversion_value", "attributed_revenue"}, kindNumber},
}

// Convention declares how a connector encodes units. Conversion is gated on
// this flag, never inferred from value magnitude, so already-decimal inputs
// are never mangled.
type Convention struct {
	// Connector names the upstream source, for the audit trail.
	Connector string

	// RatesAsPercent is true when the connector reports rate fields as
	// whole-number percentages (25 meaning 25%). Normalize divides such
	// values by 100.
	RatesAsPercent bool
}

// DefaultConvention matches the primary metrics gateway, which reports rates
// as whole-number percentages.
var DefaultConvention = Convention{Connector: "gateway", RatesAsPercent: true}

// Map records which upstream alias supplied each canonical field during one
// Normalize call. It is returned alongside the data (and persisted for audit),
// never discarded.
type Map map[string]string

// Normalize maps a raw upstream record onto the canonical schema. Every
// canonical field is present in the output, defaulted type-appropriately when
// no alias matched. Fields outside the alias table pass through unchanged.
func Normalize(raw map[string]interface{}, conv Convention) (map[string]interface{}, Map) {
	out := make(map[string]interface{}, len(raw)+len(aliasTable))
	used := make(Map)
	claimed := make(map[string]struct{}, len(aliasTable))

	for _, entry := range aliasTable {
		matched := false
		for _, alias := range entry.aliases {
			value, ok := raw[alias]
			if !ok {
				continue
			}
			out[entry.canonical] = convertValue(value, entry.kind, conv)
			if alias != entry.canonical {
				used[entry.canonical] = alias
			}
			claimed[alias] = struct{}{}
			matched = true
			break
		}
		if !matched {
			out[entry.canonical] = zeroFor(entry.kind)
		}
	}

	// Pass through everything the alias table does not cover.
	for key, value := range raw {
		if _, taken := claimed[key]; taken {
			continue
		}
		if _, exists := out[key]; exists {
			continue
		}
		out[key] = value
	}

	return out, used
}

// convertValue coerces the raw value per field kind, applying the connector's
// unit convention to rate fields.
func convertValue(value interface{}, kind fieldKind, conv Convention) interface{} {
	switch kind {
	case kindString:
		if s, ok := value.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", value)
	case kindNumber:
		return toFloat(value)
	case kindRate:
		rate := toFloat(value)
		if conv.RatesAsPercent {
			rate /= 100
		}
		return rate
	default:
		return value
	}
}

func zeroFor(kind fieldKind) interface{} {
	switch kind {
	case kindString:
		return ""
	case kindNumber, kindRate:
		return float64(0)
	default:
		return nil
	}
}

// toFloat widens the numeric types JSON decoding and upstream clients
// produce. Non-numeric values collapse to 0.
func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	default:
		return 0
	}
}

// Float reads a canonical numeric field from a normalized record.
func Float(record map[string]interface{}, field string) float64 {
	return toFloat(record[field])
}

// String reads a canonical string field from a normalized record.
func String(record map[string]interface{}, field string) string {
	if s, ok := record[field].(string); ok {
		return s
	}
	return ""
}
