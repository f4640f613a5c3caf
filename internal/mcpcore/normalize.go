package mcpcore

import (
	"strconv"
	"strings"
)

// looseCarrierKeys are the field names a client may use to pass a whole
// tool argument as a single opaque string rather than the schema-typed
// object (§4.7 "Loose-argument normalization").
var looseCarrierKeys = []string{"random_string", "raw", "text", "payload"}

// looseCarrier extracts the single string payload from one of the
// recognized carrier fields, if present.
func looseCarrier(raw map[string]any) (string, bool) {
	for _, k := range looseCarrierKeys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// firstString returns the first present string value among the given keys.
func firstString(raw map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// normalizeCalc implements `calc`'s normalizer: a loose string becomes {expr}.
func normalizeCalc(raw map[string]any) map[string]any {
	if _, ok := raw["expr"]; ok {
		return raw
	}
	if s, ok := looseCarrier(raw); ok {
		return map[string]any{"expr": s}
	}
	return raw
}

// normalizeDateTime implements `date_time`'s normalizer: a loose string is
// taken as the requested format (iso|rfc|epoch).
func normalizeDateTime(raw map[string]any) map[string]any {
	if _, ok := raw["format"]; ok {
		return raw
	}
	if s, ok := looseCarrier(raw); ok {
		return map[string]any{"format": s}
	}
	return raw
}

// normalizeJobID implements the normalizer shared by `job_status`,
// `get_job_status`, `get_job_result`, and `cancel_job`: accepts job_id,
// jobId, id, or a bare loose string.
func normalizeJobID(raw map[string]any) map[string]any {
	if _, ok := raw["job_id"]; ok {
		return raw
	}
	if s, ok := firstString(raw, "jobId", "id"); ok {
		return map[string]any{"job_id": s}
	}
	if s, ok := looseCarrier(raw); ok {
		return map[string]any{"job_id": s}
	}
	return raw
}

// normalizeReportID implements the normalizer for `get_report` /
// `get_report_content`: accepts reportId, report_id, id, or a loose string.
func normalizeReportID(raw map[string]any) map[string]any {
	if _, ok := raw["reportId"]; ok {
		return raw
	}
	if s, ok := firstString(raw, "report_id", "id"); ok {
		return map[string]any{"reportId": s}
	}
	if s, ok := looseCarrier(raw); ok {
		return map[string]any{"reportId": s}
	}
	return raw
}

// normalizeHistory implements the normalizer for `history` /
// `list_research_history`: a numeric loose string is a limit, otherwise
// it's a query filter.
func normalizeHistory(raw map[string]any) map[string]any {
	if _, ok := raw["limit"]; ok {
		return raw
	}
	if _, ok := raw["queryFilter"]; ok {
		return raw
	}
	s, ok := looseCarrier(raw)
	if !ok {
		return raw
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return map[string]any{"limit": n}
	}
	return map[string]any{"queryFilter": s}
}

// normalizeRetrieve implements the normalizer for `retrieve`: infers SQL
// mode from the presence of a SELECT statement or an explicit mode:sql
// hint, otherwise treats the loose string as an index-mode query.
func normalizeRetrieve(raw map[string]any) map[string]any {
	if _, ok := raw["mode"]; ok {
		return raw
	}
	if _, ok := raw["sql"]; ok {
		out := cloneMap(raw)
		out["mode"] = "sql"
		return out
	}
	if _, ok := raw["query"]; ok {
		out := cloneMap(raw)
		out["mode"] = "index"
		return out
	}
	s, ok := looseCarrier(raw)
	if !ok {
		return raw
	}
	trimmed := strings.TrimSpace(s)
	if strings.Contains(strings.ToUpper(trimmed), "SELECT") {
		return map[string]any{"mode": "sql", "sql": trimmed}
	}
	return map[string]any{"mode": "index", "query": trimmed}
}

// normalizeResearch implements the normalizer shared by `research`,
// `submit_research`, and `conduct_research`: accepts query or alias q, or
// a bare loose string.
func normalizeResearch(raw map[string]any) map[string]any {
	if _, ok := raw["query"]; ok {
		return raw
	}
	if s, ok := firstString(raw, "q"); ok {
		out := cloneMap(raw)
		out["query"] = s
		return out
	}
	if s, ok := looseCarrier(raw); ok {
		return map[string]any{"query": s}
	}
	return raw
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
