package mcpcore

import "testing"

func TestNormalizeJobID(t *testing.T) {
	cases := []struct {
		in   map[string]any
		want string
	}{
		{map[string]any{"job_id": "abc"}, "abc"},
		{map[string]any{"jobId": "abc"}, "abc"},
		{map[string]any{"id": "abc"}, "abc"},
		{map[string]any{"random_string": "abc"}, "abc"},
	}
	for _, c := range cases {
		out := normalizeJobID(c.in)
		if out["job_id"] != c.want {
			t.Errorf("normalizeJobID(%+v) = %+v, want job_id=%q", c.in, out, c.want)
		}
	}
}

func TestNormalizeRetrieve_InfersModeFromSQL(t *testing.T) {
	out := normalizeRetrieve(map[string]any{"random_string": "SELECT 1"})
	if out["mode"] != "sql" || out["sql"] != "SELECT 1" {
		t.Errorf("expected sql mode inferred from loose string, got %+v", out)
	}
}

func TestNormalizeRetrieve_InfersIndexModeByDefault(t *testing.T) {
	out := normalizeRetrieve(map[string]any{"random_string": "what is bm25"})
	if out["mode"] != "index" || out["query"] != "what is bm25" {
		t.Errorf("expected index mode inferred from loose string, got %+v", out)
	}
}

func TestNormalizeRetrieve_ExplicitModeUntouched(t *testing.T) {
	in := map[string]any{"mode": "sql", "sql": "SELECT 1"}
	out := normalizeRetrieve(in)
	if out["mode"] != "sql" {
		t.Errorf("expected explicit mode to pass through untouched, got %+v", out)
	}
}

func TestNormalizeResearch(t *testing.T) {
	out := normalizeResearch(map[string]any{"q": "what is bm25"})
	if out["query"] != "what is bm25" {
		t.Errorf("expected q aliased to query, got %+v", out)
	}

	out = normalizeResearch(map[string]any{"raw": "what is bm25"})
	if out["query"] != "what is bm25" {
		t.Errorf("expected loose carrier aliased to query, got %+v", out)
	}
}

func TestNormalizeHistory_NumericVsFilter(t *testing.T) {
	out := normalizeHistory(map[string]any{"random_string": "5"})
	if out["limit"] != 5 {
		t.Errorf("expected numeric loose string to become limit, got %+v", out)
	}

	out = normalizeHistory(map[string]any{"random_string": "golang"})
	if out["queryFilter"] != "golang" {
		t.Errorf("expected non-numeric loose string to become queryFilter, got %+v", out)
	}
}
