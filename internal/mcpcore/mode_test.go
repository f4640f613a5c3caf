package mcpcore

import "testing"

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"AGENT":  ModeAgent,
		"MANUAL": ModeManual,
		"ALL":    ModeAll,
		"":       ModeAll,
		"bogus":  ModeAll,
	}
	for in, want := range cases {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestToolVisible(t *testing.T) {
	cases := []struct {
		name     string
		alwaysOn bool
		mode     Mode
		want     bool
	}{
		{"ping", true, ModeAgent, true},
		{"ping", true, ModeManual, true},
		{"job_status", false, ModeAgent, true}, // in alwaysOnTools
		{"agent", false, ModeAgent, true},
		{"agent", false, ModeManual, false},
		{"research", false, ModeAgent, false},
		{"research", false, ModeManual, true},
		{"research", false, ModeAll, true},
	}
	for _, c := range cases {
		if got := toolVisible(c.name, c.alwaysOn, c.mode); got != c.want {
			t.Errorf("toolVisible(%q, %v, %v) = %v, want %v", c.name, c.alwaysOn, c.mode, got, c.want)
		}
	}
}
