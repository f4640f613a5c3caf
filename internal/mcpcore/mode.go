package mcpcore

// Mode is the process-wide tool-exposure mode (§4.7 "Mode gating").
type Mode string

const (
	ModeAgent  Mode = "AGENT"
	ModeManual Mode = "MANUAL"
	ModeAll    Mode = "ALL"
)

// ParseMode normalizes a configured mode string, defaulting to ALL for
// anything unrecognized.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeAgent, ModeManual, ModeAll:
		return Mode(s)
	default:
		return ModeAll
	}
}

// alwaysOnTools is exposed regardless of mode (§4.7).
var alwaysOnTools = map[string]bool{
	"ping":               true,
	"get_server_status":  true,
	"job_status":         true,
	"get_job_status":     true,
	"get_job_result":     true,
	"cancel_job":         true,
}

// unifiedEntryTool is AGENT mode's single research/retrieve/follow-up
// dispatch tool.
const unifiedEntryTool = "agent"

// toolVisible reports whether tool name is exposed under mode m.
func toolVisible(name string, alwaysOn bool, m Mode) bool {
	if alwaysOn || alwaysOnTools[name] {
		return true
	}
	switch m {
	case ModeAll:
		return true
	case ModeAgent:
		return name == unifiedEntryTool
	case ModeManual:
		return name != unifiedEntryTool
	default:
		return true
	}
}
