package hybrid

// State is a step of the two-pass audit.
type State string

const (
	StateInit              State = "init"
	StatePatternsGenerated State = "patterns_generated"
	StatePass1Discovered   State = "pass1_discovered"
	StatePass1Scanned      State = "pass1_scanned"
	StatePatternsRefined   State = "patterns_refined"
	StatePass2Discovered   State = "pass2_discovered"
	StatePass2Scanned      State = "pass2_scanned"
	StateAggregated        State = "aggregated"
)

// Progress events sent to callers while an audit runs. Per-file events
// are "analyzing:<file>".
const (
	EventCloning   = "cloning"
	EventScanning  = "scanning"
	EventComplete  = "complete"
	EventError     = "error"
	EventAnalyzing = "analyzing:"
)
