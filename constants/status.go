package constants

// Decision is the outcome of the acceptance gate for one pipeline run.
type Decision string

// Stable values (stored as-is in menu_runs.decision).
const (
	DecisionAccepted Decision = "ACCEPTED" // menu with enough confidence
	DecisionReview   Decision = "REVIEW"   // low confidence either way
	DecisionRejected Decision = "REJECTED" // confidently not a menu
	DecisionRetry    Decision = "RETRY"    // both engines failed
)

// VerdictSource records which classifier produced a ValidationResult.
type VerdictSource string

const (
	VerdictSourceLLM       VerdictSource = "llm"
	VerdictSourceHeuristic VerdictSource = "heuristic"
)
