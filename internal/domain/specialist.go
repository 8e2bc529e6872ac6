package domain

import "context"

// OutcomeKind classifies what a specialist did with a turn.
type OutcomeKind int

const (
	// OutcomeDeclined means the turn did not match the specialist's domain.
	OutcomeDeclined OutcomeKind = iota
	// OutcomeText means the specialist produced final user-facing text.
	OutcomeText
	// OutcomeReport means the specialist performed an action and returned a
	// structured report that still needs persona rendering.
	OutcomeReport
)

// ActionReport is a structured confirmation of something a specialist did.
type ActionReport struct {
	Task   string `json:"task"`   // domain, e.g. "finance"
	Status string `json:"status"` // e.g. "registered", "needs_clarification"
	Action string `json:"action"` // machine name, e.g. "expense_registered"
	Detail string `json:"detail"` // human-readable fact to confirm
}

// Outcome is the closed result set of one specialist invocation. A declined
// outcome carries no content. There is no separate "tried and failed" state:
// failures are contained by the dispatcher and surfaced as declined.
type Outcome struct {
	Kind   OutcomeKind
	Text   string
	Report *ActionReport
}

// Declined reports that the turn is outside the specialist's domain.
func Declined() Outcome { return Outcome{Kind: OutcomeDeclined} }

// Handled wraps final user-facing text.
func Handled(text string) Outcome { return Outcome{Kind: OutcomeText, Text: text} }

// HandledReport wraps a structured action confirmation.
func HandledReport(r ActionReport) Outcome {
	return Outcome{Kind: OutcomeReport, Report: &r}
}

// Empty reports whether the outcome carries no content.
func (o Outcome) Empty() bool {
	switch o.Kind {
	case OutcomeText:
		return o.Text == ""
	case OutcomeReport:
		return o.Report == nil
	default:
		return true
	}
}

// Specialist is a domain-specific handler that inspects a turn and either
// declines or produces a result. Implementations must be safe for concurrent
// use; each invocation receives the same immutable UserContext.
type Specialist interface {
	Name() string
	Handle(ctx context.Context, uc *UserContext) (Outcome, error)
}
