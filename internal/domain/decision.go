package domain

import "fmt"

// Decision is a staff verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	d := Decision(s)
	if d != DecisionApprove && d != DecisionReject {
		return "", fmt.Errorf("unknown decision %q: %w", s, ErrValidation)
	}
	return d, nil
}
