package accessrule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ReasonCode identifies why a rule refused access or a new attempt.
type ReasonCode string

// ReasonCode constants.
const (
	ReasonNoMoreAttempts      ReasonCode = "no_more_attempts"
	ReasonWaitUntil           ReasonCode = "wait_until"
	ReasonCannotWait          ReasonCode = "cannot_wait"
	ReasonSubnetWrong         ReasonCode = "subnet_wrong"
	ReasonSafeBrowserRequired ReasonCode = "safe_browser_required"
	ReasonNotAvailable        ReasonCode = "not_available"
)

// Denial is a structured refusal produced by one rule.
// Until is only set for ReasonWaitUntil.
type Denial struct {
	Rule  string     `json:"rule"`
	Code  ReasonCode `json:"code"`
	Until int64      `json:"until,omitempty"`
}

// Message renders the default English text for the denial.
func (d Denial) Message() string {
	switch d.Code {
	case ReasonNoMoreAttempts:
		return "No more attempts are allowed"
	case ReasonWaitUntil:
		return fmt.Sprintf("You must wait before you may re-attempt this quiz. You will be allowed to start another attempt after %s.", formatTimestamp(d.Until))
	case ReasonCannotWait:
		return "This quiz closes before you will be allowed to start another attempt."
	case ReasonSubnetWrong:
		return "This quiz is only accessible from certain locations, and this computer is not on the allowed list."
	case ReasonSafeBrowserRequired:
		return "This quiz has been configured so that it may only be attempted using the Safe Exam Browser."
	case ReasonNotAvailable:
		return "This quiz is not currently available"
	default:
		return string(d.Code)
	}
}

// Verdict folds the denials of every active rule for one check.
type Verdict struct {
	Denials []Denial `json:"denials"`
}

// Allowed reports whether no rule denied.
func (v Verdict) Allowed() bool {
	return len(v.Denials) == 0
}

// Messages returns the rendered denial messages in rule order.
func (v Verdict) Messages() []string {
	out := make([]string, 0, len(v.Denials))
	for _, d := range v.Denials {
		out = append(out, d.Message())
	}
	return out
}

// FieldErrors maps a verification field name to its error text. Nil means valid.
type FieldErrors map[string]string

// Error implements error so callers may treat failures uniformly.
func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func formatTimestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("Monday, 2 January 2006, 15:04 MST")
}
