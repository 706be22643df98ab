package accessrule

import (
	log "github.com/sirupsen/logrus"
)

// Manager aggregates the outcomes of an active rule set for one decision session.
// Every rule is evaluated; denials are collected, never short-circuited.
type Manager struct {
	policy Policy
	env    Env
	rules  []Rule
}

// NewManager constructs a Manager over already-built rules.
func NewManager(policy Policy, env Env, rules []Rule) *Manager {
	return &Manager{policy: policy, env: env, rules: rules}
}

// Rules returns the active rules in evaluation order.
func (m *Manager) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Policy returns the policy the rule set was built for.
func (m *Manager) Policy() Policy { return m.policy }

// Env returns the bound evaluation context.
func (m *Manager) Env() Env { return m.env }

// Descriptions returns the non-empty descriptions of all active rules.
func (m *Manager) Descriptions() []string {
	var out []string
	for _, rule := range m.rules {
		if desc := rule.Description(); desc != "" {
			out = append(out, desc)
		}
	}
	return out
}

// PreventAccess folds every rule's access check.
func (m *Manager) PreventAccess() Verdict {
	var verdict Verdict
	for _, rule := range m.rules {
		if denial := rule.PreventAccess(); denial != nil {
			m.logDenial("access", denial)
			verdict.Denials = append(verdict.Denials, *denial)
		}
	}
	return verdict
}

// PreventNewAttempt folds every rule's new-attempt check.
func (m *Manager) PreventNewAttempt(numPrevAttempts int, lastAttempt *Attempt) Verdict {
	var verdict Verdict
	for _, rule := range m.rules {
		if denial := rule.PreventNewAttempt(numPrevAttempts, lastAttempt); denial != nil {
			m.logDenial("new_attempt", denial)
			verdict.Denials = append(verdict.Denials, *denial)
		}
	}
	return verdict
}

// IsFinished reports whether any rule closed the attempt sequence.
func (m *Manager) IsFinished(numPrevAttempts int, lastAttempt *Attempt) bool {
	for _, rule := range m.rules {
		if rule.IsFinished(numPrevAttempts, lastAttempt) {
			return true
		}
	}
	return false
}

// EndTime returns the earliest deadline imposed by any rule.
func (m *Manager) EndTime(attempt *Attempt) (int64, bool) {
	var (
		end   int64
		found bool
	)
	for _, rule := range m.rules {
		t, ok := rule.EndTime(attempt)
		if !ok {
			continue
		}
		if !found || t < end {
			end = t
			found = true
		}
	}
	return end, found
}

// TimeRemaining returns the smallest countdown any rule wants displayed.
func (m *Manager) TimeRemaining(attempt *Attempt, now int64) (int64, bool) {
	var (
		left  int64
		found bool
	)
	for _, rule := range m.rules {
		t, ok := rule.TimeRemaining(attempt, now)
		if !ok {
			continue
		}
		if !found || t < left {
			left = t
			found = true
		}
	}
	return left, found
}

// RequiresVerification reports whether any rule still needs an extra step.
func (m *Manager) RequiresVerification(state VerificationState, attemptID uint64) bool {
	for _, v := range m.verifiers() {
		if v.RequiresVerification(state, attemptID) {
			return true
		}
	}
	return false
}

// VerificationFields collects the inputs of every rule that still needs verification.
func (m *Manager) VerificationFields(state VerificationState, attemptID uint64) []Field {
	var out []Field
	for _, v := range m.verifiers() {
		if v.RequiresVerification(state, attemptID) {
			out = append(out, v.VerificationFields()...)
		}
	}
	return out
}

// ValidateVerification validates the submission against every pending verifier.
// It returns nil when all of them accept.
func (m *Manager) ValidateVerification(state VerificationState, attemptID uint64, submitted map[string]string) FieldErrors {
	var errs FieldErrors
	for _, v := range m.verifiers() {
		if !v.RequiresVerification(state, attemptID) {
			continue
		}
		for field, msg := range v.ValidateVerification(submitted) {
			if errs == nil {
				errs = FieldErrors{}
			}
			errs[field] = msg
		}
	}
	return errs
}

// NotifyVerificationPassed lets every pending verifier record success.
func (m *Manager) NotifyVerificationPassed(state VerificationState, attemptID uint64) VerificationState {
	for _, v := range m.verifiers() {
		if v.RequiresVerification(state, attemptID) {
			state = v.OnVerificationPassed(state)
		}
	}
	return state
}

// NotifyAttemptFinished lets every verifier drop its per-attempt state.
func (m *Manager) NotifyAttemptFinished(state VerificationState) VerificationState {
	for _, v := range m.verifiers() {
		state = v.OnAttemptFinished(state)
	}
	return state
}

// PopupRequired reports whether the attempt must render in an isolated window.
func (m *Manager) PopupRequired() bool {
	for _, rule := range m.rules {
		if p, ok := rule.(PopupProvider); ok && p.PopupRequired() {
			return true
		}
	}
	return false
}

// PopupOptions merges the window options of all popup rules.
func (m *Manager) PopupOptions() map[string]bool {
	out := map[string]bool{}
	for _, rule := range m.rules {
		p, ok := rule.(PopupProvider)
		if !ok || !p.PopupRequired() {
			continue
		}
		for k, v := range p.PopupOptions() {
			out[k] = v
		}
	}
	return out
}

func (m *Manager) verifiers() []Verifier {
	var out []Verifier
	for _, rule := range m.rules {
		if v, ok := rule.(Verifier); ok {
			out = append(out, v)
		}
	}
	return out
}

func (m *Manager) logDenial(check string, denial *Denial) {
	log.WithFields(log.Fields{
		"quiz_id": m.policy.QuizID,
		"check":   check,
		"rule":    denial.Rule,
		"code":    denial.Code,
	}).Debug("access rule denied")
}
