package accessrule

// RuleDelayBetweenAttempts is the registry name of the inter-attempt delay rule.
const RuleDelayBetweenAttempts = "delaybetweenattempts"

// DelayRule enforces a waiting period after the first and later attempts.
type DelayRule struct {
	Base
}

// NewDelayRule returns the delay rule, or nil when both delays are disabled.
func NewDelayRule(policy Policy, env Env) Rule {
	if policy.DelayFirst == 0 && policy.DelayLater == 0 {
		return nil
	}
	return &DelayRule{Base: Base{Policy: policy, Env: env}}
}

// Name returns the rule name.
func (r *DelayRule) Name() string { return RuleDelayBetweenAttempts }

// PreventNewAttempt denies while the required wait has not elapsed.
// Attempt-cap and close-time exits are left to the rules that own them.
func (r *DelayRule) PreventNewAttempt(numPrevAttempts int, lastAttempt *Attempt) *Denial {
	if r.Policy.Attempts > 0 && numPrevAttempts >= r.Policy.Attempts {
		return nil
	}
	if r.Policy.TimeClose != 0 && r.Env.Now > r.Policy.TimeClose {
		return nil
	}

	next := r.NextStartTime(numPrevAttempts, lastAttempt)
	if r.Env.Now >= next {
		return nil
	}
	if r.Policy.TimeClose == 0 || next <= r.Policy.TimeClose {
		return &Denial{Rule: r.Name(), Code: ReasonWaitUntil, Until: next}
	}
	return &Denial{Rule: r.Name(), Code: ReasonCannotWait}
}

// IsFinished reports true while waiting for a start time at or after the close time.
// The answer depends on Env.Now and is recomputed on every call.
func (r *DelayRule) IsFinished(numPrevAttempts int, lastAttempt *Attempt) bool {
	next := r.NextStartTime(numPrevAttempts, lastAttempt)
	return r.Env.Now <= next && r.Policy.TimeClose != 0 && next >= r.Policy.TimeClose
}

// NextStartTime computes when the next attempt may start, 0 for no delay.
func (r *DelayRule) NextStartTime(numPrevAttempts int, lastAttempt *Attempt) int64 {
	return ComputeNextStartTime(r.Policy, numPrevAttempts, lastAttempt)
}

// ComputeNextStartTime returns the earliest start of the next attempt under the
// policy's delays. The last attempt's finish is capped at its nominal deadline so
// that overdue submissions do not extend the wait.
func ComputeNextStartTime(policy Policy, numPrevAttempts int, lastAttempt *Attempt) int64 {
	if numPrevAttempts == 0 || lastAttempt == nil {
		return 0
	}

	finish := lastAttempt.TimeFinish
	if policy.TimeLimit > 0 {
		if deadline := lastAttempt.TimeStart + policy.TimeLimit; deadline < finish {
			finish = deadline
		}
	}

	switch {
	case numPrevAttempts == 1 && policy.DelayFirst != 0:
		return finish + policy.DelayFirst
	case numPrevAttempts > 1 && policy.DelayLater != 0:
		return finish + policy.DelayLater
	default:
		return 0
	}
}
