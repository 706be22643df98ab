package accessrule

import (
	"fmt"
	"strings"
	"time"
)

// Registry names of the simple rule variants.
const (
	RuleNumAttempts   = "numattempts"
	RuleOpenCloseDate = "openclosedate"
	RuleIPAddress     = "ipaddress"
	RulePassword      = "password"
	RuleSecureWindow  = "securewindow"
	RuleSafeBrowser   = "safebrowser"
	RuleTimeLimit     = "timelimit"
)

// showTimeBeforeDeadline is how long before the close time its countdown appears.
const showTimeBeforeDeadline int64 = 3600

// NumAttemptsRule caps the number of attempts.
type NumAttemptsRule struct {
	Base
}

// NewNumAttemptsRule returns the rule when the policy sets an attempt cap.
func NewNumAttemptsRule(policy Policy, env Env) Rule {
	if policy.Attempts <= 0 {
		return nil
	}
	return &NumAttemptsRule{Base: Base{Policy: policy, Env: env}}
}

// Name returns the rule name.
func (r *NumAttemptsRule) Name() string { return RuleNumAttempts }

// Description states the attempt cap.
func (r *NumAttemptsRule) Description() string {
	return fmt.Sprintf("Attempts allowed: %d", r.Policy.Attempts)
}

// PreventNewAttempt denies once the cap is reached.
func (r *NumAttemptsRule) PreventNewAttempt(numPrevAttempts int, _ *Attempt) *Denial {
	if numPrevAttempts >= r.Policy.Attempts {
		return &Denial{Rule: r.Name(), Code: ReasonNoMoreAttempts}
	}
	return nil
}

// IsFinished reports whether the cap is used up.
func (r *NumAttemptsRule) IsFinished(numPrevAttempts int, _ *Attempt) bool {
	return numPrevAttempts >= r.Policy.Attempts
}

// OpenCloseRule restricts access to the quiz's open window.
type OpenCloseRule struct {
	Base
}

// NewOpenCloseRule returns the rule when an open or close time is set.
func NewOpenCloseRule(policy Policy, env Env) Rule {
	if policy.TimeOpen == 0 && policy.TimeClose == 0 {
		return nil
	}
	return &OpenCloseRule{Base: Base{Policy: policy, Env: env}}
}

// Name returns the rule name.
func (r *OpenCloseRule) Name() string { return RuleOpenCloseDate }

// Description states the open and close times relative to now.
func (r *OpenCloseRule) Description() string {
	var parts []string
	if r.Policy.TimeOpen != 0 {
		if r.Env.Now < r.Policy.TimeOpen {
			parts = append(parts, "The quiz will open at "+formatTimestamp(r.Policy.TimeOpen))
		} else {
			parts = append(parts, "The quiz opened at "+formatTimestamp(r.Policy.TimeOpen))
		}
	}
	if r.Policy.TimeClose != 0 {
		if r.Env.Now > r.Policy.TimeClose {
			parts = append(parts, "This quiz closed on "+formatTimestamp(r.Policy.TimeClose))
		} else {
			parts = append(parts, "This quiz will close at "+formatTimestamp(r.Policy.TimeClose))
		}
	}
	return strings.Join(parts, ". ")
}

// PreventAccess denies before the open time and after the close time.
func (r *OpenCloseRule) PreventAccess() *Denial {
	if r.Policy.TimeOpen != 0 && r.Env.Now < r.Policy.TimeOpen {
		return &Denial{Rule: r.Name(), Code: ReasonNotAvailable}
	}
	if r.Policy.TimeClose != 0 && r.Env.Now > r.Policy.TimeClose {
		return &Denial{Rule: r.Name(), Code: ReasonNotAvailable}
	}
	return nil
}

// IsFinished reports whether the close time has passed.
func (r *OpenCloseRule) IsFinished(int, *Attempt) bool {
	return r.Policy.TimeClose != 0 && r.Env.Now > r.Policy.TimeClose
}

// EndTime is the close time, when one is set.
func (r *OpenCloseRule) EndTime(*Attempt) (int64, bool) {
	if r.Policy.TimeClose == 0 {
		return 0, false
	}
	return r.Policy.TimeClose, true
}

// TimeRemaining shows the close countdown only during the final hour.
func (r *OpenCloseRule) TimeRemaining(attempt *Attempt, now int64) (int64, bool) {
	end, ok := r.EndTime(attempt)
	if !ok || now <= end-showTimeBeforeDeadline {
		return 0, false
	}
	return end - now, true
}

// SubnetMatcher reports whether addr falls inside the subnet list.
type SubnetMatcher func(addr, subnet string) bool

// IPAddressRule restricts access to a network origin.
type IPAddressRule struct {
	Base
	match SubnetMatcher
}

// NewIPAddressRuleFactory binds the subnet collaborator into a constructor.
func NewIPAddressRuleFactory(match SubnetMatcher) func(Policy, Env) Rule {
	return func(policy Policy, env Env) Rule {
		if strings.TrimSpace(policy.Subnet) == "" {
			return nil
		}
		return &IPAddressRule{Base: Base{Policy: policy, Env: env}, match: match}
	}
}

// Name returns the rule name.
func (r *IPAddressRule) Name() string { return RuleIPAddress }

// PreventAccess denies callers whose address is outside the subnet list.
func (r *IPAddressRule) PreventAccess() *Denial {
	if r.match != nil && r.match(r.Env.RemoteAddr, r.Policy.Subnet) {
		return nil
	}
	return &Denial{Rule: r.Name(), Code: ReasonSubnetWrong}
}

// PasswordFieldName is the verification field collected by the password rule.
const PasswordFieldName = "quizpassword"

// PasswordRule requires the quiz password before an attempt is entered.
type PasswordRule struct {
	Base
}

// NewPasswordRule returns the rule when the policy sets a password.
func NewPasswordRule(policy Policy, env Env) Rule {
	if policy.Password == "" {
		return nil
	}
	return &PasswordRule{Base: Base{Policy: policy, Env: env}}
}

// Name returns the rule name.
func (r *PasswordRule) Name() string { return RulePassword }

// Description notes that a password is needed.
func (r *PasswordRule) Description() string {
	return "To attempt this quiz you need to know the quiz password"
}

// RequiresVerification is true until the password was accepted for this quiz.
func (r *PasswordRule) RequiresVerification(state VerificationState, _ uint64) bool {
	return !state.PasswordCheckedFor(r.Policy.QuizID)
}

// VerificationFields returns the password input.
func (r *PasswordRule) VerificationFields() []Field {
	return []Field{{Name: PasswordFieldName, Label: "Quiz password", Type: FieldPassword}}
}

// ValidateVerification accepts an exact, case-sensitive match of the password
// or any extra password. Input is not trimmed.
func (r *PasswordRule) ValidateVerification(submitted map[string]string) FieldErrors {
	entered, ok := submitted[PasswordFieldName]
	if ok {
		if entered == r.Policy.Password {
			return nil
		}
		for _, extra := range r.Policy.ExtraPasswords {
			if entered == extra {
				return nil
			}
		}
	}
	return FieldErrors{PasswordFieldName: "The password entered was incorrect"}
}

// OnVerificationPassed marks the quiz password as accepted.
func (r *PasswordRule) OnVerificationPassed(state VerificationState) VerificationState {
	return state.withPasswordChecked(r.Policy.QuizID, true)
}

// OnAttemptFinished forgets the accepted password so the next attempt asks again.
func (r *PasswordRule) OnAttemptFinished(state VerificationState) VerificationState {
	return state.withPasswordChecked(r.Policy.QuizID, false)
}

// SecureWindowRule renders the attempt in a locked-down popup. It never denies access.
type SecureWindowRule struct {
	Base
}

// NewSecureWindowRule returns the rule for the securewindow display mode.
func NewSecureWindowRule(policy Policy, env Env) Rule {
	if policy.BrowserSecurity != BrowserSecuritySecureWindow {
		return nil
	}
	return &SecureWindowRule{Base: Base{Policy: policy, Env: env}}
}

// Name returns the rule name.
func (r *SecureWindowRule) Name() string { return RuleSecureWindow }

// Description notes the secure window requirement.
func (r *SecureWindowRule) Description() string {
	return "Quiz must be taken in a secure window"
}

// PopupRequired is always true.
func (r *SecureWindowRule) PopupRequired() bool { return true }

// PopupOptions are the window features of the secure popup.
func (r *SecureWindowRule) PopupOptions() map[string]bool {
	return map[string]bool{
		"fullscreen":  true,
		"scrollbars":  true,
		"resizeable":  false,
		"directories": false,
		"toolbar":     false,
		"titlebar":    false,
		"location":    false,
		"status":      false,
		"menubar":     false,
	}
}

// safeBrowserAgentMarker is the identifier the secure exam browser sends.
const safeBrowserAgentMarker = "SEB"

// SafeBrowserRule requires the designated secure exam browser.
type SafeBrowserRule struct {
	Base
}

// NewSafeBrowserRule returns the rule for the safebrowser display mode.
func NewSafeBrowserRule(policy Policy, env Env) Rule {
	if policy.BrowserSecurity != BrowserSecuritySafeBrowser {
		return nil
	}
	return &SafeBrowserRule{Base: Base{Policy: policy, Env: env}}
}

// Name returns the rule name.
func (r *SafeBrowserRule) Name() string { return RuleSafeBrowser }

// Description notes the safe browser requirement.
func (r *SafeBrowserRule) Description() string {
	return "This quiz has been configured so that students may only attempt it using the Safe Exam Browser."
}

// PreventAccess denies user agents that do not identify as the safe browser.
func (r *SafeBrowserRule) PreventAccess() *Denial {
	if strings.Contains(r.Env.UserAgent, safeBrowserAgentMarker) {
		return nil
	}
	return &Denial{Rule: r.Name(), Code: ReasonSafeBrowserRequired}
}

// TimeLimitRule tracks the per-attempt time limit.
type TimeLimitRule struct {
	Base
}

// NewTimeLimitRule returns the rule when a limit is set and the actor cannot bypass it.
func NewTimeLimitRule(policy Policy, env Env) Rule {
	if policy.TimeLimit <= 0 || env.IgnoreTimeLimits {
		return nil
	}
	return &TimeLimitRule{Base: Base{Policy: policy, Env: env}}
}

// Name returns the rule name.
func (r *TimeLimitRule) Name() string { return RuleTimeLimit }

// Description states the time limit.
func (r *TimeLimitRule) Description() string {
	return "Time limit: " + (time.Duration(r.Policy.TimeLimit) * time.Second).String()
}

// EndTime is the attempt start plus the limit.
func (r *TimeLimitRule) EndTime(attempt *Attempt) (int64, bool) {
	if attempt == nil {
		return 0, false
	}
	return attempt.TimeStart + r.Policy.TimeLimit, true
}

// TimeRemaining hides the negative countdown of an overdue preview.
func (r *TimeLimitRule) TimeRemaining(attempt *Attempt, now int64) (int64, bool) {
	end, ok := r.EndTime(attempt)
	if !ok {
		return 0, false
	}
	if attempt.Preview && now > end {
		return 0, false
	}
	return end - now, true
}
