package accessrule

// Rule is one pluggable access policy bound to a Policy and an Env.
// Rules never mutate shared state; every method is a pure function of
// the bound inputs and its arguments.
type Rule interface {
	// Name identifies the rule in denials and logs.
	Name() string
	// Description is a static note about the restriction, "" for none.
	Description() string
	// PreventAccess checks whether the attempt page may be accessed at all.
	PreventAccess() *Denial
	// PreventNewAttempt checks whether a new attempt may begin.
	PreventNewAttempt(numPrevAttempts int, lastAttempt *Attempt) *Denial
	// IsFinished reports whether no further attempt could ever become allowed.
	IsFinished(numPrevAttempts int, lastAttempt *Attempt) bool
	// EndTime returns the absolute deadline for the attempt, if any.
	EndTime(attempt *Attempt) (int64, bool)
	// TimeRemaining returns the signed seconds before EndTime, if shown.
	TimeRemaining(attempt *Attempt, now int64) (int64, bool)
}

// Verifier is implemented by rules that gate entry with an extra step.
type Verifier interface {
	RequiresVerification(state VerificationState, attemptID uint64) bool
	VerificationFields() []Field
	ValidateVerification(submitted map[string]string) FieldErrors
	OnVerificationPassed(state VerificationState) VerificationState
	OnAttemptFinished(state VerificationState) VerificationState
}

// PopupProvider is implemented by rules that need an isolated display window.
type PopupProvider interface {
	PopupRequired() bool
	PopupOptions() map[string]bool
}

// FieldType is the input kind of a verification field.
type FieldType string

// FieldType constants.
const (
	FieldPassword FieldType = "password"
)

// Field describes one input the presentation layer must collect.
type Field struct {
	Name  string    `json:"name"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
}

// VerificationState is the caller-owned, per-user verification record.
// Hooks return a modified copy and never change the receiver.
type VerificationState struct {
	PasswordChecked map[uint64]bool `json:"password_checked,omitempty"`
}

// PasswordCheckedFor reports whether the quiz password was already accepted.
func (s VerificationState) PasswordCheckedFor(quizID uint64) bool {
	return s.PasswordChecked[quizID]
}

func (s VerificationState) withPasswordChecked(quizID uint64, checked bool) VerificationState {
	next := make(map[uint64]bool, len(s.PasswordChecked)+1)
	for id, ok := range s.PasswordChecked {
		if ok {
			next[id] = true
		}
	}
	if checked {
		next[quizID] = true
	} else {
		delete(next, quizID)
	}
	if len(next) == 0 {
		next = nil
	}
	return VerificationState{PasswordChecked: next}
}

// Base supplies the default behaviour for every Rule method.
// Variants embed it and override only what they restrict.
type Base struct {
	Policy Policy
	Env    Env
}

// Description returns no description.
func (Base) Description() string { return "" }

// PreventAccess allows access.
func (Base) PreventAccess() *Denial { return nil }

// PreventNewAttempt allows a new attempt.
func (Base) PreventNewAttempt(int, *Attempt) *Denial { return nil }

// IsFinished reports the sequence as open.
func (Base) IsFinished(int, *Attempt) bool { return false }

// EndTime imposes no deadline.
func (Base) EndTime(*Attempt) (int64, bool) { return 0, false }

// TimeRemaining shows no countdown.
func (Base) TimeRemaining(*Attempt, int64) (int64, bool) { return 0, false }
