package accessrule

// BrowserSecurity selects how the attempt page must be displayed.
type BrowserSecurity string

// BrowserSecurity constants define supported display modes.
const (
	// BrowserSecurityNone applies no display restriction.
	BrowserSecurityNone BrowserSecurity = "-"
	// BrowserSecuritySecureWindow forces a popup window with script restrictions.
	BrowserSecuritySecureWindow BrowserSecurity = "securewindow"
	// BrowserSecuritySafeBrowser requires the designated secure exam browser.
	BrowserSecuritySafeBrowser BrowserSecurity = "safebrowser"
)

// Policy is a read-only snapshot of the quiz settings the rules evaluate.
// All durations and timestamps are epoch seconds; 0 means unset.
type Policy struct {
	QuizID          uint64
	Attempts        int   // Attempt cap, 0 = unlimited.
	TimeLimit       int64 // Seconds, 0 = none.
	TimeOpen        int64 // Epoch seconds, 0 = always open.
	TimeClose       int64 // Epoch seconds, 0 = open-ended.
	DelayFirst      int64 // Wait after exactly one prior attempt.
	DelayLater      int64 // Wait after two or more prior attempts.
	Password        string
	ExtraPasswords  []string
	Subnet          string
	BrowserSecurity BrowserSecurity
}

// AttemptState is the lifecycle state of an attempt.
type AttemptState string

// AttemptState constants.
const (
	AttemptInProgress AttemptState = "inprogress"
	AttemptOverdue    AttemptState = "overdue"
	AttemptFinished   AttemptState = "finished"
	AttemptAbandoned  AttemptState = "abandoned"
)

// Attempt is a read-only view of one attempt's timing.
type Attempt struct {
	ID         uint64
	TimeStart  int64
	TimeFinish int64
	Preview    bool
	State      AttemptState
}

// Env is the immutable evaluation context of one decision request.
type Env struct {
	Now              int64
	IgnoreTimeLimits bool
	RemoteAddr       string
	UserAgent        string
}
