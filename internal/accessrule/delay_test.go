package accessrule

import "testing"

func TestComputeNextStartTime_FirstAttemptNeverDelayed(t *testing.T) {
	policy := Policy{DelayFirst: 1000, DelayLater: 500, TimeLimit: 100}
	last := &Attempt{TimeStart: 9000, TimeFinish: 10000}
	if next := ComputeNextStartTime(policy, 0, last); next != 0 {
		t.Fatalf("expected next=0, got %d", next)
	}
	if next := ComputeNextStartTime(policy, 0, nil); next != 0 {
		t.Fatalf("expected next=0 without last attempt, got %d", next)
	}
}

func TestComputeNextStartTime_SelectsDelayByAttemptCount(t *testing.T) {
	last := &Attempt{TimeStart: 9000, TimeFinish: 10000}
	cases := []struct {
		name   string
		policy Policy
		n      int
		want   int64
	}{
		{"first delay", Policy{DelayFirst: 1000}, 1, 11000},
		{"first delay unset", Policy{DelayLater: 300}, 1, 0},
		{"later delay", Policy{DelayFirst: 1000, DelayLater: 300}, 2, 10300},
		{"later delay many", Policy{DelayLater: 300}, 7, 10300},
		{"later delay unset", Policy{DelayFirst: 1000}, 2, 0},
	}
	for _, tc := range cases {
		if got := ComputeNextStartTime(tc.policy, tc.n, last); got != tc.want {
			t.Fatalf("%s: expected next=%d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestComputeNextStartTime_ClampsOverdueFinish(t *testing.T) {
	policy := Policy{TimeLimit: 100, DelayFirst: 50}
	last := &Attempt{TimeStart: 9900, TimeFinish: 10100}
	if next := ComputeNextStartTime(policy, 1, last); next != 10050 {
		t.Fatalf("expected next=10050, got %d", next)
	}

	early := &Attempt{TimeStart: 9900, TimeFinish: 9950}
	if next := ComputeNextStartTime(policy, 1, early); next != 10000 {
		t.Fatalf("expected next=10000 for early finish, got %d", next)
	}
}

func TestDelayRule_NotBuiltWithoutDelays(t *testing.T) {
	if rule := NewDelayRule(Policy{}, Env{}); rule != nil {
		t.Fatalf("expected no rule, got %T", rule)
	}
}

func TestDelayRule_WaitUntilThenAllowed(t *testing.T) {
	policy := Policy{DelayFirst: 1000}
	last := &Attempt{TimeStart: 9000, TimeFinish: 10000}

	rule := NewDelayRule(policy, Env{Now: 10000})
	denial := rule.PreventNewAttempt(1, last)
	if denial == nil {
		t.Fatalf("expected denial at now=10000")
	}
	if denial.Code != ReasonWaitUntil || denial.Until != 11000 {
		t.Fatalf("expected wait_until 11000, got %s %d", denial.Code, denial.Until)
	}

	for _, now := range []int64{11000, 11001, 20000} {
		rule = NewDelayRule(policy, Env{Now: now})
		if denial := rule.PreventNewAttempt(1, last); denial != nil {
			t.Fatalf("expected allowed at now=%d, got %s", now, denial.Code)
		}
	}
}

func TestDelayRule_CloseTimeBoundaries(t *testing.T) {
	policy := Policy{DelayFirst: 2000, DelayLater: 1000, TimeClose: 15000}
	env := Env{Now: 10000}

	rule := NewDelayRule(policy, env)
	denial := rule.PreventNewAttempt(1, &Attempt{TimeStart: 12000, TimeFinish: 13000})
	if denial == nil || denial.Code != ReasonWaitUntil || denial.Until != 15000 {
		t.Fatalf("expected wait_until 15000, got %+v", denial)
	}

	denial = rule.PreventNewAttempt(1, &Attempt{TimeStart: 12000, TimeFinish: 13001})
	if denial == nil || denial.Code != ReasonCannotWait {
		t.Fatalf("expected cannot_wait, got %+v", denial)
	}
	if denial.Until != 0 {
		t.Fatalf("expected no timestamp on cannot_wait, got %d", denial.Until)
	}
}

func TestDelayRule_DefersToCapAndClose(t *testing.T) {
	last := &Attempt{TimeStart: 9000, TimeFinish: 10000}

	capped := NewDelayRule(Policy{DelayLater: 1000, Attempts: 2}, Env{Now: 10000})
	if denial := capped.PreventNewAttempt(2, last); denial != nil {
		t.Fatalf("expected delay rule to defer to attempt cap, got %s", denial.Code)
	}

	closed := NewDelayRule(Policy{DelayFirst: 1000, TimeClose: 9999}, Env{Now: 10000})
	if denial := closed.PreventNewAttempt(1, last); denial != nil {
		t.Fatalf("expected delay rule to defer to close time, got %s", denial.Code)
	}
}

func TestDelayRule_IsFinished(t *testing.T) {
	last := &Attempt{TimeStart: 12000, TimeFinish: 13000}
	cases := []struct {
		name   string
		policy Policy
		now    int64
		want   bool
	}{
		{"no close time", Policy{DelayFirst: 2000}, 10000, false},
		{"next equals close", Policy{DelayFirst: 2000, TimeClose: 15000}, 10000, true},
		{"next after close", Policy{DelayFirst: 3000, TimeClose: 15000}, 10000, true},
		{"next before close", Policy{DelayFirst: 1000, TimeClose: 15000}, 10000, false},
		{"wait already over", Policy{DelayFirst: 2000, TimeClose: 15000}, 15001, false},
		{"now equals next", Policy{DelayFirst: 2000, TimeClose: 15000}, 15000, true},
	}
	for _, tc := range cases {
		rule := NewDelayRule(tc.policy, Env{Now: tc.now})
		if got := rule.IsFinished(1, last); got != tc.want {
			t.Fatalf("%s: expected finished=%v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestDelayRule_Idempotent(t *testing.T) {
	rule := NewDelayRule(Policy{DelayFirst: 1000, TimeClose: 10500}, Env{Now: 10000})
	last := &Attempt{TimeStart: 9000, TimeFinish: 10000}
	first := rule.PreventNewAttempt(1, last)
	second := rule.PreventNewAttempt(1, last)
	if first == nil || second == nil || *first != *second {
		t.Fatalf("expected identical denials, got %+v and %+v", first, second)
	}
	if rule.IsFinished(1, last) != rule.IsFinished(1, last) {
		t.Fatalf("expected identical finished results")
	}
}
