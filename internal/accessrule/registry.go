package accessrule

import "sync"

// Factory builds one rule variant. Make returns nil when the policy does not
// activate the rule.
type Factory struct {
	Name string
	Make func(Policy, Env) Rule
	// BrowserSecurityChoices lists the display modes this variant provides.
	BrowserSecurityChoices map[BrowserSecurity]string
}

// Registry holds the ordered rule factories. Registration order is the
// evaluation and message display order.
type Registry struct {
	mu        sync.RWMutex
	factories []Factory
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry registers every built-in rule variant.
func NewDefaultRegistry(match SubnetMatcher) *Registry {
	r := NewRegistry()
	r.Register(Factory{Name: RuleNumAttempts, Make: NewNumAttemptsRule})
	r.Register(Factory{Name: RuleOpenCloseDate, Make: NewOpenCloseRule})
	r.Register(Factory{Name: RuleDelayBetweenAttempts, Make: NewDelayRule})
	r.Register(Factory{Name: RuleIPAddress, Make: NewIPAddressRuleFactory(match)})
	r.Register(Factory{Name: RulePassword, Make: NewPasswordRule})
	r.Register(Factory{
		Name: RuleSecureWindow,
		Make: NewSecureWindowRule,
		BrowserSecurityChoices: map[BrowserSecurity]string{
			BrowserSecuritySecureWindow: "Full screen pop-up with some JavaScript security",
		},
	})
	r.Register(Factory{
		Name: RuleSafeBrowser,
		Make: NewSafeBrowserRule,
		BrowserSecurityChoices: map[BrowserSecurity]string{
			BrowserSecuritySafeBrowser: "Require Safe Exam Browser",
		},
	})
	r.Register(Factory{Name: RuleTimeLimit, Make: NewTimeLimitRule})
	return r
}

// Register appends a factory. A factory with an existing name replaces it in place.
func (r *Registry) Register(f Factory) {
	if r == nil || f.Make == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.factories {
		if r.factories[i].Name == f.Name {
			r.factories[i] = f
			return
		}
	}
	r.factories = append(r.factories, f)
}

// Names returns the registered factory names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for _, f := range r.factories {
		out = append(out, f.Name)
	}
	return out
}

// Build evaluates every factory against the policy and returns the Manager
// over the active rule set.
func (r *Registry) Build(policy Policy, env Env) *Manager {
	r.mu.RLock()
	factories := make([]Factory, len(r.factories))
	copy(factories, r.factories)
	r.mu.RUnlock()

	rules := make([]Rule, 0, len(factories))
	for _, f := range factories {
		if rule := f.Make(policy, env); rule != nil {
			rules = append(rules, rule)
		}
	}
	return NewManager(policy, env, rules)
}

// BrowserSecurityChoices returns the display modes offered by all registered
// variants, including the unrestricted default.
func (r *Registry) BrowserSecurityChoices() map[BrowserSecurity]string {
	out := map[BrowserSecurity]string{BrowserSecurityNone: "None"}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.factories {
		for mode, label := range f.BrowserSecurityChoices {
			out[mode] = label
		}
	}
	return out
}
