package dispatcher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/signupwatch/daemon/internal/actions"
	"github.com/signupwatch/daemon/internal/criterion"
	"github.com/signupwatch/daemon/internal/domain"
)

// handleSignupLike implements spec §4.4's Signup/HypotheticalSignup
// processing. hypothetical suppresses every external effect and state
// mutation; only the "would take these actions" message is posted, to the
// main chat topic exactly like a real match summary (spec §4.4: "post ...
// to chat (main topic)"), not back to whatever channel triggered the
// test/namechk command.
func (d *Dispatcher) handleSignupLike(user domain.User, hypothetical bool) {
	if !hypothetical {
		d.recency.Record(user.LowerUsername(), user)
	}

	// Sampled once per event dispatch (spec §4.3), independent of any
	// matched rule's no_delay — that flag gates whether a given rule's
	// actions use this value at all, applied per rule in dispatchActions.
	sharedDelay := actions.SampleDelay()

	for _, rule := range d.store.All() {
		if !rule.Enabled || rule.IsExpired(time.Now()) {
			continue
		}
		if rule.SuspIP && !user.SuspIP {
			continue
		}

		matched, err := criterion.Evaluate(rule.Criterion, user, d.scripter)
		if err != nil {
			d.postMain(fmt.Sprintf("rule %q errored evaluating %s: %v", rule.Name, user.Username, err))
			continue
		}
		if !matched {
			continue
		}

		if hypothetical {
			d.postMain(fmt.Sprintf(
				"would match rule %q for %s — actions: %s",
				rule.Name, user.Username, joinActions(rule.Actions)))
			continue
		}

		d.dispatchActions(rule, user, sharedDelay)

		if !rule.ActionsAreNotifyOnly() {
			d.postMain(fmt.Sprintf(
				"rule %q matched %s (%s) — actions: %s",
				rule.Name, user.Username, criterion.Friendly(rule.Criterion), joinActions(rule.Actions)))
		}

		if _, err := d.store.Caught(rule.Name, user.LowerUsername(), time.Now()); err != nil {
			d.postMain(fmt.Sprintf("rulestore error recording match for %q: %v", rule.Name, err))
		}
	}
}

func joinActions(a []domain.ActionKind) string {
	names := make([]string, len(a))
	for i, k := range a {
		names[i] = k.String()
	}
	return strings.Join(names, "+")
}

// dispatchActions runs every action in rule.Actions for user, either as a
// scheduled HTTP call or (NotifyChat) as an inline chat post, deduplicated
// against the recently-notified ring (spec §4.4).
func (d *Dispatcher) dispatchActions(rule domain.Rule, user domain.User, sharedDelay time.Duration) {
	for _, action := range rule.Actions {
		if action == domain.ActionNotifyChat {
			if d.notified.RecentlyNotified(user.LowerUsername()) {
				continue
			}
			d.notified.MarkNotified(user.LowerUsername(), time.Now())
			d.postNotify(fmt.Sprintf("notify: rule %q matched %s", rule.Name, user.Username))
			continue
		}

		url, ok := d.endpoint.Endpoint(action, user.Username)
		if !ok {
			continue
		}
		delay := actions.DelayFor(action, sharedDelay, rule.NoDelay)
		d.sched.Schedule(rule.Name, action.String(), url, "POST", delay)
	}
}

func (d *Dispatcher) handleAddRule(e domain.Event) {
	rule := e.Rule
	if rule.CreationDate.IsZero() {
		rule.CreationDate = time.Now()
	}
	if err := d.store.Add(rule); err != nil {
		reply(e.Reply, fmt.Sprintf("could not add rule %q: %v", rule.Name, err))
		return
	}
	reply(e.Reply, fmt.Sprintf("rule %q added", rule.Name))
}

func (d *Dispatcher) handleShowRule(e domain.Event) {
	rule, ok := d.store.Find(e.Name)
	if !ok {
		reply(e.Reply, fmt.Sprintf("no such rule: %q", e.Name))
		return
	}
	reply(e.Reply, formatRuleShow(rule))
}

func formatRuleShow(rule domain.Rule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s then %s", rule.Name, criterion.Friendly(rule.Criterion), joinActions(rule.Actions))
	if rule.NoDelay {
		b.WriteString(" [nodelay]")
	}
	if rule.Expiry != nil {
		fmt.Fprintf(&b, " [expires %s]", rule.Expiry.UTC().Format(time.RFC3339))
	}
	if !rule.Enabled {
		b.WriteString(" (disabled)")
	}
	fmt.Fprintf(&b, " — matched %d time(s)", rule.MatchCount)
	return b.String()
}

func (d *Dispatcher) handleRemoveRule(e domain.Event) {
	removed, err := d.store.Remove(e.Name)
	if err != nil {
		reply(e.Reply, fmt.Sprintf("error removing rule %q: %v", e.Name, err))
		return
	}
	if !removed {
		reply(e.Reply, fmt.Sprintf("no such rule: %q", e.Name))
		return
	}
	reply(e.Reply, fmt.Sprintf("rule %q removed", e.Name))
}

func (d *Dispatcher) handleDisableRules(e domain.Event) {
	count, err := d.store.Disable(e.Pattern)
	if err != nil {
		reply(e.Reply, fmt.Sprintf("invalid pattern %q: %v", e.Pattern, err))
		return
	}
	reply(e.Reply, fmt.Sprintf("disabled %d rule(s) matching %q", count, e.Pattern))
}

func (d *Dispatcher) handleEnableRules(e domain.Event) {
	count, err := d.store.Enable(e.Pattern)
	if err != nil {
		reply(e.Reply, fmt.Sprintf("invalid pattern %q: %v", e.Pattern, err))
		return
	}
	reply(e.Reply, fmt.Sprintf("enabled %d rule(s) matching %q", count, e.Pattern))
}

func (d *Dispatcher) handleListRules(e domain.Event) {
	var b strings.Builder
	for _, r := range d.store.All() {
		name := r.Name
		if !r.Enabled {
			name = "(" + name + ")"
		}
		b.WriteString(name)
		b.WriteString(" ")
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		out = "no rules configured"
	}
	reply(e.Reply, out)
}

func (d *Dispatcher) handleChatStatus(e domain.Event) {
	last := d.LastUpstreamEvent()
	var lastStr string
	if last.IsZero() {
		lastStr = "never"
	} else {
		lastStr = last.UTC().Format(time.RFC3339)
	}
	reply(e.Reply, fmt.Sprintf("I am alive! Latest event: %s", lastStr))
}

func (d *Dispatcher) handleIsRecentlyChecked(e domain.Event) {
	snapshots, ok := d.recency.Seen(strings.ToLower(e.Name))
	if !ok {
		reply(e.Reply, "no")
		return
	}
	payload, err := json.Marshal(snapshots)
	if err != nil {
		reply(e.Reply, fmt.Sprintf("yes (%d snapshot(s), error rendering them: %v)", len(snapshots), err))
		return
	}
	reply(e.Reply, fmt.Sprintf("yes (%d snapshot(s)): %s", len(snapshots), string(payload)))
}

// handleRenewRule delegates to the rule store's renew op (spec §4.1/§4.8).
func (d *Dispatcher) handleRenewRule(e domain.Event) {
	if err := d.store.Renew(e.Name, e.NewExpiry); err != nil {
		reply(e.Reply, fmt.Sprintf("could not renew rule %q: %v", e.Name, err))
		return
	}
	reply(e.Reply, fmt.Sprintf("rule %q renewed until %s", e.Name, e.NewExpiry.UTC().Format(time.RFC3339)))
}

// expiryRemovalGrace is how long past expiry a rule is kept before being
// removed outright (spec §4.4: "expiry + 3d < now").
const expiryRemovalGrace = 72 * time.Hour

// preExpiryWindow is how far before expiry the pre-expiry notice fires
// (spec §4.4: "now + 1d > expiry").
const preExpiryWindow = 24 * time.Hour

// handleCheckRulesExpiry implements the periodic expiry sweep (spec §4.4).
//
// Open question resolved here (documented in SPEC_FULL.md): the source's
// pre-/expired-notification branch conditions are mutually exclusive as
// written but ambiguous in ordering. This implementation checks pre-expiry
// first, and only considers the expired branch when the pre-expiry branch
// did not fire for that rule in the same pass — so a rule can go 0->1 in
// one sweep and 1->2 in a later sweep once it actually expires, never both
// in the same pass. Removal is a second, independent pass after
// notifications are persisted, exactly as spec §4.4 orders it.
func (d *Dispatcher) handleCheckRulesExpiry(e domain.Event) {
	now := time.Now()
	var toRemove []string

	err := d.store.MutateForExpirySweep(func(rules []domain.Rule) []domain.Rule {
		for i := range rules {
			r := &rules[i]
			if r.Expiry == nil {
				continue
			}
			switch {
			case now.Add(preExpiryWindow).After(*r.Expiry) && r.ExpNotification == domain.ExpiryNotNotified:
				d.postMain(fmt.Sprintf("rule %q expires within a day (%s)", r.Name, r.Expiry.UTC().Format(time.RFC3339)))
				r.ExpNotification = domain.ExpiryPreNotified
			case r.Expiry.Before(now) && r.ExpNotification <= domain.ExpiryPreNotified:
				d.postMain(fmt.Sprintf("rule %q has expired", r.Name))
				r.ExpNotification = domain.ExpiryExpiredNotified
			}
		}
		return rules
	})
	if err != nil {
		d.postMain(fmt.Sprintf("error persisting expiry sweep: %v", err))
	}

	for _, r := range d.store.All() {
		if r.Expiry != nil && now.Sub(*r.Expiry) > expiryRemovalGrace {
			toRemove = append(toRemove, r.Name)
		}
	}
	for _, name := range toRemove {
		if _, err := d.store.Remove(name); err != nil {
			d.postMain(fmt.Sprintf("error removing expired rule %q: %v", name, err))
		}
	}
}
