package domain

import "time"

// EventKind tags the Event variant accepted by the dispatcher inbox (spec
// §3.1). Mirrors the teacher's EventKind int enum
// (internal/domain/event/event.go), repurposed from delivery/system events
// to signup-daemon events.
type EventKind int16

const (
	EventUnspecified EventKind = iota
	EventSignup
	EventHypotheticalSignup
	EventAddRule
	EventShowRule
	EventRemoveRule
	EventDisableRules
	EventEnableRules
	EventListRules
	EventStreamEventReceived
	EventChatStatusCommand
	EventIsRecentlyChecked
	EventCheckRulesExpiry
	EventRenewRule
)

// String names the variant, used in log fields and in the admin HTTP
// debug surface.
func (k EventKind) String() string {
	switch k {
	case EventSignup:
		return "signup"
	case EventHypotheticalSignup:
		return "hypothetical_signup"
	case EventAddRule:
		return "add_rule"
	case EventShowRule:
		return "show_rule"
	case EventRemoveRule:
		return "remove_rule"
	case EventDisableRules:
		return "disable_rules"
	case EventEnableRules:
		return "enable_rules"
	case EventListRules:
		return "list_rules"
	case EventStreamEventReceived:
		return "stream_event_received"
	case EventChatStatusCommand:
		return "chat_status_command"
	case EventIsRecentlyChecked:
		return "is_recently_checked"
	case EventCheckRulesExpiry:
		return "check_rules_expiry"
	case EventRenewRule:
		return "renew_rule"
	default:
		return "unspecified"
	}
}

// ReplyFunc delivers a command's reply back to whichever chat transport
// originated it. The dispatcher never imports the chat package, so replies
// are routed through this function value instead of a concrete transport
// type (kept exactly as free-standing as the teacher's Connector.Send
// closure-over-channel pattern, internal/domain/registry/connect.go).
type ReplyFunc func(text string)

// Event is a tagged union of everything the dispatcher's single-writer loop
// can receive. Only the fields relevant to Kind are populated; this mirrors
// the teacher's Eventer envelope (internal/domain/event/event.go) but is a
// plain struct rather than an interface, since every variant here is
// produced and consumed only inside this daemon (no wire marshaling of
// Event itself — only of User/Rule, which carry their own JSON forms).
type Event struct {
	Kind EventKind

	// Populated for EventSignup / EventHypotheticalSignup.
	User User

	// Populated for EventAddRule.
	Rule Rule

	// Populated for EventShowRule / EventRemoveRule / EventIsRecentlyChecked
	// (as the username) / EventRenewRule (as the rule name).
	Name string

	// Populated for EventDisableRules / EventEnableRules: a regex pattern
	// matched against rule names (spec §4.8 disable-re/enable-re).
	Pattern string

	// Populated for EventRenewRule.
	NewExpiry time.Time

	// Set for EventStreamEventReceived. The upstream watcher emits that
	// event for every non-empty line before decoding it, and passes an
	// empty User here.
	StreamPayload User

	// Populated for EventChatStatusCommand and any command-shaped event that
	// must produce a reply (show/list/status/seen).
	Reply ReplyFunc

	// OccurredAt records when the event was constructed. The liveness
	// supervisor does not read it; its staleness checks use Pinger
	// timestamps.
	OccurredAt time.Time
}

// NewSignupEvent builds the primary moderation-triggering event.
func NewSignupEvent(u User) Event {
	return Event{Kind: EventSignup, User: u, OccurredAt: now()}
}

// NewHypotheticalSignupEvent builds a dry-run variant that evaluates rules
// without ever taking action (spec §4.8 "test" command).
func NewHypotheticalSignupEvent(u User, reply ReplyFunc) Event {
	return Event{Kind: EventHypotheticalSignup, User: u, Reply: reply, OccurredAt: now()}
}

// NewAddRuleEvent builds a rule-catalogue mutation event.
func NewAddRuleEvent(r Rule, reply ReplyFunc) Event {
	return Event{Kind: EventAddRule, Rule: r, Reply: reply, OccurredAt: now()}
}

// NewShowRuleEvent builds a single-rule lookup event.
func NewShowRuleEvent(name string, reply ReplyFunc) Event {
	return Event{Kind: EventShowRule, Name: name, Reply: reply, OccurredAt: now()}
}

// NewRemoveRuleEvent builds a rule-deletion event.
func NewRemoveRuleEvent(name string, reply ReplyFunc) Event {
	return Event{Kind: EventRemoveRule, Name: name, Reply: reply, OccurredAt: now()}
}

// NewDisableRulesEvent builds a bulk-disable-by-pattern event.
func NewDisableRulesEvent(pattern string, reply ReplyFunc) Event {
	return Event{Kind: EventDisableRules, Pattern: pattern, Reply: reply, OccurredAt: now()}
}

// NewEnableRulesEvent builds a bulk-enable-by-pattern event.
func NewEnableRulesEvent(pattern string, reply ReplyFunc) Event {
	return Event{Kind: EventEnableRules, Pattern: pattern, Reply: reply, OccurredAt: now()}
}

// NewListRulesEvent builds a full-catalogue listing event.
func NewListRulesEvent(reply ReplyFunc) Event {
	return Event{Kind: EventListRules, Reply: reply, OccurredAt: now()}
}

// NewStreamEventReceivedEvent builds the per-line upstream liveness event,
// carrying u as its StreamPayload.
func NewStreamEventReceivedEvent(u User) Event {
	return Event{Kind: EventStreamEventReceived, StreamPayload: u, OccurredAt: now()}
}

// NewChatStatusCommandEvent builds a "status" command event.
func NewChatStatusCommandEvent(reply ReplyFunc) Event {
	return Event{Kind: EventChatStatusCommand, Reply: reply, OccurredAt: now()}
}

// NewIsRecentlyCheckedEvent builds a "seen" command event.
func NewIsRecentlyCheckedEvent(username string, reply ReplyFunc) Event {
	return Event{Kind: EventIsRecentlyChecked, Name: username, Reply: reply, OccurredAt: now()}
}

// NewCheckRulesExpiryEvent builds the periodic expiry-sweep event emitted by
// the supervisor (spec §5).
func NewCheckRulesExpiryEvent() Event {
	return Event{Kind: EventCheckRulesExpiry, OccurredAt: now()}
}

// NewRenewRuleEvent builds a rule-expiry-extension event.
func NewRenewRuleEvent(name string, newExpiry time.Time, reply ReplyFunc) Event {
	return Event{Kind: EventRenewRule, Name: name, NewExpiry: newExpiry, Reply: reply, OccurredAt: now()}
}

// now is the single indirection point for event timestamps, kept as a var
// so tests can freeze it.
var now = time.Now
