package domain

import "time"

// CriterionKind tags the Criterion variant, mirroring the teacher's
// PeerType-style int16 enum (internal/domain/model/message.go).
type CriterionKind int16

const (
	// CriterionUnspecified guards against zero-value criteria being matched accidentally.
	CriterionUnspecified CriterionKind = iota
	CriterionIPEquals
	CriterionPrintEquals
	CriterionEmailContains
	CriterionEmailRegex
	CriterionUsernameContains
	CriterionUsernameRegex
	CriterionUserAgentLenLte
	CriterionScript
)

// Criterion is a tagged-union match condition (spec §3.1).
type Criterion struct {
	Kind CriterionKind

	// String holds IP/fingerprint/substring/regex-source/script-source,
	// depending on Kind.
	String string

	// Int holds the UserAgentLenLte bound.
	Int int
}

// ActionKind tags the Action variant (spec §3.1).
type ActionKind int16

const (
	ActionUnspecified ActionKind = iota
	ActionShadowban
	ActionEngineMark
	ActionBoostMark
	ActionIPBan
	ActionClose
	ActionAlt
	ActionEnableChatPanic
	ActionNotifyChat
)

// String returns the chat command keyword for the action, as accepted by
// the `+`-separated action list grammar in spec §4.8.
func (a ActionKind) String() string {
	switch a {
	case ActionShadowban:
		return "shadowban"
	case ActionEngineMark:
		return "engine"
	case ActionBoostMark:
		return "boost"
	case ActionIPBan:
		return "ipban"
	case ActionClose:
		return "close"
	case ActionAlt:
		return "alt"
	case ActionEnableChatPanic:
		return "panic"
	case ActionNotifyChat:
		return "notify"
	default:
		return "unknown"
	}
}

// ActionKindFromString parses one `+`-separated action token; ok is false
// for anything outside the grammar in spec §4.8.
func ActionKindFromString(s string) (ActionKind, bool) {
	switch s {
	case "shadowban":
		return ActionShadowban, true
	case "engine":
		return ActionEngineMark, true
	case "boost":
		return ActionBoostMark, true
	case "ipban":
		return ActionIPBan, true
	case "close":
		return ActionClose, true
	case "alt":
		return ActionAlt, true
	case "panic":
		return ActionEnableChatPanic, true
	case "notify":
		return ActionNotifyChat, true
	default:
		return ActionUnspecified, false
	}
}

// ExpiryNotification tracks the 0/1/2 tri-state from spec §3.1.
type ExpiryNotification int8

const (
	ExpiryNotNotified ExpiryNotification = iota
	ExpiryPreNotified
	ExpiryExpiredNotified
)

// MostRecentCaughtCap is the ring-buffer size for Rule.MostRecentCaught (spec §3.1).
const MostRecentCaughtCap = 3

// Rule is a named, ordered (criterion, actions) record with metadata.
//
// Rule is mutated only by the dispatcher (single-writer, spec §3.2); callers
// elsewhere in the daemon only ever see copies or read-only references.
//
// Rule.MarshalJSON/UnmarshalJSON (json.go) define the actual wire encoding;
// these fields are the in-memory shape only.
type Rule struct {
	Name             string
	Criterion        Criterion
	Actions          []ActionKind
	MatchCount       uint64
	MostRecentCaught []string
	NoDelay          bool
	Enabled          bool
	SuspIP           bool
	Expiry           *time.Time
	ExpNotification  ExpiryNotification
	CreationDate     time.Time
	LatestMatchDate  *time.Time
}

// IsExpired reports whether the rule's expiry timestamp, if any, has passed.
func (r *Rule) IsExpired(now time.Time) bool {
	return r.Expiry != nil && r.Expiry.Before(now)
}

// PushCaught appends username to the 3-slot ring, evicting the oldest entry
// when full, and is a no-op if username is already present (spec §4.1).
// Returns false if username was already present (no mutation happened).
func (r *Rule) PushCaught(username string) bool {
	for _, existing := range r.MostRecentCaught {
		if existing == username {
			return false
		}
	}
	r.MostRecentCaught = append(r.MostRecentCaught, username)
	if len(r.MostRecentCaught) > MostRecentCaughtCap {
		r.MostRecentCaught = r.MostRecentCaught[len(r.MostRecentCaught)-MostRecentCaughtCap:]
	}
	return true
}

// ActionsAreNotifyOnly reports whether the action list is exactly
// [NotifyChat] — the sole case where the rich match summary is suppressed
// (spec §4.4, §9(c)).
func (r *Rule) ActionsAreNotifyOnly() bool {
	return len(r.Actions) == 1 && r.Actions[0] == ActionNotifyChat
}
