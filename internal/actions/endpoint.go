// Package actions maps Action kinds to moderation HTTP endpoints and
// implements the per-event delay policy (spec §4.3).
//
// URL templating follows the teacher's
// internal/domain/event/event_message_v1.go GetRoutingKey fmt.Sprintf
// idiom.
package actions

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/signupwatch/daemon/internal/domain"
)

// MinDelayMillis and MaxDelayMillis bound the uniformly random per-event
// delay (spec §4.3): an integer number of milliseconds in
// [MinDelayMillis, MaxDelayMillis).
const (
	MinDelayMillis = 30_000
	MaxDelayMillis = 100_000

	// CloseExtraDelayMillis is added on top of the shared per-event delay
	// for the Close action specifically.
	CloseExtraDelayMillis = 1_500
)

// Endpoints holds the base URL templates for each action kind that maps to
// a moderation HTTP call. "%s" is replaced with the username.
type Endpoints struct {
	ShadowbanURLTemplate       string
	EngineMarkURLTemplate      string
	BoostMarkURLTemplate       string
	IPBanURLTemplate           string
	CloseURLTemplate           string
	AltURLTemplate             string
	EnableChatPanicURLTemplate string
}

// Endpoint returns the moderation HTTP URL for action against username, and
// whether that action has one at all. NotifyChat has no endpoint — it is
// handled as a chat-side effect inline in the dispatcher (spec §4.3).
func (e Endpoints) Endpoint(action domain.ActionKind, username string) (string, bool) {
	var tmpl string
	switch action {
	case domain.ActionShadowban:
		tmpl = e.ShadowbanURLTemplate
	case domain.ActionEngineMark:
		tmpl = e.EngineMarkURLTemplate
	case domain.ActionBoostMark:
		tmpl = e.BoostMarkURLTemplate
	case domain.ActionIPBan:
		tmpl = e.IPBanURLTemplate
	case domain.ActionClose:
		tmpl = e.CloseURLTemplate
	case domain.ActionAlt:
		tmpl = e.AltURLTemplate
	case domain.ActionEnableChatPanic:
		// Global action, not scoped to username: no "%s" verb in the
		// template, so it's returned as-is rather than run through
		// fmt.Sprintf (which would otherwise append a stray
		// "%!(EXTRA string=...)" for the unused argument).
		if e.EnableChatPanicURLTemplate == "" {
			return "", false
		}
		return e.EnableChatPanicURLTemplate, true
	case domain.ActionNotifyChat:
		return "", false
	default:
		return "", false
	}
	if tmpl == "" {
		return "", false
	}
	return fmt.Sprintf(tmpl, username), true
}

// SampleDelay draws the single random delay shared by every action
// dispatched for one event, regardless of any rule's no_delay (spec §4.3:
// "sampled once per event dispatch" — a property of the random value, not
// of whether any particular rule's actions end up delayed at all).
func SampleDelay() time.Duration {
	millis := MinDelayMillis + rand.IntN(MaxDelayMillis-MinDelayMillis)
	return time.Duration(millis) * time.Millisecond
}

// DelayFor returns the actual delay to apply to one action from a rule
// match, given the event's shared delay sampled by SampleDelay. noDelay is
// that specific rule's no_delay flag (spec §4.3's gate is per-rule, not
// per-event): when set, every action from this rule fires immediately,
// Close included. Otherwise Close adds its own extra delay on top of the
// shared value; every other action uses the shared value as-is.
func DelayFor(action domain.ActionKind, sharedDelay time.Duration, noDelay bool) time.Duration {
	if noDelay {
		return 0
	}
	if action == domain.ActionClose {
		return sharedDelay + CloseExtraDelayMillis*time.Millisecond
	}
	return sharedDelay
}
