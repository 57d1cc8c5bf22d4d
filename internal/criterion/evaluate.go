// Package criterion implements the rule-matching dispatch table (spec
// §4.2): given a rule's Criterion and an enriched User, decide whether the
// rule fires.
//
// Structurally mirrors the teacher's internal/service/peer_enricher.go
// ResolvePeer polymorphic dispatch (switch over a Kind enum, one case per
// variant, each delegating to its own small function).
package criterion

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/signupwatch/daemon/internal/domain"
)

// ScriptError wraps a runtime fault from the Script variant's sandbox. It
// is returned, not panicked, so a single bad script never takes down the
// dispatcher (spec §4.2).
type ScriptError struct {
	RuleName string
	Err      error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error in rule %q: %v", e.RuleName, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// ErrInvalidCriterionRegex is returned when a Criterion carrying a regex
// source (EmailRegex, UsernameRegex) fails to compile. Rules are validated
// at add-time (command parser), so this signals stale/corrupted state if it
// ever surfaces at evaluation time.
var ErrInvalidCriterionRegex = errors.New("criterion: invalid regex")

// Scripter runs the Script criterion variant's sandboxed expression. The
// concrete implementation (script.go, CEL-backed) is injected so Evaluate
// itself has no dependency on the scripting engine for the other seven
// variants.
type Scripter interface {
	Eval(source string, user domain.User) (bool, error)
}

// Evaluate implements the dispatch table from spec §4.2.
func Evaluate(c domain.Criterion, user domain.User, scripter Scripter) (bool, error) {
	switch c.Kind {
	case domain.CriterionIPEquals:
		return c.String == user.IP, nil

	case domain.CriterionPrintEquals:
		return user.FingerPrint != "" && user.FingerPrint == c.String, nil

	case domain.CriterionEmailContains:
		return strings.Contains(strings.ToLower(user.Email), strings.ToLower(c.String)), nil

	case domain.CriterionEmailRegex:
		re, err := regexp.Compile(c.String)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrInvalidCriterionRegex, c.String, err)
		}
		return re.MatchString(user.Email), nil

	case domain.CriterionUsernameContains:
		return strings.Contains(strings.ToLower(user.Username), strings.ToLower(c.String)), nil

	case domain.CriterionUsernameRegex:
		re, err := regexp.Compile(c.String)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrInvalidCriterionRegex, c.String, err)
		}
		return re.MatchString(user.Username), nil

	case domain.CriterionUserAgentLenLte:
		return user.UserAgent != "" && len(user.UserAgent) <= c.Int, nil

	case domain.CriterionScript:
		if scripter == nil {
			return false, fmt.Errorf("criterion: script variant requires a Scripter")
		}
		return scripter.Eval(c.String, user)

	default:
		return false, fmt.Errorf("criterion: unhandled kind %d", c.Kind)
	}
}

// Friendly renders a Criterion the way spec §4.8's "show" output does,
// e.g. `ip == "1.2.3.4"`.
func Friendly(c domain.Criterion) string {
	switch c.Kind {
	case domain.CriterionIPEquals:
		return fmt.Sprintf("ip == %q", c.String)
	case domain.CriterionPrintEquals:
		return fmt.Sprintf("fingerprint == %q", c.String)
	case domain.CriterionEmailContains:
		return fmt.Sprintf("email contains %q", c.String)
	case domain.CriterionEmailRegex:
		return fmt.Sprintf("email ~= %q", c.String)
	case domain.CriterionUsernameContains:
		return fmt.Sprintf("username contains %q", c.String)
	case domain.CriterionUsernameRegex:
		return fmt.Sprintf("username ~= %q", c.String)
	case domain.CriterionUserAgentLenLte:
		return fmt.Sprintf("len(user_agent) <= %d", c.Int)
	case domain.CriterionScript:
		return fmt.Sprintf("script: %s", c.String)
	default:
		return "unknown criterion"
	}
}
