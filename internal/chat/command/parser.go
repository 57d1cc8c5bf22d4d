// Package command implements the chat command grammar from spec §4.8,
// translating operator chat text into domain.Event values for the
// dispatcher inbox.
//
// Grounded almost line-for-line on original_source/src/zulip/command.rs:
// the same backtick-delimited code-block extraction, the same positional
// token grammar for `signup rules add`, the same `(?i)`-prefixing regex
// helper, and the same duration-suffix parser and its exact error message.
package command

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/signupwatch/daemon/internal/domain"
)

// ParseError is returned for any grammar violation; Message is meant to be
// posted back to chat verbatim (spec §4.8: "parse errors carry a
// human-readable message returned to chat").
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

func parseErr(msg string) *ParseError {
	if msg == "" {
		msg = "could not parse user command"
	}
	return &ParseError{Message: msg}
}

// defaultExpiryDays is applied to `signup rules add` when neither noexpiry nor
// an explicit expiry duration is given (spec §4.8).
const defaultExpiryDays = 182

// Parse turns the text following the bot mention into an Event. reply is
// attached to every Event variant that produces a chat response.
func Parse(text string, reply domain.ReplyFunc) (domain.Event, error) {
	code, rest := extractBacktickBlock(text)
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return domain.Event{}, parseErr("")
	}

	switch tokens[0] {
	case "status":
		return domain.NewChatStatusCommandEvent(reply), nil
	case "seen":
		if len(tokens) < 2 {
			return domain.Event{}, parseErr("please provide a username")
		}
		return domain.NewIsRecentlyCheckedEvent(tokens[1], reply), nil
	case "namechk":
		if len(tokens) < 2 {
			return domain.Event{}, parseErr("please provide a username")
		}
		return domain.NewHypotheticalSignupEvent(domain.User{
			Username: tokens[1],
			Email:    "qwe@asd.zxc",
			IP:       "127.0.0.1",
		}, reply), nil
	case "signup":
		return parseSignupCommand(tokens, code, reply)
	default:
		return domain.Event{}, parseErr("")
	}
}

// extractBacktickBlock mirrors handle_signup_command's first_split logic:
// a command containing exactly one backtick-delimited block has that block
// pulled out as free-form source (script or JSON), and the surrounding
// text has the block replaced by a placeholder token so positional
// argument counting stays stable.
func extractBacktickBlock(text string) (code string, rest string) {
	parts := strings.Split(text, "`")
	if len(parts) <= 2 {
		return "", text
	}
	code = parts[1]
	parts[0] = strings.TrimSpace(parts[0])
	parts[1] = "$ $"
	parts[2] = strings.TrimSpace(parts[2])
	return code, strings.Join(parts, " ")
}

func parseSignupCommand(tokens []string, code string, reply domain.ReplyFunc) (domain.Event, error) {
	// tokens[0] == "signup"
	if len(tokens) < 2 {
		return domain.Event{}, parseErr("")
	}
	if tokens[1] != "rules" {
		if tokens[1] == "seen" {
			if len(tokens) < 3 {
				return domain.Event{}, parseErr("")
			}
			return domain.NewIsRecentlyCheckedEvent(tokens[2], reply), nil
		}
		return domain.Event{}, parseErr("")
	}
	if len(tokens) < 3 {
		return domain.Event{}, parseErr("")
	}

	switch tokens[2] {
	case "add":
		return parseRuleAdd(tokens, code, reply)
	case "show":
		if len(tokens) < 4 {
			return domain.Event{}, parseErr("")
		}
		return domain.NewShowRuleEvent(tokens[3], reply), nil
	case "remove":
		if len(tokens) < 4 {
			return domain.Event{}, parseErr("")
		}
		return domain.NewRemoveRuleEvent(tokens[3], reply), nil
	case "disable-re":
		if len(tokens) < 4 {
			return domain.Event{}, parseErr("")
		}
		return domain.NewDisableRulesEvent(tokens[3], reply), nil
	case "enable-re":
		if len(tokens) < 4 {
			return domain.Event{}, parseErr("")
		}
		return domain.NewEnableRulesEvent(tokens[3], reply), nil
	case "renew":
		if len(tokens) < 5 {
			return domain.Event{}, parseErr("please provide a rule name and a new expiry")
		}
		dur, err := parseExpiryDuration(tokens[4])
		if err != nil {
			return domain.Event{}, err
		}
		return domain.NewRenewRuleEvent(tokens[3], time.Now().Add(dur), reply), nil
	case "list":
		return domain.NewListRulesEvent(reply), nil
	case "test":
		if code == "" {
			return domain.Event{}, parseErr("please provide a backtick-delimited user JSON block")
		}
		var u domain.User
		if err := json.Unmarshal([]byte(code), &u); err != nil {
			return domain.Event{}, parseErr("can't (de)serialize")
		}
		return domain.NewHypotheticalSignupEvent(u, reply), nil
	default:
		return domain.Event{}, parseErr("")
	}
}

// parseRuleAdd implements `signup rules add <name> (if|if_susp_ip|if_ip_susp)
// <elem> <check> <value> then <actions>[ nodelay][ noexpiry|expiry <dur>]`.
// Token indices (0-based into `tokens`, where tokens[0]=="signup",
// tokens[1]=="rules", tokens[2]=="add"): 3=name, 4=if-clause, 5=elem,
// 6=check, 7=value, 8="then", 9=actions, 10.. = modifiers.
func parseRuleAdd(tokens []string, code string, reply domain.ReplyFunc) (domain.Event, error) {
	if len(tokens) < 10 {
		return domain.Event{}, parseErr("")
	}
	name := tokens[3]
	ifClause := tokens[4]
	suspIP := ifClause == "if_susp_ip" || ifClause == "if_ip_susp"
	if !(ifClause == "if" || suspIP) {
		return domain.Event{}, parseErr("")
	}
	if tokens[8] != "then" {
		return domain.Event{}, parseErr("")
	}

	elem, check, value := tokens[5], tokens[6], tokens[7]
	crit, err := parseCriterion(elem, check, value, code)
	if err != nil {
		return domain.Event{}, err
	}

	actionsList, err := parseActions(tokens[9])
	if err != nil {
		return domain.Event{}, err
	}

	idx := 10
	noDelay := false
	if idx < len(tokens) && tokens[idx] == "nodelay" {
		noDelay = true
		idx++
	}

	var expiry *time.Time
	if idx < len(tokens) {
		switch tokens[idx] {
		case "noexpiry":
			expiry = nil
		case "expiry":
			if idx+1 >= len(tokens) {
				return domain.Event{}, parseErr("please provide an expiry duration")
			}
			dur, err := parseExpiryDuration(tokens[idx+1])
			if err != nil {
				return domain.Event{}, err
			}
			t := time.Now().Add(dur)
			expiry = &t
		default:
			return domain.Event{}, parseErr("")
		}
	} else {
		t := time.Now().Add(defaultExpiryDays * 24 * time.Hour)
		expiry = &t
	}

	rule := domain.Rule{
		Name:      name,
		Criterion: crit,
		Actions:   actionsList,
		NoDelay:   noDelay,
		Enabled:   true,
		SuspIP:    suspIP,
		Expiry:    expiry,
	}
	return domain.NewAddRuleEvent(rule, reply), nil
}

func parseCriterion(elem, check, value, code string) (domain.Criterion, error) {
	switch elem {
	case "ip":
		if check != "equals" {
			return domain.Criterion{}, parseErr("")
		}
		return domain.Criterion{Kind: domain.CriterionIPEquals, String: value}, nil
	case "print":
		return domain.Criterion{}, parseErr("use lichess print ban instead")
	case "email":
		switch check {
		case "contains":
			return domain.Criterion{Kind: domain.CriterionEmailContains, String: value}, nil
		case "regex":
			re, err := valueToRegex(value)
			if err != nil {
				return domain.Criterion{}, err
			}
			return domain.Criterion{Kind: domain.CriterionEmailRegex, String: re}, nil
		default:
			return domain.Criterion{}, parseErr("")
		}
	case "username":
		switch check {
		case "contains":
			return domain.Criterion{Kind: domain.CriterionUsernameContains, String: value}, nil
		case "regex":
			re, err := valueToRegex(value)
			if err != nil {
				return domain.Criterion{}, err
			}
			return domain.Criterion{Kind: domain.CriterionUsernameRegex, String: re}, nil
		default:
			return domain.Criterion{}, parseErr("")
		}
	case "useragent":
		if check != "length-lte" {
			return domain.Criterion{}, parseErr("")
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return domain.Criterion{}, parseErr("can't parse int")
		}
		return domain.Criterion{Kind: domain.CriterionUserAgentLenLte, Int: n}, nil
	case "lua":
		if code == "" {
			return domain.Criterion{}, parseErr("please provide a backtick-delimited script block")
		}
		return domain.Criterion{Kind: domain.CriterionScript, String: code}, nil
	default:
		return domain.Criterion{}, parseErr("")
	}
}

// valueToRegex prefixes v with (?i) unless it already carries it, the same
// case-insensitive-by-default rule as value_to_regex in command.rs.
func valueToRegex(v string) (string, error) {
	pattern := v
	if !strings.HasPrefix(v, "(?i)") {
		pattern = "(?i)" + v
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return "", parseErr(fmt.Sprintf("invalid regex: %v", err))
	}
	return pattern, nil
}

func parseActions(s string) ([]domain.ActionKind, error) {
	parts := strings.Split(s, "+")
	out := make([]domain.ActionKind, 0, len(parts))
	for _, p := range parts {
		kind, ok := domain.ActionKindFromString(p)
		if !ok {
			return nil, parseErr("")
		}
		out = append(out, kind)
	}
	return out, nil
}

// parseExpiryDuration parses `<N>d` or `<N>w`, with the exact error message
// original_source's parse_expiry_duration uses.
func parseExpiryDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, expiryFormatError()
	}
	unit := s[len(s)-1]
	amountStr := s[:len(s)-1]
	amount, err := strconv.Atoi(amountStr)
	if err != nil || amount <= 0 || (unit != 'd' && unit != 'w') {
		return 0, expiryFormatError()
	}
	switch unit {
	case 'd':
		return time.Duration(amount) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(amount) * 7 * 24 * time.Hour, nil
	default:
		return 0, expiryFormatError()
	}
}

func expiryFormatError() *ParseError {
	return parseErr("Invalid expiry date format. Example: `14d`. Supported: `d` (day), `w` (week).")
}
