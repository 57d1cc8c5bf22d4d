package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MarshalText lets ActionKind serialize as its chat-grammar keyword inside a
// plain JSON string array, keeping the persisted rule file human-editable.
func (a ActionKind) MarshalText() ([]byte, error) {
	if a == ActionUnspecified {
		return nil, fmt.Errorf("domain: cannot marshal unspecified action")
	}
	return []byte(a.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (a *ActionKind) UnmarshalText(data []byte) error {
	kind, ok := ActionKindFromString(string(data))
	if !ok {
		return fmt.Errorf("domain: unknown action %q", data)
	}
	*a = kind
	return nil
}

func (k CriterionKind) wireName() string {
	switch k {
	case CriterionIPEquals:
		return "ip_equals"
	case CriterionPrintEquals:
		return "print_equals"
	case CriterionEmailContains:
		return "email_contains"
	case CriterionEmailRegex:
		return "email_regex"
	case CriterionUsernameContains:
		return "username_contains"
	case CriterionUsernameRegex:
		return "username_regex"
	case CriterionUserAgentLenLte:
		return "useragent_len_lte"
	case CriterionScript:
		return "script"
	default:
		return ""
	}
}

func criterionKindFromWireName(s string) (CriterionKind, bool) {
	switch s {
	case "ip_equals":
		return CriterionIPEquals, true
	case "print_equals":
		return CriterionPrintEquals, true
	case "email_contains":
		return CriterionEmailContains, true
	case "email_regex":
		return CriterionEmailRegex, true
	case "username_contains":
		return CriterionUsernameContains, true
	case "username_regex":
		return CriterionUsernameRegex, true
	case "useragent_len_lte":
		return CriterionUserAgentLenLte, true
	case "script":
		return CriterionScript, true
	default:
		return CriterionUnspecified, false
	}
}

// criterionWire is the on-disk representation: a discriminator plus the one
// field relevant to that discriminator.
type criterionWire struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
	Max   *int   `json:"max,omitempty"`
}

// MarshalJSON implements a self-describing wire format so the persisted rule
// file stays readable and diffable by operators (spec §6: "field names on
// the wire are the rule attributes from §3.1").
func (c Criterion) MarshalJSON() ([]byte, error) {
	name := c.Kind.wireName()
	if name == "" {
		return nil, fmt.Errorf("domain: cannot marshal criterion with unspecified kind")
	}
	w := criterionWire{Type: name}
	if c.Kind == CriterionUserAgentLenLte {
		max := c.Int
		w.Max = &max
	} else {
		w.Value = c.String
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Criterion) UnmarshalJSON(data []byte) error {
	var w criterionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, ok := criterionKindFromWireName(w.Type)
	if !ok {
		return fmt.Errorf("domain: unknown criterion type %q", w.Type)
	}
	c.Kind = kind
	c.String = w.Value
	if w.Max != nil {
		c.Int = *w.Max
	}
	return nil
}

// ruleWire mirrors Rule but with timestamps as milliseconds since epoch, the
// wire format spec §6 mandates ("Timestamps are encoded as milliseconds
// since epoch").
type ruleWire struct {
	Name             string             `json:"name"`
	Criterion        Criterion          `json:"criterion"`
	Actions          []ActionKind       `json:"actions"`
	MatchCount       uint64             `json:"match_count"`
	MostRecentCaught []string           `json:"most_recent_caught"`
	NoDelay          bool               `json:"no_delay"`
	Enabled          bool               `json:"enabled"`
	SuspIP           bool               `json:"susp_ip"`
	Expiry           *int64             `json:"expiry,omitempty"`
	ExpNotification  ExpiryNotification `json:"exp_notification"`
	CreationDate     int64              `json:"creation_date"`
	LatestMatchDate  *int64             `json:"latest_match_date,omitempty"`
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// MarshalJSON encodes timestamps as epoch milliseconds per spec §6.
func (r Rule) MarshalJSON() ([]byte, error) {
	w := ruleWire{
		Name:             r.Name,
		Criterion:        r.Criterion,
		Actions:          r.Actions,
		MatchCount:       r.MatchCount,
		MostRecentCaught: r.MostRecentCaught,
		NoDelay:          r.NoDelay,
		Enabled:          r.Enabled,
		SuspIP:           r.SuspIP,
		ExpNotification:  r.ExpNotification,
		CreationDate:     toMillis(r.CreationDate),
	}
	if r.Expiry != nil {
		ms := toMillis(*r.Expiry)
		w.Expiry = &ms
	}
	if r.LatestMatchDate != nil {
		ms := toMillis(*r.LatestMatchDate)
		w.LatestMatchDate = &ms
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var w ruleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Name = w.Name
	r.Criterion = w.Criterion
	r.Actions = w.Actions
	r.MatchCount = w.MatchCount
	r.MostRecentCaught = w.MostRecentCaught
	r.NoDelay = w.NoDelay
	r.Enabled = w.Enabled
	r.SuspIP = w.SuspIP
	r.ExpNotification = w.ExpNotification
	r.CreationDate = fromMillis(w.CreationDate)
	if w.Expiry != nil {
		t := fromMillis(*w.Expiry)
		r.Expiry = &t
	}
	if w.LatestMatchDate != nil {
		t := fromMillis(*w.LatestMatchDate)
		r.LatestMatchDate = &t
	}
	return nil
}
