package command

import (
	"testing"
	"time"

	"github.com/signupwatch/daemon/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	e, err := Parse("status", nil)
	require.NoError(t, err)
	require.Equal(t, domain.EventChatStatusCommand, e.Kind)
}

func TestParseSeen(t *testing.T) {
	e, err := Parse("seen alice", nil)
	require.NoError(t, err)
	require.Equal(t, domain.EventIsRecentlyChecked, e.Kind)
	require.Equal(t, "alice", e.Name)
}

func TestParseRulesList(t *testing.T) {
	e, err := Parse("signup rules list", nil)
	require.NoError(t, err)
	require.Equal(t, domain.EventListRules, e.Kind)
}

func TestParseRulesShow(t *testing.T) {
	e, err := Parse("signup rules show my-rule", nil)
	require.NoError(t, err)
	require.Equal(t, domain.EventShowRule, e.Kind)
	require.Equal(t, "my-rule", e.Name)
}

func TestParseRulesDisableRe(t *testing.T) {
	e, err := Parse("signup rules disable-re ^bad-", nil)
	require.NoError(t, err)
	require.Equal(t, domain.EventDisableRules, e.Kind)
	require.Equal(t, "^bad-", e.Pattern)
}

func TestParseRulesRenewValidDuration(t *testing.T) {
	e, err := Parse("signup rules renew my-rule 14d", nil)
	require.NoError(t, err)
	require.Equal(t, domain.EventRenewRule, e.Kind)
	require.WithinDuration(t, time.Now().Add(14*24*time.Hour), e.NewExpiry, 5*time.Second)
}

func TestParseRulesRenewInvalidDuration(t *testing.T) {
	_, err := Parse("signup rules renew my-rule 14x", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid expiry date format")
}

func TestParseRulesAddIPRule(t *testing.T) {
	e, err := Parse("signup rules add block-1 if ip equals 1.2.3.4 then shadowban+close", nil)
	require.NoError(t, err)
	require.Equal(t, domain.EventAddRule, e.Kind)
	require.Equal(t, "block-1", e.Rule.Name)
	require.Equal(t, domain.CriterionIPEquals, e.Rule.Criterion.Kind)
	require.Equal(t, "1.2.3.4", e.Rule.Criterion.String)
	require.Equal(t, []domain.ActionKind{domain.ActionShadowban, domain.ActionClose}, e.Rule.Actions)
	require.False(t, e.Rule.SuspIP)
	require.NotNil(t, e.Rule.Expiry)
}

func TestParseRulesAddSuspIPAndNoDelayAndNoExpiry(t *testing.T) {
	e, err := Parse("signup rules add block-2 if_susp_ip email contains spam then notify nodelay noexpiry", nil)
	require.NoError(t, err)
	require.True(t, e.Rule.SuspIP)
	require.True(t, e.Rule.NoDelay)
	require.Nil(t, e.Rule.Expiry)
	require.Equal(t, domain.CriterionEmailContains, e.Rule.Criterion.Kind)
}

func TestParseRulesAddEmailRegexAddsCaseInsensitivePrefix(t *testing.T) {
	e, err := Parse("signup rules add block-3 if email regex ^spam then close", nil)
	require.NoError(t, err)
	require.Equal(t, "(?i)^spam", e.Rule.Criterion.String)
}

func TestParseRulesAddInvalidActionFails(t *testing.T) {
	_, err := Parse("signup rules add block-4 if ip equals 1.2.3.4 then bogus", nil)
	require.Error(t, err)
}

func TestParseRulesAddScript(t *testing.T) {
	e, err := Parse("signup rules add block-5 if lua `user.country == \"US\"` then close", nil)
	require.NoError(t, err)
	require.Equal(t, domain.CriterionScript, e.Rule.Criterion.Kind)
	require.Contains(t, e.Rule.Criterion.String, "user.country")
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := Parse("bogus", nil)
	require.Error(t, err)
}
