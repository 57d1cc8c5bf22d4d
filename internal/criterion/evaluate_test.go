package criterion

import (
	"testing"

	"github.com/signupwatch/daemon/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestEvaluateIPEquals(t *testing.T) {
	c := domain.Criterion{Kind: domain.CriterionIPEquals, String: "1.2.3.4"}
	ok, err := Evaluate(c, domain.User{IP: "1.2.3.4"}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(c, domain.User{IP: "5.6.7.8"}, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateEmailContainsIsCaseInsensitive(t *testing.T) {
	c := domain.Criterion{Kind: domain.CriterionEmailContains, String: "EXAMPLE"}
	ok, err := Evaluate(c, domain.User{Email: "user@Example.com"}, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateUsernameRegex(t *testing.T) {
	c := domain.Criterion{Kind: domain.CriterionUsernameRegex, String: "^bot_"}
	ok, err := Evaluate(c, domain.User{Username: "bot_123"}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(c, domain.User{Username: "human"}, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateUserAgentLenLte(t *testing.T) {
	c := domain.Criterion{Kind: domain.CriterionUserAgentLenLte, Int: 5}
	ok, err := Evaluate(c, domain.User{UserAgent: "abc"}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(c, domain.User{UserAgent: "abcdefgh"}, nil)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = Evaluate(c, domain.User{}, nil)
	require.NoError(t, err)
	require.False(t, ok, "absent user agent never matches UserAgentLenLte")
}

func TestEvaluatePrintEqualsRequiresPresence(t *testing.T) {
	c := domain.Criterion{Kind: domain.CriterionPrintEquals, String: "abc123"}
	ok, err := Evaluate(c, domain.User{}, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateScriptUsesScripter(t *testing.T) {
	scripter, err := NewCELScripter()
	require.NoError(t, err)
	c := domain.Criterion{Kind: domain.CriterionScript, String: `user.country == "US"`}

	ok, err := Evaluate(c, domain.User{GeoIP: &domain.GeoInfo{Country: "US"}}, scripter)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(c, domain.User{GeoIP: &domain.GeoInfo{Country: "DE"}}, scripter)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateScriptSandboxHelpers(t *testing.T) {
	scripter, err := NewCELScripter()
	require.NoError(t, err)

	c := domain.Criterion{Kind: domain.CriterionScript, String: `regex(user.email, "^a.*@example\\.com$")`}
	ok, err := Evaluate(c, domain.User{Email: "alice@example.com"}, scripter)
	require.NoError(t, err)
	require.True(t, ok)

	c = domain.Criterion{Kind: domain.CriterionScript, String: `isInIpRange(user.ip, "1.0.0.0", "1.255.255.255")`}
	ok, err = Evaluate(c, domain.User{IP: "1.2.3.4"}, scripter)
	require.NoError(t, err)
	require.True(t, ok)

	c = domain.Criterion{Kind: domain.CriterionScript, String: `has_subdivision(user.subdivisions, "CA")`}
	ok, err = Evaluate(c, domain.User{GeoIP: &domain.GeoInfo{Subdivisions: []string{"ca"}}}, scripter)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateScriptCompileErrorSurfacesAsScriptError(t *testing.T) {
	scripter, err := NewCELScripter()
	require.NoError(t, err)
	c := domain.Criterion{Kind: domain.CriterionScript, String: `this is not valid cel (((`}

	_, err = Evaluate(c, domain.User{}, scripter)
	require.Error(t, err)
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
}

func TestParseUserAgentBot(t *testing.T) {
	d := ParseUserAgent("lichess-bot/1.2.3 someclient")
	require.Equal(t, "Computer", d.Device)
	require.Equal(t, "Other", d.OS)
	require.Equal(t, "lichess-bot 1.2.3", d.Client)
}

func TestParseUserAgentMobileLong(t *testing.T) {
	ua := "Lichess Mobile/3.1.0 (42) as:12345 sri:abcde os:Android/13 dev:Pixel 7"
	d := ParseUserAgent(ua)
	require.Equal(t, "Android/13", d.OS)
	require.Equal(t, "Pixel 7", d.Device)
}

func TestParseUserAgentFallback(t *testing.T) {
	d := ParseUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")
	require.Equal(t, "Windows", d.OS)
	require.Equal(t, "Chrome 120", d.Client)
}
