package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	return fs
}

func TestBindAndLoadAppliesDefaults(t *testing.T) {
	fs := newTestFlagSet()
	require.NoError(t, fs.Parse([]string{
		"--upstream-url=https://example.com/stream",
		"--moderation-base-url=https://mod.example.com",
		"--operator-bearer=secret",
	}))

	cfg, err := BindAndLoad(viper.New(), fs)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/stream", cfg.UpstreamURL)
	require.Equal(t, "longpoll", cfg.ChatTransport)
	require.Equal(t, "rules.json", cfg.RuleFilePath)
	require.Equal(t, ":9090", cfg.AdminHTTPAddr)
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	fs := newTestFlagSet()
	require.NoError(t, fs.Parse(nil))

	_, err := BindAndLoad(viper.New(), fs)
	require.Error(t, err)
	require.Contains(t, err.Error(), "upstream-url")
}

func TestValidateRejectsUnknownChatTransport(t *testing.T) {
	fs := newTestFlagSet()
	require.NoError(t, fs.Parse([]string{
		"--upstream-url=https://example.com/stream",
		"--moderation-base-url=https://mod.example.com",
		"--operator-bearer=secret",
		"--chat-transport=carrier-pigeon",
	}))

	_, err := BindAndLoad(viper.New(), fs)
	require.Error(t, err)
	require.Contains(t, err.Error(), "chat-transport")
}
