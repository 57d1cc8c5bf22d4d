// Package config loads the daemon's configuration object (spec §6's
// "CLI / configuration" list) from flags and environment variables, via
// viper. No config file is read.
//
// Grounded on 88lin-divinesense's cmd/divinesense/main.go (SetDefault +
// BindPFlag + SetEnvPrefix + AutomaticEnv + SetEnvKeyReplacer idiom),
// adapted from cobra/pflag's own FlagSet to a plain spf13/pflag.FlagSet so
// it composes with the teacher's urfave/cli-based cmd/cmd.go rather than
// pulling in cobra as a second CLI framework.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the daemon's configuration object. Field names map to viper
// keys via the struct tags below. There is no field for a user-agent
// parser regex set; device extraction uses the fixed built-in rules of
// criterion.ParseUserAgent.
type Config struct {
	UpstreamURL       string        `mapstructure:"upstream-url"`
	UpstreamBearer    string        `mapstructure:"upstream-bearer"`
	ModerationBaseURL string        `mapstructure:"moderation-base-url"`
	OperatorBearer    string        `mapstructure:"operator-bearer"`
	BotID             string        `mapstructure:"bot-id"`
	BotToken          string        `mapstructure:"bot-token"`
	ChatURL           string        `mapstructure:"chat-url"`
	ChatTransport     string        `mapstructure:"chat-transport"` // "ws" or "longpoll"
	MainStream        string        `mapstructure:"main-stream"`
	MainTopic         string        `mapstructure:"main-topic"`
	NotifyStream      string        `mapstructure:"notify-stream"`
	NotifyTopic       string        `mapstructure:"notify-topic"`
	LogStream         string        `mapstructure:"log-stream"`
	LogTopic          string        `mapstructure:"log-topic"`
	CommandStream     string        `mapstructure:"command-stream"`
	CommandTopic      string        `mapstructure:"command-topic"`
	BotMarker         string        `mapstructure:"bot-marker"`
	RuleFilePath      string        `mapstructure:"rule-file"`
	GeoIPDBPath       string        `mapstructure:"geoip-db"`
	AdminHTTPAddr     string        `mapstructure:"admin-http-addr"`
	HTTPClientTimeout time.Duration `mapstructure:"http-client-timeout"`
	Debug             bool          `mapstructure:"debug"`
}

// Validate fails fast on the configuration errors that would otherwise only
// surface as a confusing connection or parse failure much later.
func (c *Config) Validate() error {
	var missing []string
	if c.UpstreamURL == "" {
		missing = append(missing, "upstream-url")
	}
	if c.ModerationBaseURL == "" {
		missing = append(missing, "moderation-base-url")
	}
	if c.OperatorBearer == "" {
		missing = append(missing, "operator-bearer")
	}
	if c.RuleFilePath == "" {
		missing = append(missing, "rule-file")
	}
	if c.ChatTransport != "ws" && c.ChatTransport != "longpoll" {
		return fmt.Errorf("config: chat-transport must be \"ws\" or \"longpoll\", got %q", c.ChatTransport)
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RegisterFlags declares every flag on fs and sets the defaults the teacher
// repo's sibling divinesense uses viper.SetDefault for. cmd/cmd.go owns
// parsing fs against the urfave/cli context's arguments.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("upstream-url", "", "signup event stream URL")
	fs.String("upstream-bearer", "", "bearer token for the upstream signup feed")
	fs.String("moderation-base-url", "", "moderation API host prefix")
	fs.String("operator-bearer", "", "bearer token for the moderation API")
	fs.String("bot-id", "", "chat bot account id (long-poll transport)")
	fs.String("bot-token", "", "chat bot account token")
	fs.String("chat-url", "", "chat service base URL")
	fs.String("chat-transport", "longpoll", `chat transport: "ws" or "longpoll"`)
	fs.String("main-stream", "", "primary chat stream for match summaries and expiry notices")
	fs.String("main-topic", "", "primary chat topic for match summaries and expiry notices")
	fs.String("notify-stream", "", "chat stream for match notifications")
	fs.String("notify-topic", "", "chat topic for match notifications")
	fs.String("log-stream", "", "chat stream for operational log lines")
	fs.String("log-topic", "", "chat topic for operational log lines")
	fs.String("command-stream", "", "chat stream the command parser watches")
	fs.String("command-topic", "", "chat topic the command parser watches")
	fs.String("bot-marker", "@**signupwatch-bot**", "mention prefix the bot reacts to")
	fs.String("rule-file", "rules.json", "path to the persisted rule catalogue")
	fs.String("geoip-db", "", "path to the GeoIP database (CIDR-to-location JSON table); empty disables GeoIP enrichment")
	fs.String("admin-http-addr", ":9090", "admin HTTP surface listen address")
	fs.Duration("http-client-timeout", 30*time.Second, "outbound HTTP client timeout")
	fs.Bool("debug", false, "human-readable text logs instead of JSON")
}

// BindAndLoad binds fs's flags into v, applies environment overrides, and
// unmarshals the result into a Config.
func BindAndLoad(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	v.SetEnvPrefix("signupwatch")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
