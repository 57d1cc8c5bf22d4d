package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/signupwatch/daemon/internal/config"
	"github.com/signupwatch/daemon/internal/criterion"
	"github.com/signupwatch/daemon/internal/domain"
	"github.com/signupwatch/daemon/internal/rulestore"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ServiceName      = "signupwatch-daemon"
	ServiceNamespace = "signupwatch"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

// Run builds the urfave/cli app and dispatches to one of its subcommands.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Anti-abuse daemon for signup events",
		Commands: []*cli.Command{
			runCmd(),
			lintRulesCmd(),
			dryRunCmd(),
		},
	}

	return app.Run(os.Args)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	fs := pflag.NewFlagSet(c.Command.Name, pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(c.Args().Slice()); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return config.BindAndLoad(viper.New(), fs)
}

// runCmd starts the daemon: dispatcher, upstream watcher, chat transport,
// liveness supervisor, and admin HTTP surface (spec's "always-on" daemon),
// until SIGTERM/SIGINT.
func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the signup-watch daemon",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("shutting down")
			return app.Stop(context.Background())
		},
	}
}

// lintRulesCmd loads a rule catalogue file and reports every rule that
// fails validation, without starting the daemon. Useful for checking a
// hand-edited rule file before an operator drops it in place.
func lintRulesCmd() *cli.Command {
	return &cli.Command{
		Name:      "lint-rules",
		Usage:     "Validate a rule catalogue file",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("lint-rules: missing <path> argument")
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			persister := rulestore.NewFilePersister(path, logger)
			rules, err := persister.Load()
			if err != nil {
				return fmt.Errorf("lint-rules: %w", err)
			}

			var failures int
			seen := make(map[string]bool, len(rules))
			for i, rule := range rules {
				if rule.Name == "" {
					fmt.Printf("rule #%d: empty name\n", i)
					failures++
					continue
				}
				if seen[rule.Name] {
					fmt.Printf("rule %q: duplicate name\n", rule.Name)
					failures++
				}
				seen[rule.Name] = true

				if _, err := criterion.Evaluate(rule.Criterion, domain.User{}, nil); err != nil &&
					rule.Criterion.Kind != domain.CriterionScript {
					fmt.Printf("rule %q: criterion invalid: %v\n", rule.Name, err)
					failures++
				}
				if len(rule.Actions) == 0 {
					fmt.Printf("rule %q: has no actions\n", rule.Name)
					failures++
				}
				for _, action := range rule.Actions {
					if action == domain.ActionUnspecified {
						fmt.Printf("rule %q: contains an unspecified action\n", rule.Name)
						failures++
					}
				}
			}

			fmt.Printf("%d rule(s) checked, %d failure(s)\n", len(rules), failures)
			if failures > 0 {
				return fmt.Errorf("lint-rules: %d rule(s) failed validation", failures)
			}
			return nil
		},
	}
}

// dryRunCmd evaluates a JSON-encoded domain.User against a rule catalogue
// and prints which rules would have fired, without calling any moderation
// endpoint or mutating the catalogue.
func dryRunCmd() *cli.Command {
	return &cli.Command{
		Name:      "dry-run",
		Usage:     "Evaluate a JSON user payload against a rule file",
		ArgsUsage: "<rule-file> <json-user>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("dry-run: usage: dry-run <rule-file> <json-user>")
			}
			rulePath := c.Args().Get(0)
			userJSON := c.Args().Get(1)

			var user domain.User
			if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
				return fmt.Errorf("dry-run: parse user json: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			persister := rulestore.NewFilePersister(rulePath, logger)
			rules, err := persister.Load()
			if err != nil {
				return fmt.Errorf("dry-run: %w", err)
			}

			scripter, err := criterion.NewCELScripter()
			if err != nil {
				return fmt.Errorf("dry-run: build scripter: %w", err)
			}

			var matched int
			now := time.Now()
			for _, rule := range rules {
				if !rule.Enabled || rule.IsExpired(now) {
					continue
				}
				if rule.SuspIP && !user.SuspIP {
					continue
				}
				ok, err := criterion.Evaluate(rule.Criterion, user, scripter)
				if err != nil {
					fmt.Printf("rule %q: evaluation error: %v\n", rule.Name, err)
					continue
				}
				if ok {
					matched++
					fmt.Printf("MATCH %q: %s -> %v\n", rule.Name, criterion.Friendly(rule.Criterion), rule.Actions)
				}
			}
			fmt.Printf("%d rule(s) would fire\n", matched)
			return nil
		},
	}
}
