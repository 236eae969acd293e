/*
main.go - Pass runner CLI

PURPOSE:
  Runs individual scheduled passes from the command line, for cron
  setups and operational one-offs where the server's built-in
  scheduler is not wanted.

COMMANDS:
  check-recompletion      Resets, grace notices and notifications
  out-of-compliance       Refresh the HR export queue
  cache-completions       Warm the completion bounds cache
  repair-completions      Null out zero completion timestamps
  reset-completion-cache  Wipe the bounds cache for a rebuild
  remove-old-synced       Purge acknowledged export rows

CONFIGURATION:
  Same sources as the server: --config file, COMPLIANCE_* environment
  variables, or defaults. Emails from these runs go through the
  configured backend.

EXAMPLES:
  # Hourly from cron
  ./jobs check-recompletion

  # Nightly housekeeping
  ./jobs out-of-compliance && ./jobs cache-completions && ./jobs remove-old-synced

SEE ALSO:
  - scanner/scanner.go: The passes themselves
  - api/scheduler.go: The in-server alternative to this binary
*/
package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/compliance-engine/config"
	"github.com/warp/compliance-engine/notify"
	"github.com/warp/compliance-engine/recompletion"
	"github.com/warp/compliance-engine/scanner"
	"github.com/warp/compliance-engine/store/sqlite"
)

// rootOptions holds global flags for all pass commands.
type rootOptions struct {
	ConfigPath string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "jobs",
		Short:         "Run compliance engine passes",
		Long:          "Runs individual recompletion passes outside the server, for cron setups and one-off operations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file")

	passes := []struct {
		task  string
		short string
		run   func(*scanner.Scanner, context.Context) error
	}{
		{scanner.TaskCheckRecompletion, "Run resets, grace notices and notifications", (*scanner.Scanner).CheckRecompletion},
		{scanner.TaskOutOfCompliance, "Refresh the out-of-compliance export queue", (*scanner.Scanner).OutOfCompliance},
		{scanner.TaskCacheCompletions, "Warm the completion bounds cache", (*scanner.Scanner).CacheCompletions},
		{scanner.TaskRepairCompletions, "Null out zero completion timestamps", (*scanner.Scanner).RepairCompletions},
		{scanner.TaskResetCompletionCache, "Wipe the bounds cache for a rebuild", (*scanner.Scanner).ResetCompletionCache},
		{scanner.TaskRemoveOldSynced, "Purge acknowledged export rows", (*scanner.Scanner).RemoveOldSynced},
	}
	for _, p := range passes {
		cmd.AddCommand(newPassCommand(opts, p.task, p.short, p.run))
	}

	return cmd
}

func newPassCommand(opts *rootOptions, task, short string, run func(*scanner.Scanner, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   task,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, cleanup, err := buildScanner(opts.ConfigPath)
			if err != nil {
				return err
			}
			defer cleanup()
			return run(sc, cmd.Context())
		},
	}
}

// buildScanner wires a scanner from configuration the same way the
// server does. The returned cleanup closes the store.
func buildScanner(configPath string) (*scanner.Scanner, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	location, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	from := notify.Address{Name: cfg.FromName, Email: cfg.FromEmail}
	var mailer notify.Mailer
	switch cfg.EmailBackend {
	case "sendgrid":
		mailer = &notify.SendgridMailer{Key: cfg.SendgridKey, From: from}
	default:
		mailer = &notify.ConsoleMailer{From: from, Logger: log.Default()}
	}
	dispatcher := &notify.Dispatcher{
		Mailer:     mailer,
		Events:     recompletion.DiscardEvents{},
		BaseURL:    cfg.BaseURL,
		ThirdParty: notify.Address{Name: cfg.ThirdPartyName, Email: cfg.ThirdPartyEmail},
		Logger:     log.Default(),
	}

	sc := scanner.New(store, dispatcher, recompletion.DiscardEvents{}, scanner.Options{
		NotifyHour: cfg.NotifyHour,
		BulkDay1:   cfg.BulkDay1,
		BulkDay2:   cfg.BulkDay2,
		Retention:  cfg.Retention(),
		Location:   location,
	}, log.Default())

	return sc, func() { store.Close() }, nil
}
