package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/tweetsweep/internal/config"
	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/processor"
	"github.com/kalambet/tweetsweep/internal/session"
)

// --- tick ---

// tickReport mirrors the /admin/tick response.
type tickReport struct {
	JobID   string           `json:"jobId,omitempty"`
	Action  processor.Action `json:"action"`
	Deleted int              `json:"deleted"`
	Skipped int              `json:"skipped"`
	Failure string           `json:"failure,omitempty"`
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one processor tick and exit",
	Long: `Run one processor tick and exit.

Without flags the tick runs in this process against the configured store,
which suits cron or systemd timers. Jobs are claimed before they are
processed, so a tick here never overlaps one in a running server.

Examples:
  tweetsweep tick
  tweetsweep tick --remote`,
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")
		if remote {
			return remoteTick(cmd.Context())
		}
		return localTick(cmd.Context())
	},
}

func init() {
	tickCmd.Flags().Bool("remote", false, "ask the running server to tick instead of ticking in-process")
}

func remoteTick(ctx context.Context) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.post(ctx, "/admin/tick", nil)
	if err != nil {
		return err
	}
	var r tickReport
	if err := decodeJSON(resp, &r); err != nil {
		return err
	}
	printTickReport(r)
	return nil
}

func localTick(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireTwitter(); err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	worker, err := newWorker(cfg, jobs.NewRepository(store), newTwitterClient(cfg.Twitter))
	if err != nil {
		return err
	}
	rep, err := worker.RunOnce(ctx)
	if err != nil {
		return err
	}
	if _, err := session.NewStore(store, 0).Purge(ctx); err != nil {
		printWarning("purging expired sessions: %v", err)
	}

	r := tickReport{JobID: rep.JobID, Action: rep.Action, Deleted: rep.Deleted, Skipped: rep.Skipped}
	if rep.Failure != nil {
		r.Failure = rep.Failure.Kind.String()
	}
	printTickReport(r)
	return nil
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage deletion jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued jobs, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		switch jobs.Status(status) {
		case "", jobs.StatusNormal, jobs.StatusRateLimited, jobs.StatusCapSuspended:
		default:
			return fmt.Errorf("invalid --status %q: want normal, rate_limited or monthly_cap_suspended", status)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		list, err := client.listJobs(cmd.Context(), status)
		if err != nil {
			return err
		}
		printJobList(list)
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show progress and queue position of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		v, err := client.jobStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJobView(v)
		return nil
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Remove a job from the queue without deleting more tweets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/admin/jobs/"+args[0])
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Removed job %s", args[0])
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "only jobs in this status")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		secret := "not set"
		if cfg.Twitter.ClientSecret != "" {
			secret = "set"
		}
		fmt.Printf("  %s = %s (secrets: TWEETSWEEP_TWITTER_CLIENT_SECRET or %s)\n",
			colorize(colorBold, "twitter.client_secret"), secret, config.SecretHint())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.Keys() {
			fmt.Fprintf(os.Stdout, "%-32s %-9s %s\n", k.Key, k.Type, k.EnvVar)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configKeysCmd)
}
