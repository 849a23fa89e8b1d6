// ABOUTME: Cobra command tree for gatewayctl, the gateway operator CLI.
// ABOUTME: Remote commands call the gateway HTTP API; replay-key and token run locally.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/realtime-gateway/internal/auth"
	"github.com/2389/realtime-gateway/internal/config"
	"github.com/2389/realtime-gateway/internal/envelope"
	"github.com/2389/realtime-gateway/internal/gateway"
	"github.com/2389/realtime-gateway/internal/mediajob"
	"github.com/2389/realtime-gateway/internal/replay"
	"github.com/2389/realtime-gateway/internal/task"
)

// Environment variables read for flag defaults.
const (
	EnvGatewayURL   = "GATEWAYCTL_URL"
	EnvGatewayToken = "GATEWAYCTL_TOKEN"

	defaultGatewayURL = "http://localhost:8080"
)

// Version is reported by --version.
var Version = "dev"

type options struct {
	gatewayURL string
	token      string
	configPath string
}

func (o *options) client() *gatewayClient {
	return newGatewayClient(o.gatewayURL, o.token)
}

// BuildCLI assembles the gatewayctl command tree.
func BuildCLI() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Operate a realtime gateway",
		Long:          "gatewayctl submits envelopes and inspects tasks, dispatches, and media jobs on a running realtime gateway.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.gatewayURL, "gateway", envOr(EnvGatewayURL, defaultGatewayURL), "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv(EnvGatewayToken), "bearer token")
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "gateway config file (used by token)")

	rootCmd.AddCommand(buildSubmitCommand(opts))
	rootCmd.AddCommand(buildTasksCommand(opts))
	rootCmd.AddCommand(buildMediaCommand(opts))
	rootCmd.AddCommand(buildReplayKeyCommand())
	rootCmd.AddCommand(buildTokenCommand(opts))

	return rootCmd
}

func buildSubmitCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "submit FILE",
		Short: "Submit a client envelope (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := readEnvelope(cmd, args[0])
			if err != nil {
				return err
			}

			var resp envelope.Envelope
			hdr, err := opts.client().do(cmd.Context(), "POST", "/api/requests", nil, env, &resp)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "task:     %s\n", hdr.Get("X-Task-Id"))
			replayed, _ := strconv.ParseBool(hdr.Get("X-Replayed"))
			if replayed {
				fmt.Fprintln(out, "replayed: "+color.YellowString("yes"))
			} else {
				fmt.Fprintln(out, "replayed: no")
			}
			return printJSON(out, resp)
		},
	}
}

func buildTasksCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect tasks",
	}

	var sessionID string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if sessionID != "" {
				q.Set("session_id", sessionID)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			var resp gateway.ListTasksResponse
			if _, err := opts.client().do(cmd.Context(), "GET", "/api/tasks", q, nil, &resp); err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), resp.Tasks)
			return nil
		},
	}
	listCmd.Flags().StringVarP(&sessionID, "session", "s", "", "only tasks of this session")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of tasks")

	getCmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec task.Record
			if _, err := opts.client().do(cmd.Context(), "GET", "/api/tasks/"+url.PathEscape(args[0]), nil, nil, &rec); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}

	var dispatchLimit int
	dispatchesCmd := &cobra.Command{
		Use:   "dispatches ID",
		Short: "Show the dispatch history of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if dispatchLimit > 0 {
				q.Set("limit", strconv.Itoa(dispatchLimit))
			}

			var resp gateway.ListDispatchesResponse
			path := "/api/tasks/" + url.PathEscape(args[0]) + "/dispatches"
			if _, err := opts.client().do(cmd.Context(), "GET", path, q, nil, &resp); err != nil {
				return err
			}
			printDispatches(cmd.OutOrStdout(), resp.Dispatches)
			return nil
		},
	}
	dispatchesCmd.Flags().IntVarP(&dispatchLimit, "limit", "n", 0, "maximum number of dispatches")

	cmd.AddCommand(listCmd, getCmd, dispatchesCmd)
	return cmd
}

func buildMediaCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Create and inspect media jobs",
	}

	var params mediajob.CreateParams
	var mode string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Queue a video job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if params.SessionID == "" {
				return errors.New("--session is required")
			}
			params.Mode = mediajob.Mode(mode)

			var job mediajob.Job
			if _, err := opts.client().do(cmd.Context(), "POST", "/api/media/jobs", nil, params, &job); err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), []mediajob.Job{job})
			return nil
		},
	}
	createCmd.Flags().StringVarP(&params.SessionID, "session", "s", "", "session id (required)")
	createCmd.Flags().StringVar(&params.RunID, "run", "", "run id")
	createCmd.Flags().StringVar(&params.AssetID, "asset", "", "asset id")
	createCmd.Flags().IntVar(&params.SegmentIndex, "segment", 0, "segment index")
	createCmd.Flags().StringVar(&params.Provider, "provider", "", "provider name")
	createCmd.Flags().StringVar(&params.Model, "model", "", "model name")
	createCmd.Flags().StringVar(&mode, "mode", string(mediajob.ModeSimulated), "simulated or fallback")
	createCmd.Flags().Float64Var(&params.FailureRate, "failure-rate", 0, "simulated failure probability (0-1)")

	getCmd := &cobra.Command{
		Use:   "get ID...",
		Short: "Show media jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("ids", strings.Join(args, ","))

			var resp gateway.MediaJobsResponse
			if _, err := opts.client().do(cmd.Context(), "GET", "/api/media/jobs", q, nil, &resp); err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), resp.Jobs)
			return nil
		},
	}

	cmd.AddCommand(createCmd, getCmd)
	return cmd
}

func buildReplayKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay-key FILE",
		Short: "Print the replay key and fingerprint the gateway derives for an envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := readEnvelope(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:         %s\n", replay.BuildReplayKey(env))
			fmt.Fprintf(out, "fingerprint: %s\n", replay.BuildFingerprint(env))
			return nil
		},
	}
}

func buildTokenCommand(opts *options) *cobra.Command {
	var subject, sessionID, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the gateway's JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}
			if secret == "" {
				cfg, err := config.Load(config.ResolvePath(opts.configPath))
				if err != nil {
					return fmt.Errorf("loading config for jwt secret: %w", err)
				}
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return errors.New("no jwt secret: pass --secret or set auth.jwt_secret")
			}

			token, err := auth.NewJWTVerifier([]byte(secret)).Generate(subject, sessionID, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (required)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "restrict the token to one session")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to auth.jwt_secret from --config)")
	return cmd
}

// readEnvelope decodes and validates an envelope from path, or stdin for "-".
func readEnvelope(cmd *cobra.Command, path string) (*envelope.Envelope, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening envelope: %w", err)
		}
		defer f.Close()
		r = f
	}
	env, err := envelope.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return env, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTasks(w io.Writer, tasks []task.Record) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "no active tasks")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSESSION\tSTATUS\tSTAGE\tPROGRESS\tUPDATED")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\n",
			t.TaskID, t.SessionID, colorStatus(string(t.Status)), t.Stage, t.ProgressPct,
			t.UpdatedAt.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
}

func printDispatches(w io.Writer, dispatches []gateway.DispatchResponse) {
	if len(dispatches) == 0 {
		fmt.Fprintln(w, "no dispatches")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tSTATUS\tROUTE\tATTEMPTS\tDURATION\tERROR")
	for _, d := range dispatches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\t%s\n",
			d.CreatedAt, colorStatus(d.Status), dash(d.Route), d.Attempts, d.DurationMs, dash(d.Error))
	}
	_ = tw.Flush()
}

func printJobs(w io.Writer, jobs []mediajob.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "no media jobs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSESSION\tSEGMENT\tMODE\tSTATUS\tATTEMPTS\tASSET")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
			j.JobID, j.SessionID, j.SegmentIndex, j.Mode, colorStatus(string(j.Status)), j.Attempts, dash(j.AssetRef))
	}
	_ = tw.Flush()
}

func colorStatus(status string) string {
	switch status {
	case "completed", "accepted":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	case "replayed":
		return color.CyanString(status)
	default:
		return color.YellowString(status)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
