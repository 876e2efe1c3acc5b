package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tanq16/rget/internal/downloader"
	"github.com/tanq16/rget/internal/output"
	"github.com/tanq16/rget/internal/state"
	"github.com/tanq16/rget/internal/utils"
)

var RgetVersion = "dev"

type downloadOptions struct {
	output        string
	parallel      int
	username      string
	password      string
	insecure      bool
	userAgent     string
	headers       []string
	timeout       time.Duration
	kaTimeout     time.Duration
	proxyURL      string
	proxyUsername string
	proxyPassword string
	limitRate     string
	quiet         bool
	debug         bool
}

func newRootCmd() *cobra.Command {
	opts := &downloadOptions{}
	rootCmd := &cobra.Command{
		Use:   "rget [url | descriptor]",
		Short: "rget is a resumable, parallel HTTP downloader",
		Long: `rget downloads a file over several concurrent ranged HTTP connections.

An interrupted download leaves <output>` + state.Suffix + ` and its part files behind;
running rget again with the same output path (or the descriptor path) resumes it.`,
		Version:       RgetVersion,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.applyEnv(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) > 0 {
				input = args[0]
			}
			return runDownload(cmd, opts, input)
		},
	}

	rootCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file path (inferred from the URL if not provided)")
	rootCmd.Flags().IntVarP(&opts.parallel, "parallel", "n", utils.DefaultParallel, "Number of parallel connections (ignored when resuming)")
	rootCmd.Flags().StringVarP(&opts.username, "username", "u", "", "Username for basic authentication")
	rootCmd.Flags().StringVarP(&opts.password, "password", "p", "", "Password for basic authentication")
	rootCmd.Flags().StringVarP(&opts.userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent")
	rootCmd.Flags().StringArrayVarP(&opts.headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Bearer token'); can be specified multiple times")
	rootCmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", time.Minute, "Connect and response header timeout (eg. 5s, 10m)")
	rootCmd.Flags().DurationVarP(&opts.kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.Flags().StringVarP(&opts.proxyURL, "proxy", "x", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.Flags().StringVarP(&opts.limitRate, "limit-rate", "r", "", "Cap total bandwidth (e.g., 500KB, 2MiB)")
	rootCmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Log progress instead of drawing progress bars")

	// flags without shorthand
	rootCmd.Flags().StringVar(&opts.proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.Flags().StringVar(&opts.proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.Flags().BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification")
	rootCmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newCleanCmd())
	return rootCmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		output.PrintError(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// applyEnv fills every flag the user did not set from RGET_* variables.
func (o *downloadOptions) applyEnv(cmd *cobra.Command) error {
	env, err := utils.LoadEnv()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("parallel") {
		o.parallel = env.Parallel
	}
	if !flags.Changed("user-agent") {
		o.userAgent = env.UserAgent
	}
	if !flags.Changed("timeout") {
		o.timeout = env.Timeout
	}
	if !flags.Changed("keep-alive-timeout") {
		o.kaTimeout = env.KATimeout
	}
	if !flags.Changed("proxy") {
		o.proxyURL = env.Proxy
	}
	if !flags.Changed("insecure") {
		o.insecure = env.Insecure
	}
	if !flags.Changed("debug") {
		o.debug = env.Debug
	}
	return utils.ValidateParallel(o.parallel)
}

func (o *downloadOptions) clientConfig() utils.HTTPClientConfig {
	proxyURL, proxyUsername, proxyPassword := utils.SplitProxyAuth(o.proxyURL, o.proxyUsername, o.proxyPassword)
	return utils.HTTPClientConfig{
		Timeout:        o.timeout,
		KATimeout:      o.kaTimeout,
		ProxyURL:       proxyURL,
		ProxyUsername:  proxyUsername,
		ProxyPassword:  proxyPassword,
		UserAgent:      o.userAgent,
		Headers:        utils.ParseHeaderArgs(o.headers),
		Username:       o.username,
		Password:       o.password,
		Insecure:       o.insecure,
		HighThreadMode: o.parallel > 8,
	}
}

func runDownload(cmd *cobra.Command, opts *downloadOptions, input string) error {
	rateLimit, err := utils.ParseRateLimit(opts.limitRate)
	if err != nil {
		return err
	}
	src, err := downloader.ResolveSource(input, opts.output)
	if err != nil {
		return err
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	var manager *output.Manager
	if !opts.quiet && output.IsTerminal(stdout) {
		manager = output.NewManager(stdout, filepath.Base(src.Target))
	}
	log := newRunLogger(stderr, opts.debug, manager != nil)

	var sink downloader.ProgressSink = output.NewLogSink(log)
	if manager != nil {
		sink = manager
	}
	dl, err := downloader.New(utils.NewRgetHTTPClient(opts.clientConfig()), downloader.Config{
		Parallel:  opts.parallel,
		RateLimit: rateLimit,
	}, sink, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if manager != nil {
		manager.StartDisplay()
	}
	outcome, err := dl.Run(ctx, src)
	if manager != nil {
		manager.StopDisplay()
	}
	if err != nil {
		var inconsistent *downloader.InconsistentResumeStateError
		if errors.As(err, &inconsistent) {
			output.PrintWarning(stderr, fmt.Sprintf("Saved parts do not match the remote file, run 'rget clean %s' and start again", outcome.Target))
		} else if outcome.Resumable {
			output.PrintWarning(stderr, fmt.Sprintf("Download state kept in %s, run again to resume", state.PathFor(outcome.Target)))
		}
		if ctx.Err() != nil {
			return fmt.Errorf("download interrupted: %w", context.Cause(ctx))
		}
		return err
	}
	output.PrintSuccess(stdout, fmt.Sprintf("Downloaded %s (%s)", outcome.Target, utils.FormatBytes(outcome.Size)))
	return nil
}

// newRunLogger keeps routine logs off the terminal while progress bars are
// drawn, unless debugging.
func newRunLogger(w io.Writer, debug, interactive bool) zerolog.Logger {
	log := utils.NewLogger(w, debug)
	if interactive && !debug {
		log = log.Level(zerolog.ErrorLevel)
	}
	return log
}
