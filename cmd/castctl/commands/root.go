package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"go2tv.app/castbeam/internal/adapters/wiring"
	"go2tv.app/castbeam/internal/buildinfo"
	"go2tv.app/castbeam/internal/config"
	"go2tv.app/castbeam/internal/lifecycle"
)

type globalFlags struct {
	configPath string
	verbose    bool
	jsonOutput bool
	timeout    time.Duration
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "castctl",
	Short: "castctl - discover and control Chromecast receivers",
	Long: `castctl discovers Chromecast receivers on the local network and drives
playback on them from the command line.

Devices can be addressed by id, friendly name or instance name. Use
"castctl scan" to list what is reachable.`,
	Version:       buildinfo.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("CASTBEAM_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log discovery and protocol events to stderr")
	rootCmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 20*time.Second, "Overall command timeout")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(closeCmd)
	for _, cmd := range controlCommands() {
		rootCmd.AddCommand(cmd)
	}
}

// session is one CLI invocation's runtime. Receiver apps keep running when it
// closes unless the command stops them explicitly.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	rt     *wiring.Runtime
	out    *printer
	logger *slog.Logger
}

func newLogger() *slog.Logger {
	if !flags.verbose {
		return slog.New(slog.DiscardHandler)
	}
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(colorable.NewColorableStderr(), opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Manager.LeaveRunningOnExit = true

	signalCtx, stop := signal.NotifyContext(cmd.Context(), lifecycle.TerminationSignals()...)
	ctx, cancel := context.WithTimeout(signalCtx, flags.timeout)
	cancelAll := func() {
		cancel()
		stop()
	}

	logger := newLogger()
	rt, err := wiring.Assemble(ctx, cfg, logger)
	if err != nil {
		cancelAll()
		return nil, err
	}
	if _, err := rt.Manager.Seed(ctx); err != nil {
		logger.Warn("device_cache_seed_failed", slog.String("error", err.Error()))
	}

	return &session{
		ctx:    ctx,
		cancel: cancelAll,
		rt:     rt,
		out:    newPrinter(cmd.OutOrStdout(), flags.jsonOutput),
		logger: logger,
	}, nil
}

func (s *session) Close() {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.rt.Close(closeCtx); err != nil {
		s.logger.Warn("runtime_close_failed", slog.String("error", err.Error()))
	}
	s.cancel()
}

// withSession runs fn inside a fresh session.
func withSession(fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd, s, args)
	}
}

type printer struct {
	w     io.Writer
	json  bool
	color bool
}

func newPrinter(w io.Writer, jsonOutput bool) *printer {
	p := &printer{w: w, json: jsonOutput}
	if f, ok := w.(*os.File); ok && f == os.Stdout && isatty.IsTerminal(f.Fd()) {
		p.w = colorable.NewColorableStdout()
		p.color = true
	}
	return p
}

const (
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
	ansiGreen = "\x1b[32m"
	ansiReset = "\x1b[0m"
)

func (p *printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

func (p *printer) linef(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}
