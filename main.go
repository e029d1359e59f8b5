package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"go2tv.app/castbeam/internal/adapters/wiring"
	"go2tv.app/castbeam/internal/buildinfo"
	"go2tv.app/castbeam/internal/config"
	"go2tv.app/castbeam/internal/diagnostics"
	"go2tv.app/castbeam/internal/lifecycle"
	"go2tv.app/castbeam/internal/mcpserver"
)

const serverName = "castbeam"

type selfTestOutput struct {
	Server struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"server"`
	Adapters wiring.Wired              `json:"adapters"`
	Network  diagnostics.NetworkReport `json:"network"`
	Config   struct {
		MDNSBackend string `json:"mdns_backend"`
		CachePath   string `json:"cache_path,omitempty"`
		MQTTBroker  string `json:"mqtt_broker,omitempty"`
	} `json:"config"`
}

func main() {
	selfTest := flag.Bool("self-test", false, "run network and wiring diagnostics then exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", os.Getenv("CASTBEAM_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *selfTest {
		if err := runSelfTest(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	runCtx, stopSignals := signal.NotifyContext(context.Background(), lifecycle.TerminationSignals()...)
	defer stopSignals()

	logLevel, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Info(
		"mcp_server_start",
		slog.String("server", serverName),
		slog.String("version", buildinfo.Version),
		slog.String("log_level", logLevel.String()),
		slog.String("mdns_backend", cfg.Discovery.MDNSBackend),
	)

	rt, err := wiring.Assemble(runCtx, cfg, logger)
	if err != nil {
		logger.Error("runtime_assemble_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	seedCtx, cancelSeed := context.WithTimeout(runCtx, 5*time.Second)
	if _, err := rt.Manager.Seed(seedCtx); err != nil {
		logger.Warn("device_cache_seed_failed", slog.String("error", err.Error()))
	}
	cancelSeed()

	if err := rt.Discovery.Start(); err != nil {
		// Cached devices stay castable without discovery.
		logger.Warn("discovery_start_failed", slog.String("error", err.Error()))
	}
	go forwardRescans(runCtx, rt, logger)

	srv := mcpserver.New(os.Stdin, os.Stdout, mcpserver.Config{
		ServerName:     serverName,
		ServerVersion:  buildinfo.Version,
		Logger:         logger,
		DeviceLister:   rt.Manager,
		CastController: rt.Manager,
	})

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- srv.Run(runCtx)
	}()

	var runErr error
	select {
	case runErr = <-runErrCh:
	case <-runCtx.Done():
		runErr = runCtx.Err()
	}
	if runErr != nil {
		logger.Warn("mcp_server_stopping", slog.String("reason", runErr.Error()))
	} else {
		logger.Info("mcp_server_stopping", slog.String("reason", "clean_eof"))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := rt.Close(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

// forwardRescans turns rescan signals into immediate discovery queries.
func forwardRescans(ctx context.Context, rt *wiring.Runtime, logger *slog.Logger) {
	sigs := lifecycle.RescanSignals()
	if len(sigs) == 0 {
		return
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			logger.Info("discovery_rescan_signal", slog.String("signal", sig.String()))
			if err := rt.Scanner.Rescan(); err != nil {
				logger.Warn("discovery_rescan_failed", slog.String("error", err.Error()))
			}
		}
	}
}

func runSelfTest(cfg *config.Config) error {
	bundle, err := wiring.NewBundle(cfg, nil, nil)
	if err != nil {
		return err
	}

	var out selfTestOutput
	out.Server.Name = serverName
	out.Server.Version = buildinfo.Version
	out.Adapters = bundle.Wired()
	out.Network = diagnostics.DetectNetwork()
	out.Config.MDNSBackend = cfg.Discovery.MDNSBackend
	out.Config.CachePath = cfg.Cache.Path
	out.Config.MQTTBroker = cfg.MQTT.Broker

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
