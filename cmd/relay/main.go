// Command relay runs a standalone lockstep tick-synchronization host.
//
// The relay collects each participant's per-tick intent, waits until all
// participants' intents for the current tick have arrived, then delivers
// to each participant the other participants' intents and advances to the
// next tick. Participants connect over WebSocket at /ws; the round starts
// once the configured participant count is reached.
//
// # Usage
//
//	go run ./cmd/relay --addr=:8080 --participants=2
//
// A non-responsive participant stalls the round at the current tick.
// Operators can evict a straggler with:
//
//	curl -X POST http://localhost:8080/round/evict/2
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/lagless/tickrelay/api/httpserver"
	"github.com/lagless/tickrelay/common"
	"github.com/lagless/tickrelay/protocol"
	"github.com/lagless/tickrelay/services"
)

// envDefaults lets deployments configure the binary through RELAY_*
// variables; flags override.
type envDefaults struct {
	ListenAddr   string        `env:"RELAY_LISTEN_ADDR" envDefault:":8080"`
	MetricsAddr  string        `env:"RELAY_METRICS_ADDR" envDefault:""`
	Participants int           `env:"RELAY_PARTICIPANTS" envDefault:"2"`
	IntentSize   int           `env:"RELAY_INTENT_SIZE" envDefault:"3"`
	MaxTicks     int           `env:"RELAY_MAX_TICKS" envDefault:"256"`
	TickInterval time.Duration `env:"RELAY_TICK_INTERVAL" envDefault:"50ms"`
	EnablePprof  bool          `env:"RELAY_ENABLE_PPROF" envDefault:"false"`
	LogJSON      bool          `env:"RELAY_LOG_JSON" envDefault:"false"`
}

func main() {
	defaults, err := env.ParseAs[envDefaults]()
	if err != nil {
		fmt.Printf("Environment config error: %v\n", err)
		os.Exit(1)
	}

	var (
		addr         = flag.String("addr", defaults.ListenAddr, "HTTP listen address")
		metricsAddr  = flag.String("metrics-addr", defaults.MetricsAddr, "Prometheus listen address (empty disables)")
		participants = flag.Int("participants", defaults.Participants, "Participants per round; the round starts when this many have joined")
		intentSize   = flag.Int("intent-size", defaults.IntentSize, "Fixed intent record width in bytes")
		maxTicks     = flag.Int("max-ticks", defaults.MaxTicks, "Round length cap in ticks (0 = uncapped)")
		tickInterval = flag.Duration("tick-interval", defaults.TickInterval, "Barrier poll interval")
		enablePprof  = flag.Bool("pprof", defaults.EnablePprof, "Enable pprof debug endpoints")
		logJSON      = flag.Bool("log-json", defaults.LogJSON, "Log in JSON instead of text")
	)
	flag.Parse()

	log := newLogger(*logJSON)

	relayCfg := &protocol.Config{
		IntentSize:           *intentSize,
		TickInterval:         *tickInterval,
		MaxTicks:             *maxTicks,
		ExpectedParticipants: *participants,
	}
	if err := relayCfg.Validate(); err != nil {
		log.Error("Invalid relay configuration", "err", err)
		os.Exit(1)
	}

	svc, err := services.NewRelayService(&services.ServiceConfig{
		Relay: relayCfg,
		Log:   log,
	})
	if err != nil {
		log.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		MetricsAddr:              *metricsAddr,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              10 * time.Second,
		WriteTimeout:             10 * time.Second,
	}, svc)
	if err != nil {
		log.Error("Server creation failed", "err", err)
		os.Exit(1)
	}

	log.Info("Relay starting",
		"version", common.Version,
		"listenAddr", *addr,
		"participants", *participants,
		"intentSize", *intentSize,
		"maxTicks", *maxTicks)
	srv.RunInBackground()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down")
	svc.Relay().StopRound()
	srv.Shutdown()
}

func newLogger(jsonOut bool) *slog.Logger {
	if jsonOut {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
