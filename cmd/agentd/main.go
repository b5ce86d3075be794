// Command agentd runs the Agent Service half of the two-process topology
// (spec §2): the Mode Dispatcher and its RPC surface, with no direct client
// exposure. Grounded on hector's cmd/hector main-wiring shape (kong CLI,
// context.Context carrying shutdown, slog for startup/shutdown logging).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/shuaitravel/agent/pkg/evaluation"
	"github.com/shuaitravel/agent/pkg/llm"
	"github.com/shuaitravel/agent/pkg/mode"
	"github.com/shuaitravel/agent/pkg/modelconfig"
	"github.com/shuaitravel/agent/pkg/obs"
	"github.com/shuaitravel/agent/pkg/react"
	"github.com/shuaitravel/agent/pkg/rpc"
	"github.com/shuaitravel/agent/pkg/thought"
	"github.com/shuaitravel/agent/pkg/tool"
	"github.com/shuaitravel/agent/pkg/tool/domain"
)

var cli struct {
	Addr         string `default:":9090" help:"Address the RPC surface listens on."`
	ModelsPath   string `default:"models.yaml" help:"Path to the model manifest."`
	EnvFile      string `default:".env" help:"Path to an optional .env file."`
	MaxSteps     int    `default:"10" help:"ReAct loop step budget per turn."`
	DefaultModel string `default:"" help:"model_id used when a request omits one."`
	Debug        bool   `default:"false" help:"Enable debug-level logging."`
	Tracing      bool   `default:"false" help:"Emit OpenTelemetry traces to stdout."`
	MetricsAddr  string `default:":9091" help:"Address the /metrics endpoint listens on."`
}

func main() {
	kong.Parse(&cli)

	logger := obs.NewLogger("agentd", cli.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := modelconfig.LoadEnvFile(cli.EnvFile); err != nil {
		logger.Warn("env file not fully loaded", "error", err)
	}

	provider, shutdownTracer, err := obs.InitTracer(ctx, obs.TracerConfig{Enabled: cli.Tracing, ServiceName: "agentd"})
	if err != nil {
		logger.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()
	tracer := provider.Tracer("agentd")

	metrics := obs.NewMetrics("agent")
	go serveMetrics(cli.MetricsAddr, metrics, logger)

	watcher, loadErrs, err := modelconfig.NewWatcher(cli.ModelsPath, tracer, metrics)
	if err != nil {
		logger.Error("failed to load model manifest", "path", cli.ModelsPath, "error", err)
		os.Exit(1)
	}
	defer watcher.Close()
	for _, e := range loadErrs {
		logger.Warn("model manifest entry skipped", "error", e)
	}

	state := make(map[string]string)
	registry := tool.New(tracer).WithMetrics(metrics)
	if err := domain.Register(registry, state); err != nil {
		logger.Error("failed to register domain tools", "error", err)
		os.Exit(1)
	}

	resolve := func(_ context.Context, _, modelID string) (*mode.Dispatcher, []llm.Message, error) {
		if modelID == "" {
			modelID = cli.DefaultModel
		}
		capability, ok := watcher.Registry().Get(modelID)
		if !ok {
			return nil, nil, fmt.Errorf("agentd: model %q is not configured", modelID)
		}

		thoughts := thought.New(capability)
		evaluator := evaluation.New()
		loop := react.New(registry, thoughts, evaluator, capability).WithMetrics(metrics)
		dispatcher := mode.New(capability, registry, thoughts, loop, cli.MaxSteps)
		return dispatcher, nil, nil
	}

	server := rpc.NewServer(resolve, "dev").WithMetrics(metrics)
	httpServer := &http.Server{Addr: cli.Addr, Handler: server.Routes()}

	go func() {
		logger.Info("agentd listening", "addr", cli.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("agentd server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("agentd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("agentd graceful shutdown failed", "error", err)
	}
}

func serveMetrics(addr string, m *obs.Metrics, logger interface {
	Error(msg string, args ...any)
}) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "error", err)
	}
}
