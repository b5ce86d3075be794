// Command gateway runs the Gateway Service half of the two-process
// topology (spec §2): the Session Store and the outward SSE surface,
// delegating reasoning to an Agent Service over RPC. Grounded on hector's
// cmd/hector main-wiring shape (kong CLI, signal.NotifyContext shutdown).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/shuaitravel/agent/pkg/gateway"
	"github.com/shuaitravel/agent/pkg/modelconfig"
	"github.com/shuaitravel/agent/pkg/obs"
	"github.com/shuaitravel/agent/pkg/rpc"
	"github.com/shuaitravel/agent/pkg/session"
)

var cli struct {
	Addr         string        `default:":8080" help:"Address the HTTP/SSE surface listens on."`
	AgentAddr    string        `default:"http://localhost:9090" help:"Base URL of the Agent Service's RPC surface."`
	ModelsPath   string        `default:"models.yaml" help:"Path to the model manifest, used for the /api/models catalog."`
	EnvFile      string        `default:".env" help:"Path to an optional .env file."`
	DefaultModel string        `default:"" help:"model_id used when a request omits one."`
	Heartbeat    time.Duration `default:"30s" help:"Silence window before an SSE heartbeat is emitted."`
	Debug        bool          `default:"false" help:"Enable debug-level logging."`
	MetricsAddr  string        `default:":8081" help:"Address the /metrics endpoint listens on."`
}

func main() {
	kong.Parse(&cli)

	logger := obs.NewLogger("gateway", cli.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := modelconfig.LoadEnvFile(cli.EnvFile); err != nil {
		logger.Warn("env file not fully loaded", "error", err)
	}

	manifest, err := modelconfig.Load(cli.ModelsPath)
	if err != nil {
		logger.Error("failed to load model manifest", "path", cli.ModelsPath, "error", err)
		os.Exit(1)
	}

	metrics := obs.NewMetrics("gateway")
	go serveMetrics(cli.MetricsAddr, metrics, logger)

	client := rpc.NewClient(cli.AgentAddr, &http.Client{Timeout: 0})
	dispatcher := gateway.NewRemoteDispatcher(client)
	store := session.New().WithMetrics(metrics)
	catalog := gateway.NewCatalog(manifest.Models)

	server := gateway.NewServer(store, dispatcher, catalog, cli.DefaultModel).
		WithHeartbeatInterval(cli.Heartbeat).
		WithMetrics(metrics).
		WithAgentPing(func(ctx context.Context) error {
			_, err := client.HealthCheck(ctx)
			return err
		})

	httpServer := &http.Server{Addr: cli.Addr, Handler: server.Routes()}

	go func() {
		logger.Info("gateway listening", "addr", cli.Addr, "agent", cli.AgentAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("gateway shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gateway graceful shutdown failed", "error", err)
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
