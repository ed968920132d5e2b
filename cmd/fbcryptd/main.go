package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/netutil"
	"google.golang.org/grpc"

	"github.com/RowanDark/fbcrypt/internal/config"
	"github.com/RowanDark/fbcrypt/internal/env"
	"github.com/RowanDark/fbcrypt/internal/fbc"
	"github.com/RowanDark/fbcrypt/internal/keyfile"
	"github.com/RowanDark/fbcrypt/internal/logging"
	obsmetrics "github.com/RowanDark/fbcrypt/internal/observability/metrics"
	"github.com/RowanDark/fbcrypt/internal/observability/tracing"
	"github.com/RowanDark/fbcrypt/internal/rpc"
)

var version = "dev"

type daemonConfig struct {
	addr        string
	keyPath     string
	token       string
	maxConns    int
	metricsAddr string
	maxRuns     int
	maxThreads  int
	logFile     string
	tracing     tracing.Config
}

func main() {
	defaults, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	addr := flag.String("addr", defaults.Server.Addr, "address for the gRPC server to listen on")
	keyPath := flag.String("key", defaults.KeyPath, "key file served by the daemon (required)")
	token := flag.String("token", defaults.Server.Token, "bearer token required from clients (empty disables auth)")
	maxConns := flag.Int("max-conns", defaults.Server.MaxConns, "maximum concurrent client connections (0 for unlimited)")
	metricsAddr := flag.String("metrics-addr", defaults.Server.MetricsAddr, "address for the Prometheus metrics endpoint (empty to disable)")
	maxRuns := flag.Int("max-runs", rpc.DefaultMaxRuns, "largest x-fbc-runs a client may request")
	maxThreads := flag.Int("max-threads", rpc.DefaultMaxThreads, "largest x-fbc-threads a client may request")
	traceFile := flag.String("trace-file", "", "path to append spans as JSONL (empty disables tracing)")
	traceSample := flag.Float64("trace-sample-ratio", 1.0, "probabilistic sampling ratio for root spans (0-1)")
	traceService := flag.String("trace-service-name", "fbcryptd", "service.name recorded on spans")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Fprintf(os.Stdout, "fbcryptd %s\n", version)
		return
	}
	if strings.TrimSpace(*keyPath) == "" {
		fmt.Fprintln(os.Stderr, "--key must be provided")
		os.Exit(2)
	}
	if *maxConns < 0 || *maxRuns < 1 || *maxThreads < 1 {
		fmt.Fprintln(os.Stderr, "--max-conns must be >= 0; --max-runs and --max-threads must be >= 1")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := daemonConfig{
		addr:        strings.TrimSpace(*addr),
		keyPath:     strings.TrimSpace(*keyPath),
		token:       strings.TrimSpace(*token),
		maxConns:    *maxConns,
		metricsAddr: strings.TrimSpace(*metricsAddr),
		maxRuns:     *maxRuns,
		maxThreads:  *maxThreads,
		logFile:     strings.TrimSpace(defaults.LogFile),
		tracing: tracing.Config{
			ServiceName: strings.TrimSpace(*traceService),
			SampleRatio: *traceSample,
			FilePath:    strings.TrimSpace(*traceFile),
		},
	}
	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg daemonConfig) error {
	coreLogger, err := newAuditLogger("fbcryptd", cfg.logFile)
	if err != nil {
		return fmt.Errorf("configure audit logger: %w", err)
	}
	defer coreLogger.Close()

	key, err := keyfile.Read(cfg.keyPath)
	if err != nil {
		return err
	}
	coreLogger.Record(logging.EventKeyLoaded, logging.DecisionInfo, map[string]any{"path": cfg.keyPath})
	if !key.IsPermutation() {
		coreLogger.Record(logging.EventKeyNotPermutation, logging.DecisionInfo, map[string]any{"path": cfg.keyPath})
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.tracing)
	if err != nil {
		return fmt.Errorf("configure tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			lifecycle(coreLogger, logging.DecisionInfo, err.Error(), map[string]any{"phase": "tracing_shutdown"})
		}
	}()
	if cfg.tracing.FilePath != "" {
		lifecycle(coreLogger, logging.DecisionInfo, "", map[string]any{
			"phase": "tracing_ready",
			"file":  cfg.tracing.FilePath,
		})
	}

	var (
		metricsSrv   *http.Server
		metricsErrCh chan error
	)
	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obsmetrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		metricsErrCh = make(chan error, 1)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErrCh <- err
			}
		}()
		lifecycle(coreLogger, logging.DecisionInfo, "", map[string]any{
			"phase":   "metrics_ready",
			"address": cfg.metricsAddr,
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lifecycle(coreLogger, logging.DecisionInfo, err.Error(), map[string]any{"phase": "metrics_shutdown"})
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.addr, err)
	}
	if cfg.maxConns > 0 {
		lis = netutil.LimitListener(lis, cfg.maxConns)
	}
	defer func() {
		if err := lis.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			lifecycle(coreLogger, logging.DecisionInfo, err.Error(), map[string]any{"phase": "close_listener"})
		}
	}()

	server := rpc.NewServer(fbc.NewWithKey(key),
		rpc.WithAuditLogger(coreLogger.WithComponent("cipher_service")),
		rpc.WithLimits(cfg.maxRuns, cfg.maxThreads),
	)

	serviceCtx, cancelService := context.WithCancel(ctx)
	defer cancelService()

	grpcErrCh := make(chan error, 1)
	go func() {
		grpcErrCh <- serve(serviceCtx, lis, server, cfg.token, coreLogger)
	}()
	lifecycle(coreLogger, logging.DecisionAllow, "", map[string]any{
		"phase":     "ready",
		"address":   lis.Addr().String(),
		"max_conns": cfg.maxConns,
		"auth":      cfg.token != "",
	})

	select {
	case err := <-grpcErrCh:
		if err == nil {
			return ctx.Err()
		}
		return err
	case err := <-metricsErrCh:
		cancelService()
		<-grpcErrCh
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		cancelService()
		if err := <-grpcErrCh; err != nil {
			return err
		}
		lifecycle(coreLogger, logging.DecisionInfo, "", map[string]any{"phase": "stopped"})
		return ctx.Err()
	}
}

// serve runs the cipher service on lis until ctx is cancelled. Shutdown is
// graceful for two seconds, after which open calls are dropped.
func serve(ctx context.Context, lis net.Listener, server *rpc.Server, token string, logger *logging.AuditLogger) error {
	if server == nil {
		return errors.New("cipher server must be provided")
	}
	srv := rpc.NewGRPCServer(server, token, logger.WithComponent("grpc"))

	go func() {
		<-ctx.Done()

		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			lifecycle(logger, logging.DecisionInfo, "graceful stop timed out", map[string]any{"phase": "grpc_shutdown"})
			srv.Stop()
		}
	}()

	if err := srv.Serve(lis); err != nil {
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
	return nil
}

func newAuditLogger(component, path string) (*logging.AuditLogger, error) {
	opts := []logging.Option{}
	if val, ok := env.Setting("AUDIT_LOG_STDOUT"); ok && disableStdout(val) {
		opts = append(opts, logging.WithoutStdout())
	}
	if val, ok := env.Setting("AUDIT_LOG_PATH"); ok && val != "" {
		path = val
	}
	if path != "" {
		opts = append(opts, logging.WithFile(path))
	}
	return logging.NewAuditLogger(component, opts...)
}

func disableStdout(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "0" || value == "false" || value == "no"
}

func lifecycle(logger *logging.AuditLogger, decision logging.Decision, reason string, meta map[string]any) {
	_ = logger.Emit(logging.AuditEvent{
		EventType: logging.EventServerLifecycle,
		Decision:  decision,
		Reason:    reason,
		Metadata:  meta,
	})
}
