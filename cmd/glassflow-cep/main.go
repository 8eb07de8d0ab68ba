package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/glassflow/glassflow-cep/internal"
	"github.com/glassflow/glassflow-cep/internal/api"
	"github.com/glassflow/glassflow-cep/internal/cep"
	"github.com/glassflow/glassflow-cep/internal/configs"
	"github.com/glassflow/glassflow-cep/internal/core/stream"
	"github.com/glassflow/glassflow-cep/internal/embedded"
	"github.com/glassflow/glassflow-cep/internal/server"
	"github.com/glassflow/glassflow-cep/internal/service"
	"github.com/glassflow/glassflow-cep/pkg/observability"
)

//nolint:gochecknoglobals,revive // build variables
var (
	commit  string = "unspecified"
	app     string = "glassflow-cep"
	version string = "dev"
)

type config struct {
	Role          string `default:"adapter"`
	AdapterConfig string `split_words:"true"`

	LogFormat    string     `default:"json" split_words:"true"`
	LogLevel     slog.Level `default:"info" split_words:"true"`
	LogAddSource bool       `default:"false" split_words:"true"`
	LogFilePath  string     `split_words:"true"`

	OtelObservability bool   `default:"false" split_words:"true"`
	MetricsEnabled    bool   `default:"false" split_words:"true"`
	ServiceNamespace  string `default:"glassflow" split_words:"true"`

	ServerAddr            string        `default:":8080" split_words:"true"`
	ServerWriteTimeout    time.Duration `default:"15s" split_words:"true"`
	ServerReadTimeout     time.Duration `default:"15s" split_words:"true"`
	ServerIdleTimeout     time.Duration `default:"5m" split_words:"true"`
	ServerShutdownTimeout time.Duration `default:"30s" split_words:"true"`

	NATSServer       string        `default:"localhost:4222" split_words:"true"`
	NATSMaxStreamAge time.Duration `default:"24h" split_words:"true"`

	EmbeddedNATSPort     int    `default:"4222" split_words:"true"`
	EmbeddedNATSStoreDir string `split_words:"true"`

	// AsyncDispatch > 0 delivers engine results on a dispatcher goroutine
	// buffering that many batches.
	AsyncDispatch int `default:"0" split_words:"true"`
}

func main() {
	var cfg config
	err := envconfig.Process("glassflow_cep", &cfg)
	if err != nil {
		slog.Error("unable to parse config", slog.Any("error", err))
		os.Exit(1)
	}

	flag.StringVar(&cfg.Role, "role", cfg.Role, "Process role: adapter, kafka, api or dev")
	flag.StringVar(&cfg.AdapterConfig, "config", cfg.AdapterConfig, "Path to the adapter definition (json or yaml)")
	flag.Parse()

	if err := mainErr(&cfg); err != nil {
		slog.Error("Service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("Service terminated gracefully")
}

func mainErr(cfg *config) error {
	var logOut io.Writer = os.Stdout
	if cfg.LogFilePath != "" {
		fileflags := os.O_WRONLY | os.O_APPEND | os.O_CREATE
		logFile, err := os.OpenFile(cfg.LogFilePath, fileflags, os.FileMode(0o600))
		if err != nil {
			return fmt.Errorf("unable to setup logfile: %w", err)
		}
		defer logFile.Close()

		logOut = io.MultiWriter(os.Stdout, logFile)
	}

	obsCfg := &observability.Config{
		LogFormat:         cfg.LogFormat,
		LogLevel:          cfg.LogLevel,
		LogAddSource:      cfg.LogAddSource,
		OtelObservability: cfg.OtelObservability,
		MetricsEnabled:    cfg.MetricsEnabled,
		ServiceName:       app,
		ServiceVersion:    version,
		ServiceNamespace:  cfg.ServiceNamespace,
	}

	log := observability.ConfigureLogger(obsCfg, logOut).With(
		slog.String("role", cfg.Role),
		slog.String("commit_hash", commit),
		slog.String("goversion", runtime.Version()),
	)

	// Dry runs always deliver inline so their results are complete on return.
	dryRun := service.NewCEPService(cep.NewEngine(cep.WithLogger(log)), log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cfg.Role {
	case internal.RoleAPI:
		return serve(ctx, cfg, log, api.NewRouter(log, nil, dryRun))
	case internal.RoleAdapter, internal.RoleKafka, internal.RoleDev:
		return runPipeline(ctx, cfg, obsCfg, dryRun, log)
	default:
		return fmt.Errorf("unknown role %q", cfg.Role)
	}
}

func runPipeline(ctx context.Context, cfg *config, obsCfg *observability.Config, dryRun *service.CEPService, log *slog.Logger) error {
	adapterCfg, err := configs.LoadAdapterConfig(cfg.AdapterConfig)
	if err != nil {
		return fmt.Errorf("load adapter config: %w", err)
	}

	obsCfg.AdapterName = adapterCfg.Name
	meter := observability.ConfigureMeter(obsCfg)

	natsURL := cfg.NATSServer
	if cfg.Role == internal.RoleDev {
		ns, err := embedded.NewNATSServer(log, cfg.EmbeddedNATSPort, cfg.EmbeddedNATSStoreDir)
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		defer ns.Shutdown()

		natsURL = ns.URL()
	}

	nc, err := stream.NewNATSClient(ctx, natsURL, stream.WithMaxAge(cfg.NATSMaxStreamAge), stream.WithLogger(log))
	if err != nil {
		return fmt.Errorf("nats client: %w", err)
	}
	defer func() {
		if err := nc.Close(); err != nil {
			log.Error("failed to close nats connection", slog.Any("error", err))
		}
	}()

	failures := service.NewListenerFailures()
	opts := []cep.Option{cep.WithLogger(log)}
	if cfg.AsyncDispatch > 0 {
		opts = append(opts,
			cep.WithAsyncDispatch(cfg.AsyncDispatch),
			cep.WithListenerErrorHandler(failures.Report),
		)
	}

	deps := service.PipelineDeps{
		NATS:     nc,
		Factory:  cep.NewEngine(opts...),
		Meter:    meter,
		Log:      log,
		Failures: failures,
	}

	var pipeline *service.Pipeline
	if cfg.Role == internal.RoleKafka {
		pipeline, err = service.NewKafkaPipeline(ctx, deps, adapterCfg)
	} else {
		pipeline, err = service.NewNATSPipeline(ctx, deps, adapterCfg)
	}
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- pipeline.Run(ctx)
	}()

	apiServer := newServer(cfg, log, api.NewRouter(log, pipeline.Adapter(), dryRun))
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	var errs []error
	select {
	case <-ctx.Done():
		log.Info("Received termination signal - service will shutdown")
	case err := <-runErr:
		log.Error("pipeline stopped", slog.Any("error", err))
		errs = append(errs, err)
	case err := <-serverErr:
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to start server: %w", err))
		}
	}

	if err := apiServer.Shutdown(cfg.ServerShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown server: %w", err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), internal.ShutdownTimeout)
	defer shutdownCancel()

	errs = append(errs, pipeline.Shutdown(shutdownCtx))

	return errors.Join(errs...)
}

func newServer(cfg *config, log *slog.Logger, handler http.Handler) *server.Server {
	return server.NewHTTPServer(
		cfg.ServerAddr,
		cfg.ServerReadTimeout,
		cfg.ServerWriteTimeout,
		cfg.ServerIdleTimeout,
		log,
		handler,
	)
}

// serve runs the management API until ctx is done.
func serve(ctx context.Context, cfg *config, log *slog.Logger, handler http.Handler) error {
	apiServer := newServer(cfg, log, handler)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Received termination signal - service will shutdown")
		if err := apiServer.Shutdown(cfg.ServerShutdownTimeout); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	}
}
