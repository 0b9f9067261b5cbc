package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	pb "github.com/dense-identity/confdialer/api/go/dialer/v1"
	"github.com/dense-identity/confdialer/internal/asteriskcli"
	"github.com/dense-identity/confdialer/internal/callstore"
	"github.com/dense-identity/confdialer/internal/config"
	"github.com/dense-identity/confdialer/internal/dialer"
	"github.com/dense-identity/confdialer/internal/synth"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Printf("No env file loaded: %v", err)
	}
	cfg, err := config.New[config.DialerConfig]()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open call store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer store.Close()

	synthesizer := synth.NewClient(cfg.TTSAPIURL, cfg.TTSTimeout(), logger)
	engine, err := dialer.New(dialer.OptionsFromConfig(cfg), dialer.Deps{
		Store:  store,
		Switch: dialer.NewAMIConnector(dialer.AMIConfigFromConfig(cfg), logger),
		CLI:    asteriskcli.NewExecRunner(cfg.AsteriskBin, cfg.CLITimeout(), logger),
		Assets: synth.NewAssets(cfg.SoundsDir, synthesizer, logger),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Failed to start dialer", zap.Error(err))
	}
	defer engine.Close()

	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("addr", addr), zap.Error(err))
	}

	var serverOpts []grpc.ServerOption
	if cfg.APITokenHash != "" {
		serverOpts = append(serverOpts, grpc.UnaryInterceptor(dialer.TokenAuth(cfg.APITokenHash)))
	} else {
		logger.Warn("API_TOKEN_HASH is empty, the API is unauthenticated")
	}
	grpcServer := grpc.NewServer(serverOpts...)
	pb.RegisterDialerServiceServer(grpcServer, dialer.NewServer(engine, logger))

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", zap.Error(err))
			stop()
		}
	}()

	var watchServer *http.Server
	if cfg.WatchAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/watch", dialer.NewWatchHandler(engine, logger))
		watchServer = &http.Server{Addr: cfg.WatchAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("Watch feed listening", zap.String("addr", cfg.WatchAddr))
			if err := watchServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Watch feed error", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	if watchServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = watchServer.Shutdown(shutdownCtx)
		cancel()
	}
	grpcServer.GracefulStop()
}

func newLogger(cfg *config.DialerConfig) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

func newStore(ctx context.Context, cfg *config.DialerConfig) (callstore.Store, error) {
	if strings.EqualFold(cfg.StoreBackend, "redis") {
		return callstore.NewRedisStore(ctx, callstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			RoomTTL:  cfg.RoomTTL(),
		})
	}
	return callstore.NewMemoryStore(cfg.RoomTTL()), nil
}
