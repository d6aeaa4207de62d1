package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"google.golang.org/grpc"

	"github.com/cwrk-planet/pointing-poker/config"
	"github.com/cwrk-planet/pointing-poker/internal/service"
	"github.com/cwrk-planet/pointing-poker/internal/store"
	grpcx "github.com/cwrk-planet/pointing-poker/internal/transport/grpc"
	httpx "github.com/cwrk-planet/pointing-poker/internal/transport/http"
	"github.com/cwrk-planet/pointing-poker/internal/transport/ws"
	"github.com/cwrk-planet/pointing-poker/pkg/logger"
)

const wsShutdownTimeout = 5 * time.Second

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	backend, err := logger.ParseBackend(cfg.Logging.Backend)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   backend,
		Level:     level,
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	defer func() { _ = logger.Sync() }()

	slog.Info("starting pointing-poker",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- rooms ---
	rooms := store.New()
	roomSvc := service.NewRoomService(rooms, service.WithLocation(cfg.Location()))

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	wsCfg := ws.Config{
		PingInterval:   cfg.WS.PingInterval,
		WriteTimeout:   cfg.WS.WriteTimeout,
		ReadLimit:      cfg.WS.ReadLimit,
		SendBuffer:     cfg.WS.SendBuffer,
		RateLimit:      cfg.WS.RateLimit,
		RateBurst:      cfg.WS.RateBurst,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
	wsServer := ws.NewServer(ws.NewRouter(roomSvc, hub, wsCfg), wsCfg)

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(roomSvc),
		WS:             wsServer.HandleWS,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	httpSrv := httpx.NewServer(httpx.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, router, func() {
		// hijacked sockets are invisible to http.Server.Shutdown
		ctx, cancel := context.WithTimeout(context.Background(), wsShutdownTimeout)
		defer cancel()
		if err := wsServer.Shutdown(ctx); err != nil {
			slog.Warn("ws shutdown", "err", err, "open", wsServer.Connections())
		}
	})

	// --- run ---
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	var wg conc.WaitGroup

	wg.Go(func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.Run(ctx); err != nil {
			slog.Error("http server", "err", err)
		}
		cancel()
	})

	// --- gRPC admin ---
	if cfg.GRPC.Addr != "" {
		grpcServer := grpc.NewServer(
			grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor()),
			grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor()),
		)
		grpcx.Register(grpcServer, grpcx.NewServer(roomSvc))

		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			slog.Error("grpc listen", "addr", cfg.GRPC.Addr, "err", err)
			cancel()
		} else {
			wg.Go(func() {
				slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
				if err := grpcServer.Serve(lis); err != nil {
					slog.Error("grpc server", "err", err)
				}
				cancel()
			})
			wg.Go(func() {
				<-ctx.Done()
				grpcServer.GracefulStop()
			})
		}
	}

	<-ctx.Done()
	if sigCtx.Err() != nil {
		slog.Info("shutdown signal")
	}

	if r := wg.WaitAndRecover(); r != nil {
		slog.Error("server panic", "panic", r.Value, "stack", string(r.Stack))
	}
	slog.Info("stopped", "rooms", rooms.Len())
}
