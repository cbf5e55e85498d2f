package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"barber-booking-api/internal/backplane"
	"barber-booking-api/internal/config"
	gweb "barber-booking-api/internal/grpcweb"
	"barber-booking-api/internal/handler"
	"barber-booking-api/internal/hub"
	"barber-booking-api/internal/middleware"
	"barber-booking-api/internal/relay"
	"barber-booking-api/internal/rpc"
	"barber-booking-api/internal/shell"
	"barber-booking-api/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API, booking hub, gRPC server and client shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log, !skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply the schema on startup")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger, migrate bool) error {
	pool, err := connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("connected to postgres")

	st := store.New(pool)
	if migrate {
		if err := st.Migrate(ctx, cfg.MigrationsPath); err != nil {
			log.Warn("migration skipped", zap.Error(err))
		} else {
			log.Info("migration applied")
		}
	}

	// relay, with a redis backplane when more than one instance runs
	var opts []relay.Option
	var bp *backplane.Redis
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		bp = backplane.NewRedis(rdb, cfg.RedisChannel, log)
		opts = append(opts, relay.WithBackplane(bp))
	}
	rl := relay.New(relay.NewRegistry(), log, opts...)
	if bp != nil {
		if err := bp.Start(ctx, rl.FanOut); err != nil {
			return err
		}
	}

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit, cfg.RateBurst)

	// grpc
	srv := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(
			middleware.RateLimit(limiter, rpc.SendMethod),
			middleware.Auth(cfg.JWTSecret),
		),
		grpc.ChainStreamInterceptor(middleware.StreamAuth(cfg.JWTSecret)),
	)
	rpc.Register(srv, rpc.NewServer(rl, log))

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	go func() {
		log.Info("grpc listening", zap.String("port", cfg.GRPCPort))
		if err := srv.Serve(lis); err != nil {
			log.Error("grpc", zap.Error(err))
		}
	}()

	// grpc-web bridge forwards browser calls to the grpc listener
	bridge, err := gweb.New("localhost:"+cfg.GRPCPort, log, gweb.Options{
		StreamMethods:  []string{rpc.ReceiveStreamMethod},
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		return err
	}
	defer bridge.Close()

	shellOpts := shell.Options{BasePath: cfg.BasePath, Secret: cfg.JWTSecret}
	if cfg.AssetsDir != "" {
		shellOpts.Assets = os.DirFS(cfg.AssetsDir)
	}

	api := handler.New(st, rl, cfg.JWTSecret, log)
	hubHandler := hub.NewHandler(rl, log, hub.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		InvokeRate:     cfg.RateLimit,
		InvokeBurst:    cfg.RateBurst,
	})

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	root := chi.NewRouter()
	root.Use(chimw.RealIP, chimw.Recoverer)
	root.Handle("/metrics", promhttp.Handler())
	root.Handle("/"+rpc.ServiceName+"/*", bridge)
	root.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: len(cfg.AllowedOrigins) > 0,
			MaxAge:           300,
		}))
		r.Mount("/api", api.Routes(limiter))
		r.Handle("/hubs/booking", hubHandler)
	})
	root.Handle("/*", shell.NewHandler(shellOpts, log))

	httpSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("port", cfg.HTTPPort), zap.String("base_path", cfg.BasePath))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		srv.Stop()
		return err
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		httpSrv.Close()
	}
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-sctx.Done():
		srv.Stop()
	}
	return nil
}
