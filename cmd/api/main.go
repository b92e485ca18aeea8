package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"presence/internal/attendance"
	"presence/internal/auth"
	"presence/internal/config"
	"presence/internal/geo"
	"presence/internal/httpmiddleware"
	"presence/internal/logging"
	"presence/internal/metrics"
	"presence/internal/queue"
	"presence/internal/store"
	"presence/internal/tally"
	"presence/internal/web"
)

func main() {
	cfg := config.Load()

	logger, flush, err := logging.Install(cfg.Production(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer flush()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" {
		if redisClient, err = store.NewRedis(cfg.RedisAddr); err != nil {
			return err
		}
		defer redisClient.Close()
	}

	// schema is created by the first request that touches the store
	repo := attendance.NewRepository(db.Client, db.Driver)

	collector := metrics.New(prometheus.DefaultRegisterer)
	opts := []attendance.Option{
		attendance.WithObserver(collector),
		attendance.WithDefaultCourse(cfg.DefaultCourse),
	}

	var counter tally.Counter
	switch cfg.QueueBackend {
	case "redis":
		opts = append(opts, attendance.WithPublisher(queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)))
		counter = tally.NewRedisCounter(redisClient.Client, "")
	case "memory":
		q := queue.NewInMemory(256)
		mem := tally.NewMemoryCounter()
		opts = append(opts, attendance.WithPublisher(q))
		counter = mem
		go func() {
			if err := tally.Run(ctx, q, mem); err != nil {
				logger.Error("in-process tally stopped", zap.Error(err))
			}
		}()
	}

	policy := attendance.Policy{
		Origin:       geo.Point{Lat: cfg.RefLatitude, Lon: cfg.RefLongitude},
		MaxDistanceM: cfg.MaxDistanceM,
	}
	svc := attendance.NewService(repo, policy, opts...)

	authn := auth.Authenticator{
		PasswordHash: cfg.AdminPasswordHash,
		Issuer:       cfg.JWTIssuer,
		SigningKey:   cfg.JWTSigningKey,
		TTL:          cfg.AdminTTL,
	}
	if !authn.Enabled() {
		logger.Warn("ADMIN_PASSWORD_HASH not set, admin pages are open")
	}
	adminAuth := auth.AdminAuth(authn, "/admin/login")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(logger.Named("http"), "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewIPRateLimiter(cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db.Healthy(c.Request.Context())
		body := gin.H{"db": dbHealthy}
		status := http.StatusOK
		if !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			redisHealthy := redisClient.Healthy(c.Request.Context())
			body["redis"] = redisHealthy
			if !redisHealthy {
				status = http.StatusServiceUnavailable
			}
		}
		body["status"] = http.StatusText(status)
		c.JSON(status, body)
	})

	attendance.RegisterRoutes(r, attendance.NewHandler(svc, cfg.AdminListLimit), adminAuth)
	if counter != nil {
		r.GET("/api/courses/:course/tally", adminAuth, tally.Handler(counter))
	}

	pages := web.NewHandler(svc, repo, authn, web.Config{
		Policy:        policy,
		DefaultCourse: cfg.DefaultCourse,
		ListLimit:     cfg.AdminListLimit,
		PublicURL:     cfg.PublicURL,
		SecureCookie:  cfg.Production(),
	})
	if err := web.Register(r, pages, adminAuth); err != nil {
		return err
	}
	r.Static("/static", cfg.StaticDir)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.HTTPPort),
			zap.Float64("ref_latitude", cfg.RefLatitude),
			zap.Float64("ref_longitude", cfg.RefLongitude),
			zap.Float64("max_distance_m", cfg.MaxDistanceM),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}
