package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"peerbridge/internal/config"
	"peerbridge/internal/database"
	"peerbridge/internal/gateway"
	"peerbridge/internal/middleware"
	"peerbridge/internal/pipeline"
	"peerbridge/internal/routers"
	"peerbridge/internal/shared"
	"peerbridge/internal/usage"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Flags / ENV Variables
	listenAddr := flag.String("listen-addr", ":80", "Address to listen on")
	debug := flag.Bool("debug", false, "Debug enabled")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	redisAddr := flag.String("redis-addr", "", "Redis host:port for session records")
	dsn := flag.String("dsn", "", "Write DSN for buyer usage stats")

	maxConcurrency := flag.Int64("max-concurrency", shared.DefaultMaxConcurrency, "Max requests in flight")
	allowedBuyers := flag.String("allowed-buyers", "", "Comma separated buyer peer ids, empty allows all")
	logRequests := flag.Bool("log-requests", false, "Append one JSON line per request")
	requestLogPath := flag.String("request-log-path", shared.DefaultRequestLogPath, "Request log file")
	accountID := flag.String("account-id", shared.DefaultAccountID, "Account id used for routing")

	agentID := flag.String("agent-id", "main", "Agent that answers buyers")
	agentURL := flag.String("agent-url", "", "Agent chat completions endpoint")
	agentModel := flag.String("agent-model", "", "Model name sent to the agent")
	agentAPIKey := flag.String("agent-api-key", "", "Agent api key")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	cfg := &config.Config{
		Debug:         *debug,
		ListenAddr:    *listenAddr,
		MetricsAPIKey: *metricsAPIKey,
		RedisAddr:     *redisAddr,
		DSN:           *dsn,
		Gateway: config.GatewayConfig{
			MaxConcurrency: *maxConcurrency,
			AllowedBuyers:  shared.SplitList(*allowedBuyers),
			LogRequests:    *logRequests,
			RequestLogPath: *requestLogPath,
			AccountID:      *accountID,
		},
		Agent: config.AgentConfig{
			AgentID: *agentID,
			URL:     *agentURL,
			Model:   *agentModel,
			APIKey:  *agentAPIKey,
		},
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	var logger *zap.Logger
	if !cfg.Debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if cfg.Debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()
	defer func() {
		_ = log.Sync()
	}()

	// Session records go to redis when configured
	var sessions pipeline.SessionStore = pipeline.NoopSessionStore{}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: "",
			DB:       0,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			panic(fmt.Sprintf("failed ping to redis db: %s", err))
		}
		sessions = pipeline.NewRedisSessionStore(redisClient)
	}

	// Buyer usage stats go to mysql when configured
	var usageCache *usage.UsageCache
	var writeDB *sql.DB
	if cfg.DSN != "" {
		writeDB, err = sql.Open("mysql", cfg.DSN)
		if err != nil {
			panic(fmt.Sprintf("failed initializing sqlClient: %s", err))
		}
		err = writeDB.Ping()
		if err != nil {
			panic(fmt.Sprintf("failed ping to sql db: %s", err))
		}
		usageCache = usage.NewUsageCache(log, database.NewMySQLStore(writeDB))
	}

	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if writeDB != nil {
			_ = writeDB.Close()
		}
	}()

	deps := gateway.Deps{
		Router:     pipeline.NewStaticRouter(cfg.Agent.AgentID),
		Sessions:   sessions,
		Envelope:   pipeline.Envelope{},
		Dispatcher: pipeline.NewHTTPDispatcher(cfg.Agent.URL, cfg.Agent.APIKey, cfg.Agent.Model, log),
		Log:        log,
	}
	if usageCache != nil {
		deps.Usage = usageCache
	}
	gw, err := gateway.New(gateway.Config{
		MaxConcurrency: cfg.Gateway.MaxConcurrency,
		AllowedBuyers:  cfg.Gateway.AllowedBuyers,
		LogRequests:    cfg.Gateway.LogRequests,
		RequestLogPath: cfg.Gateway.RequestLogPath,
		AccountID:      cfg.Gateway.AccountID,
	}, deps)
	if err != nil {
		panic(err)
	}
	log.Infow("Agent configured", "agent_id", cfg.Agent.AgentID, "agent_url", cfg.Agent.URL)

	e := echo.New()
	e.HideBanner = true
	e.GET(("/ping"), func(c echo.Context) error {
		return c.String(200, "")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey, err := shared.ExtractAPIKey(c)
			if err != nil {
				return c.String(401, "Missing or invalid API key")
			}

			if apiKey != cfg.MetricsAPIKey {
				return c.String(401, "Unauthorized API key")
			}
			return next(c)
		}
	})
	base := e.Group("")
	base.Use(emw.CORS())
	base.Use(middleware.NewRecoverMiddleware(log))
	base.Use(middleware.NewTrackMiddleware(log))

	routers.RegisterGatewayRoutes(base, gw, cfg.Agent.AgentID, log)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Wait for interrupt signal to gracefully shut down the server with a timeout of 10 minutes.
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Errorw("Failed graceful shutdown", "error", err)
	}
	if usageCache != nil {
		usageCache.Shutdown(ctx)
	}
}
