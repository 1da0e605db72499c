package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/einterview/internal/answer"
	"github.com/victornm/einterview/internal/api"
	"github.com/victornm/einterview/internal/event"
	"github.com/victornm/einterview/internal/genai"
	"github.com/victornm/einterview/internal/interview"
	"github.com/victornm/einterview/internal/progress"
	"github.com/victornm/einterview/internal/scoring"
	"github.com/victornm/einterview/internal/session"
	"github.com/victornm/einterview/internal/speech"
	"github.com/victornm/einterview/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32 `validate:"required,gt=0"`
	}

	GRPC struct {
		Port int32 `validate:"required,gt=0"`
	}

	Redis struct {
		Progress struct {
			Addrs  []string `validate:"required,min=1"`
			Pass   string
			Prefix string `validate:"required"`
		}

		Pubsub struct {
			Addrs  []string `validate:"required,min=1"`
			Pass   string
			Prefix string `validate:"required"`
		}
	}

	Postgres struct {
		Addr string `validate:"required"`
		User string `validate:"required"`
		Pass string
		Name string `validate:"required"`
	}

	// NATS carries recognizer fragments when enabled; otherwise clients push them over HTTP.
	NATS struct {
		Enabled       bool
		URL           string `validate:"required_if=Enabled true"`
		SubjectPrefix string `validate:"required_if=Enabled true"`
	}

	GenAI struct {
		Provider    string `validate:"oneof=openai gemini"`
		BaseURL     string
		APIKey      string `validate:"required"`
		Model       string `validate:"required"`
		Temperature float64
		Timeout     time.Duration
	}

	QuestionBank struct {
		Path string
	}

	Navigation struct {
		FeedbackPath string
	}
}

// DefaultConfig holds the values a config file may leave out.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Redis.Progress.Prefix = "einterview:progress"
	c.Redis.Pubsub.Prefix = "einterview:pubsub"
	c.NATS.SubjectPrefix = "einterview.speech"
	c.GenAI.Provider = "openai"
	c.GenAI.Timeout = 60 * time.Second
	c.Navigation.FeedbackPath = session.DefaultFeedbackPath
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			progress redis.UniversalClient
			pubsub   redis.UniversalClient
		}

		postgres *pgxpool.Pool
		nats     *nats.Conn
	}

	service struct {
		interview *interview.Service
		answer    *answer.Store
		scoring   *scoring.Client
		session   *session.Service
		progress  *progress.Service
		navigator *session.EventNavigator
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := s.initNATS(); err != nil {
		return fmt.Errorf("nats: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(name, r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.progress, err = connect("progress", s.c.Redis.Progress.Addrs, s.c.Redis.Progress.Pass)
	if err != nil {
		return fmt.Errorf("progress: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pg.User, pg.Pass, pg.Addr, pg.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initNATS() error {
	if !s.c.NATS.Enabled {
		return nil
	}

	nc, err := nats.Connect(s.c.NATS.URL,
		nats.Name("einterview"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats: disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats: reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return err
	}

	s.infra.nats = nc
	return nil
}

func (s *Server) initService() error {
	bank, err := interview.LoadBank(s.c.QuestionBank.Path)
	if err != nil {
		return fmt.Errorf("question bank: %w", err)
	}

	gen, err := genai.New(genai.Config{
		Provider:    s.c.GenAI.Provider,
		BaseURL:     s.c.GenAI.BaseURL,
		APIKey:      s.c.GenAI.APIKey,
		Model:       s.c.GenAI.Model,
		Temperature: s.c.GenAI.Temperature,
		Timeout:     s.c.GenAI.Timeout,
	})
	if err != nil {
		return err
	}

	s.service.interview = interview.NewService(interview.Config{
		DB:   s.infra.postgres,
		Bank: bank,
	})

	s.service.answer = answer.NewStore(answer.Config{
		DB: s.infra.postgres,
	})

	s.service.scoring = scoring.NewClient(scoring.Config{
		Generator: gen,
	})

	recognizers := speech.NewPushFactory()
	if s.infra.nats != nil {
		recognizers = speech.NewNATSFactory(s.infra.nats, s.c.NATS.SubjectPrefix)
	}

	s.service.navigator = session.NewEventNavigator(s.eb, s.c.Navigation.FeedbackPath)

	s.service.session = session.NewService(session.Config{
		EventBus:    s.eb,
		Questions:   s.service.interview,
		Scorer:      s.service.scoring,
		Gateway:     s.service.answer,
		Recognizers: recognizers,
		Navigator:   s.service.navigator,
	})

	s.service.progress = progress.NewService(progress.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.progress,
		Prefix:   s.c.Redis.Progress.Prefix,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", s.healthz)
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc, s.health = telemetry.NewGRPCServer()

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Interview:    s.service.interview,
		Session:      s.service.session,
		Answer:       s.service.answer,
		Progress:     s.service.progress,
		Navigator:    s.service.navigator,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error { return s.infra.postgres.Ping(ctx) })
	eg.Go(func() error { return s.infra.redis.progress.Ping(ctx).Err() })
	eg.Go(func() error { return s.infra.redis.pubsub.Ping(ctx).Err() })
	if s.infra.nats != nil {
		eg.Go(func() error {
			if !s.infra.nats.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		slog.WarnContext(ctx, "server: health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC health listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Release recognizers before the transports they read from.
	s.service.session.CloseAll(ctx)
	if s.infra.nats != nil {
		if err := s.infra.nats.Drain(); err != nil {
			slog.ErrorContext(ctx, "server: drain NATS failed", "error", err)
		}
	}

	s.eb.Stop()

	s.infra.postgres.Close()
	for _, r := range []redis.UniversalClient{s.infra.redis.progress, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
