package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/db/models"
	"github.com/scalarorg/ismp-relayer/pkg/events"
	"github.com/scalarorg/ismp-relayer/pkg/metrics"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

const (
	DEFAULT_LISTEN_ADDRESS   = ":8080"
	DEFAULT_SHUTDOWN_TIMEOUT = 10 * time.Second
)

type Config struct {
	ListenAddress   string        `mapstructure:"listen_address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RelayerService is what the API exposes of the relayer.
type RelayerService interface {
	Track(ctx context.Context, post types.PostRequest, height uint64) (*models.TrackedRequest, error)
	QueryStatus(ctx context.Context, post types.PostRequest) (types.MessageStatusWithMetadata, error)
	FindTrackedRequest(ctx context.Context, commitment common.Hash) (*models.TrackedRequest, error)
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

type Server struct {
	config   Config
	echo     *echo.Echo
	service  RelayerService
	eventBus *events.EventBus
}

func NewServer(config *Config, service RelayerService, eventBus *events.EventBus, m *metrics.Metrics) *Server {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DEFAULT_LISTEN_ADDRESS
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DEFAULT_SHUTDOWN_TIMEOUT
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("[Api] request")
			return nil
		},
	}))
	s := &Server{config: cfg, echo: e, service: service, eventBus: eventBus}

	metricsHandler := promhttp.Handler()
	if registry := m.Registry(); registry != nil {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(metricsHandler))
	v1 := e.Group("/v1")
	v1.POST("/requests", s.trackRequest)
	v1.POST("/requests/status", s.queryStatus)
	v1.GET("/requests/:commitment", s.getRequest)
	v1.GET("/requests/:commitment/events", s.streamEvents)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.config.ListenAddress).Msg("[Api] [Run] listening")
		errCh <- s.echo.Start(s.config.ListenAddress)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("[Api] [Run] failed to shutdown gracefully")
			return err
		}
		return nil
	}
}
