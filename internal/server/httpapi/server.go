// Package httpapi exposes the eventhub account endpoints over HTTP/JSON.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"github.com/dmitrijs2005/eventhub/internal/server/oauth"
	"github.com/dmitrijs2005/eventhub/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 10 * time.Second

// Users is the account logic the handlers call into.
type Users interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.Session, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	LoginWithOAuth(ctx context.Context, p services.OAuthProfile) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, userID string) error
	Profile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, upd services.ProfileUpdate) (*models.User, error)
}

// Verifier checks bearer tokens. It must not touch persistence.
type Verifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

type Options struct {
	Address           string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Google is nil when OAuth sign-in is not configured.
	Google oauth.Provider

	// Registry receives the HTTP metrics and backs /metrics. Nil means the
	// default Prometheus registry.
	Registry *prometheus.Registry
}

type Server struct {
	opts     Options
	users    Users
	verifier Verifier
	logger   logging.Logger
	metrics  *Metrics
	gatherer prometheus.Gatherer
}

func NewServer(opts Options, u Users, v Verifier, l logging.Logger) (*Server, error) {
	if u == nil || v == nil {
		return nil, errors.New("httpapi: users and verifier are required")
	}
	if l == nil {
		l = logging.Nop{}
	}

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}
	metrics, err := NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &Server{
		opts:     opts,
		users:    u,
		verifier: v,
		logger:   l.With("module", "http_server"),
		metrics:  metrics,
		gatherer: gatherer,
	}, nil
}

const rateLimitMessage = "Too many requests from this IP, please try again later."

// Routes builds the full handler tree, compression and tracing included.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("API is running..."))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		if s.opts.RateLimitRequests > 0 && s.opts.RateLimitWindow > 0 {
			r.Use(httprate.Limit(s.opts.RateLimitRequests, s.opts.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					respondMessage(w, http.StatusTooManyRequests, rateLimitMessage)
				}),
			))
		}

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/google", s.handleGoogleStart)
			r.Get("/google/callback", s.handleGoogleCallback)

			r.Group(func(r chi.Router) {
				r.Use(RequireAuth(s.verifier, s.logger, s.metrics))
				r.Post("/logout", s.handleLogout)
				r.Get("/profile", s.handleProfile)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(RequireAuth(s.verifier, s.logger, s.metrics))
			r.Put("/update", s.handleUpdateProfile)
		})
	})

	return otelhttp.NewHandler(gzhttp.GzipHandler(r), "eventhub-http")
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.opts.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
