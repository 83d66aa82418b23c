// Package server exposes the credit market over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fixedcredit/observability"
	"fixedcredit/services/creditd/auth"
	"fixedcredit/services/creditd/indexer"
	"fixedcredit/services/creditd/market"
)

const maxBodyBytes = 1 << 20

// Config captures the dependencies of the API server.
type Config struct {
	Market    *market.Market
	Verifier  *auth.Verifier
	Indexer   *indexer.Indexer
	Metrics   *observability.CreditMetrics
	Logger    *slog.Logger
	RateLimit RateLimit
	// ServeMetrics mounts /metrics on the API router.
	ServeMetrics bool
}

// Server handles credit API requests.
type Server struct {
	market   *market.Market
	verifier *auth.Verifier
	indexer  *indexer.Indexer
	metrics  *observability.CreditMetrics
	logger   *slog.Logger
	limiter  *RateLimiter

	router http.Handler
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Market == nil {
		return nil, errors.New("server: market required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("server: verifier required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		market:   cfg.Market,
		verifier: cfg.Verifier,
		indexer:  cfg.Indexer,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "api"),
	}
	s.limiter = NewRateLimiter(cfg.RateLimit, cfg.Metrics)
	s.router = s.buildRouter(cfg.ServeMetrics)
	return s, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler { return s.router }

// Close stops background helpers.
func (s *Server) Close() { s.limiter.Close() }

func (s *Server) buildRouter(serveMetrics bool) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if serveMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(api chi.Router) {
		api.Get("/config", s.getConfig)
		api.Get("/positions/count", s.getPositionsCount)
		api.Get("/positions/debt/{id}", s.getDebtPosition)
		api.Get("/positions/credit/{id}", s.getCreditPosition)
		api.Get("/loans/{id}/status", s.getLoanStatus)
		api.Get("/users/{address}", s.getUser)
		api.Get("/offers/{address}/loan", s.getLoanOfferAPR)
		api.Get("/offers/{address}/borrow", s.getBorrowOfferAPR)
		api.Get("/rates/variable", s.getVariableRate)
		api.Get("/price", s.getPrice)
		api.Get("/events", s.getEvents)

		api.Group(func(authed chi.Router) {
			authed.Use(s.verifier.Middleware)

			s.mountOrders(authed)

			authed.Group(func(keeper chi.Router) {
				keeper.Use(auth.RequireRole(auth.RoleKeeper))
				keeper.Post("/keeper/variable-rate", s.setVariableRate)
				keeper.Post("/keeper/variable-rate/sync", s.syncVariableRate)
				keeper.Post("/keeper/liquidate-with-replacement", s.liquidateWithReplacement)
				keeper.Post("/keeper/price", s.pushPrice)
			})
			authed.Group(func(admin chi.Router) {
				admin.Use(auth.RequireRole(auth.RoleAdmin))
				admin.Post("/admin/config", s.updateConfig)
				admin.Post("/admin/pause", s.setPause)
				admin.Post("/admin/fund", s.fund)
				admin.Post("/admin/pool-borrowed", s.setPoolBorrowed)
			})
		})
	})
	return otelhttp.NewHandler(r, "creditd")
}

type ctxKeyRequestID struct{}

// requestID propagates X-Request-ID, generating one when absent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.Observe(route, status, time.Since(start))
		s.logger.Debug("request handled",
			"method", r.Method,
			"route", route,
			"status", status,
			"request_id", requestIDFrom(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func decode(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "request_id", requestIDFrom(r.Context()))
	}
	writeJSON(w, status, map[string]errorBody{"error": {
		Code:      code,
		Message:   err.Error(),
		RequestID: requestIDFrom(r.Context()),
	}})
}
