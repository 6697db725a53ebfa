// Package server runs the API handler behind a local HTTP listener.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mentorgraph/handler"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// APIHandler serves API Gateway proxy requests. *handler.Handler implements it.
type APIHandler interface {
	Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
}

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
	// Registry receives the HTTP metrics. A fresh registry is used when nil.
	Registry *prometheus.Registry
}

type Server struct {
	api     APIHandler
	router  *mux.Router
	logger  *slog.Logger
	limiter *rateLimiter
	metrics *httpMetrics
}

func New(api APIHandler, opts Options) (*Server, error) {
	if api == nil {
		return nil, errors.New("server: api handler must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := newHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("server: metrics: %w", err)
	}

	s := &Server{
		api:     api,
		router:  mux.NewRouter(),
		logger:  logger,
		limiter: newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		metrics: m,
	}

	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	for _, resource := range handler.Resources() {
		s.router.HandleFunc(resource, s.proxy)
	}
	s.router.NotFoundHandler = s.wrap(http.HandlerFunc(s.proxy))
	s.router.Use(s.logRequests, s.metrics.instrument, s.limiter.limit)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// wrap applies the middleware chain to handlers mux does not route.
func (s *Server) wrap(h http.Handler) http.Handler {
	return s.logRequests(s.metrics.instrument(s.limiter.limit(h)))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	go s.limiter.sweep(ctx, time.Minute)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	}
}

// proxy converts the HTTP request into an API Gateway event and writes the
// handler's response back.
func (s *Server) proxy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, `{"error":"INVALID_INPUT","reason":"unreadable_body"}`, http.StatusBadRequest)
		return
	}

	resp, err := s.api.Handle(r.Context(), toProxyRequest(r, body))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "api handler failed", "path", r.URL.Path, "err", err)
		http.Error(w, `{"error":"INTERNAL_ERROR","reason":"handler_error"}`, http.StatusInternalServerError)
		return
	}
	writeProxyResponse(w, resp)
}

func toProxyRequest(r *http.Request, body []byte) events.APIGatewayProxyRequest {
	req := events.APIGatewayProxyRequest{
		HTTPMethod:                      r.Method,
		Path:                            r.URL.Path,
		Headers:                         map[string]string{},
		MultiValueHeaders:               map[string][]string{},
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string{},
		PathParameters:                  mux.Vars(r),
		Body:                            string(body),
		RequestContext: events.APIGatewayProxyRequestContext{
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
			Identity:   events.APIGatewayRequestIdentity{SourceIP: clientIP(r)},
		},
	}
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			req.Resource = tmpl
			req.RequestContext.ResourcePath = tmpl
		}
	}
	for k, vs := range r.Header {
		req.MultiValueHeaders[k] = vs
		if len(vs) > 0 {
			req.Headers[k] = vs[0]
		}
	}
	for k, vs := range r.URL.Query() {
		req.MultiValueQueryStringParameters[k] = vs
		if len(vs) > 0 {
			req.QueryStringParameters[k] = vs[0]
		}
	}
	return req
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		if decoded, err := base64.StdEncoding.DecodeString(resp.Body); err == nil {
			body = decoded
		}
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
