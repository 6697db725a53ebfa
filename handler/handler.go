// Package handler adapts API Gateway proxy events to MentorGraph use cases.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"mentorgraph/internal/domain"
	"mentorgraph/internal/usecase"
)

const (
	correlationHeader    = "X-Correlation-Id"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

var newCorrelationID = uuid.NewString

// Service is the set of operations exposed over HTTP. *usecase.Service
// implements it.
type Service interface {
	SpaceID() string
	CreateProfile(ctx context.Context, in usecase.CreateProfileInput) (domain.Profile, error)
	GetProfile(ctx context.Context, wallet string) (domain.Profile, error)
	ListProfiles(ctx context.Context, skill string) ([]domain.Profile, error)
	CreateAsk(ctx context.Context, in usecase.CreateAskInput) (domain.Ask, error)
	ListAsks(ctx context.Context, f usecase.PostingFilter) ([]domain.Ask, error)
	CreateOffer(ctx context.Context, in usecase.CreateOfferInput) (domain.Offer, error)
	ListOffers(ctx context.Context, f usecase.PostingFilter) ([]domain.Offer, error)
	RequestSession(ctx context.Context, in usecase.RequestSessionInput) (domain.Session, error)
	GetSession(ctx context.Context, key string) (domain.Session, error)
	ListSessions(ctx context.Context, f usecase.SessionFilter) ([]domain.Session, error)
	ConfirmSession(ctx context.Context, key, wallet string) (domain.Session, error)
	RejectSession(ctx context.Context, key, wallet, reason string) (domain.Session, error)
	CreateFeedback(ctx context.Context, in usecase.CreateFeedbackInput) (domain.Feedback, error)
	ListFeedback(ctx context.Context, f usecase.FeedbackFilter) ([]domain.Feedback, error)
	CreateTrustEdge(ctx context.Context, in usecase.CreateTrustEdgeInput) (domain.TrustEdge, error)
	ListTrustEdges(ctx context.Context, f usecase.TrustEdgeFilter) ([]domain.TrustEdge, error)
	ListMatches(ctx context.Context, skill string) ([]domain.Match, error)
	GetDashboard(ctx context.Context, wallet string) (domain.Dashboard, error)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type Handler struct {
	svc    Service
	logger *slog.Logger
	routes []route
}

func NewHandler(svc Service) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	h := &Handler{svc: svc, logger: slog.Default()}
	h.routes = h.buildRoutes()
	return h, nil
}

// WithLogger replaces the logger used for failed requests.
func (h *Handler) WithLogger(l *slog.Logger) *Handler {
	if l != nil {
		h.logger = l
	}
	return h
}

// Handle serves one API Gateway proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newCorrelationID()
	}

	rt, params, ok := h.match(req.Resource, req.Path, req.PathParameters)
	if !ok {
		return h.fail(ctx, req, correlationID, http.StatusNotFound, string(usecase.ErrorNotFound), "route_not_found", nil), nil
	}
	op, ok := rt.methods[req.HTTPMethod]
	if !ok {
		resp := h.fail(ctx, req, correlationID, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method_not_allowed", nil)
		resp.Headers["Allow"] = rt.allow()
		return resp, nil
	}

	body, err := requestBody(req)
	if err != nil {
		return h.fail(ctx, req, correlationID, http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_body", err), nil
	}

	status, out, err := op(ctx, call{params: params, query: req.QueryStringParameters, body: body})
	if err != nil {
		var uerr *usecase.Error
		reason := "unexpected_error"
		if errors.As(err, &uerr) {
			reason = uerr.Reason
		}
		code := usecase.CodeOf(err)
		return h.fail(ctx, req, correlationID, statusFor(code), string(code), reason, err), nil
	}
	return jsonResponse(status, correlationID, out), nil
}

func (h *Handler) fail(ctx context.Context, req events.APIGatewayProxyRequest, correlationID string, status int, code, reason string, err error) events.APIGatewayProxyResponse {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "request failed",
		"correlationId", correlationID,
		"method", req.HTTPMethod,
		"path", req.Path,
		"status", status,
		"code", code,
		"reason", reason,
		"err", err,
	)
	return jsonResponse(status, correlationID, errorResponse{Error: code, Reason: reason})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorForbidden:
		return http.StatusForbidden
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorConflict:
		return http.StatusConflict
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR","reason":"response_encode_error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

func (r route) allow() string {
	methods := make([]string, 0, len(r.methods))
	for m := range r.methods {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
