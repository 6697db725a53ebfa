package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"mentorgraph/internal/domain"
	"mentorgraph/internal/usecase"
)

type stubService struct {
	err error

	profile     domain.Profile
	profileIn   usecase.CreateProfileInput
	wallet      string
	skill       string
	postings    usecase.PostingFilter
	sessionIn   usecase.RequestSessionInput
	sessionKey  string
	sessionF    usecase.SessionFilter
	reason      string
	feedbackIn  usecase.CreateFeedbackInput
	feedbackF   usecase.FeedbackFilter
	trustIn     usecase.CreateTrustEdgeInput
	trustF      usecase.TrustEdgeFilter
	sessions    []domain.Session
	lastInvoked string
}

func (s *stubService) SpaceID() string { return "test-space" }

func (s *stubService) CreateProfile(_ context.Context, in usecase.CreateProfileInput) (domain.Profile, error) {
	s.lastInvoked, s.profileIn = "CreateProfile", in
	return s.profile, s.err
}

func (s *stubService) GetProfile(_ context.Context, wallet string) (domain.Profile, error) {
	s.lastInvoked, s.wallet = "GetProfile", wallet
	return s.profile, s.err
}

func (s *stubService) ListProfiles(_ context.Context, skill string) ([]domain.Profile, error) {
	s.lastInvoked, s.skill = "ListProfiles", skill
	return nil, s.err
}

func (s *stubService) CreateAsk(_ context.Context, in usecase.CreateAskInput) (domain.Ask, error) {
	s.lastInvoked = "CreateAsk"
	return domain.Ask{Wallet: in.Wallet, Skill: in.Skill}, s.err
}

func (s *stubService) ListAsks(_ context.Context, f usecase.PostingFilter) ([]domain.Ask, error) {
	s.lastInvoked, s.postings = "ListAsks", f
	return []domain.Ask{{Key: "0x1"}}, s.err
}

func (s *stubService) CreateOffer(_ context.Context, in usecase.CreateOfferInput) (domain.Offer, error) {
	s.lastInvoked = "CreateOffer"
	return domain.Offer{Wallet: in.Wallet}, s.err
}

func (s *stubService) ListOffers(_ context.Context, f usecase.PostingFilter) ([]domain.Offer, error) {
	s.lastInvoked, s.postings = "ListOffers", f
	return nil, s.err
}

func (s *stubService) RequestSession(_ context.Context, in usecase.RequestSessionInput) (domain.Session, error) {
	s.lastInvoked, s.sessionIn = "RequestSession", in
	return domain.Session{Key: "0xs", Status: domain.SessionPending}, s.err
}

func (s *stubService) GetSession(_ context.Context, key string) (domain.Session, error) {
	s.lastInvoked, s.sessionKey = "GetSession", key
	return domain.Session{Key: key}, s.err
}

func (s *stubService) ListSessions(_ context.Context, f usecase.SessionFilter) ([]domain.Session, error) {
	s.lastInvoked, s.sessionF = "ListSessions", f
	return s.sessions, s.err
}

func (s *stubService) ConfirmSession(_ context.Context, key, wallet string) (domain.Session, error) {
	s.lastInvoked, s.sessionKey, s.wallet = "ConfirmSession", key, wallet
	return domain.Session{Key: key, Status: domain.SessionScheduled}, s.err
}

func (s *stubService) RejectSession(_ context.Context, key, wallet, reason string) (domain.Session, error) {
	s.lastInvoked, s.sessionKey, s.wallet, s.reason = "RejectSession", key, wallet, reason
	return domain.Session{Key: key, Status: domain.SessionDeclined}, s.err
}

func (s *stubService) CreateFeedback(_ context.Context, in usecase.CreateFeedbackInput) (domain.Feedback, error) {
	s.lastInvoked, s.feedbackIn = "CreateFeedback", in
	return domain.Feedback{Rating: in.Rating}, s.err
}

func (s *stubService) ListFeedback(_ context.Context, f usecase.FeedbackFilter) ([]domain.Feedback, error) {
	s.lastInvoked, s.feedbackF = "ListFeedback", f
	return nil, s.err
}

func (s *stubService) CreateTrustEdge(_ context.Context, in usecase.CreateTrustEdgeInput) (domain.TrustEdge, error) {
	s.lastInvoked, s.trustIn = "CreateTrustEdge", in
	return domain.TrustEdge{Strength: in.Strength}, s.err
}

func (s *stubService) ListTrustEdges(_ context.Context, f usecase.TrustEdgeFilter) ([]domain.TrustEdge, error) {
	s.lastInvoked, s.trustF = "ListTrustEdges", f
	return nil, s.err
}

func (s *stubService) ListMatches(_ context.Context, skill string) ([]domain.Match, error) {
	s.lastInvoked, s.skill = "ListMatches", skill
	return nil, s.err
}

func (s *stubService) GetDashboard(_ context.Context, wallet string) (domain.Dashboard, error) {
	s.lastInvoked, s.wallet = "GetDashboard", wallet
	return domain.Dashboard{Wallet: wallet}, s.err
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, svc *stubService) *Handler {
	t.Helper()
	h, err := NewHandler(svc)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_Health(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/health", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])

	out := parseBody[healthResponse](t, resp.Body)
	require.Equal(t, "ok", out.Status)
	require.Equal(t, "test-space", out.SpaceID)
}

func TestHandle_CreateProfile(t *testing.T) {
	orig := newCorrelationID
	newCorrelationID = func() string { return "generated-id" }
	t.Cleanup(func() { newCorrelationID = orig })

	svc := &stubService{profile: domain.Profile{Wallet: "0xabc", DisplayName: "Ada"}}
	h := newTestHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/profiles", `{"wallet":"0xabc","displayName":"Ada","skills":["go"]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "generated-id", resp.Headers["X-Correlation-Id"])
	require.Equal(t, usecase.CreateProfileInput{Wallet: "0xabc", DisplayName: "Ada", Skills: []string{"go"}}, svc.profileIn)

	out := parseBody[domain.Profile](t, resp.Body)
	require.Equal(t, "Ada", out.DisplayName)
}

func TestHandle_InvalidBody(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	cases := map[string]string{
		"not-json": "invalid_json",
		"":         "empty_body",
		"  ":       "empty_body",
	}
	for body, reason := range cases {
		resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/asks", body))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		out := parseBody[errorResponse](t, resp.Body)
		require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
		require.Equal(t, reason, out.Reason)
	}
}

func TestHandle_Base64Body(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	event := makeEvent(http.MethodPost, "/trust-edges", base64.StdEncoding.EncodeToString([]byte(`{"fromWallet":"0x1","toWallet":"0x2","strength":30}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, 30, svc.trustIn.Strength)

	event.Body = "%%%"
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_body", parseBody[errorResponse](t, resp.Body).Reason)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		reason string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_skill"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput), reason: "empty_skill"},
		{name: "forbidden", err: &usecase.Error{Code: usecase.ErrorForbidden, Reason: "not_a_participant"}, status: http.StatusForbidden, code: string(usecase.ErrorForbidden), reason: "not_a_participant"},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "session_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound), reason: "session_not_found"},
		{name: "conflict", err: &usecase.Error{Code: usecase.ErrorConflict, Reason: "session_declined"}, status: http.StatusConflict, code: string(usecase.ErrorConflict), reason: "session_declined"},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "too_many_requests"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited), reason: "too_many_requests"},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "ledger_query_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream), reason: "ledger_query_error"},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "payload_encode_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal), reason: "payload_encode_error"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal), reason: "unexpected_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{err: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/sessions", ""))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, tc.reason, out.Reason)
			require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	event := makeEvent(http.MethodGet, "/health", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_UnknownRouteAndMethod(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, errorResponse{Error: "NOT_FOUND", Reason: "route_not_found"}, parseBody[errorResponse](t, resp.Body))

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodDelete, "/asks", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, "METHOD_NOT_ALLOWED", parseBody[errorResponse](t, resp.Body).Error)
	require.Equal(t, "GET, POST", resp.Headers["Allow"])
}

func TestHandle_PathParameters(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	// raw path matching
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/sessions/0xkey/reject", `{"wallet":"0xw","reason":"busy"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "RejectSession", svc.lastInvoked)
	require.Equal(t, "0xkey", svc.sessionKey)
	require.Equal(t, "busy", svc.reason)

	// API Gateway resource template
	event := makeEvent(http.MethodPost, "/prod/sessions/0xother/confirm", `{"wallet":"0xw"}`)
	event.Resource = ResourceSessionConfirm
	event.PathParameters = map[string]string{"key": "0xother"}
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ConfirmSession", svc.lastInvoked)
	require.Equal(t, "0xother", svc.sessionKey)
	require.Equal(t, domain.SessionScheduled, parseBody[domain.Session](t, resp.Body).Status)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/me/0xdash", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "0xdash", svc.wallet)
}

func TestHandle_ListQueryParameters(t *testing.T) {
	svc := &stubService{sessions: []domain.Session{{Key: "0x1"}, {Key: "0x2"}}}
	h := newTestHandler(t, svc)

	event := makeEvent(http.MethodGet, "/sessions", "")
	event.QueryStringParameters = map[string]string{"wallet": "0xw", "status": "Scheduled"}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.SessionFilter{Wallet: "0xw", Status: domain.SessionScheduled}, svc.sessionF)

	out := parseBody[listResponse[domain.Session]](t, resp.Body)
	require.Equal(t, 2, out.Count)
	require.Len(t, out.Items, 2)

	event = makeEvent(http.MethodGet, "/offers", "")
	event.QueryStringParameters = map[string]string{"skill": "go"}
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, `{"items":[],"count":0}`, resp.Body)
	require.Equal(t, usecase.PostingFilter{Skill: "go"}, svc.postings)
}
