package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"mentorgraph/internal/domain"
	"mentorgraph/internal/usecase"
)

// Resources served by the API. The local server registers the same templates.
const (
	ResourceHealth         = "/health"
	ResourceProfiles       = "/profiles"
	ResourceProfile        = "/profiles/{wallet}"
	ResourceAsks           = "/asks"
	ResourceOffers         = "/offers"
	ResourceSessions       = "/sessions"
	ResourceSession        = "/sessions/{key}"
	ResourceSessionConfirm = "/sessions/{key}/confirm"
	ResourceSessionReject  = "/sessions/{key}/reject"
	ResourceFeedback       = "/feedback"
	ResourceTrustEdges     = "/trust-edges"
	ResourceMatches        = "/matches"
	ResourceDashboard      = "/me/{wallet}"
)

type operation func(ctx context.Context, c call) (int, any, error)

type route struct {
	template string
	segments []string
	methods  map[string]operation
}

// call carries the parsed parts of a request to an operation.
type call struct {
	params map[string]string
	query  map[string]string
	body   []byte
}

func (c call) decode(v any) error {
	if len(strings.TrimSpace(string(c.body))) == 0 {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_body"}
	}
	if err := json.Unmarshal(c.body, v); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err}
	}
	return nil
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func list[T any](items []T, err error) (int, any, error) {
	if err != nil {
		return 0, nil, err
	}
	if items == nil {
		items = []T{}
	}
	return http.StatusOK, listResponse[T]{Items: items, Count: len(items)}, nil
}

func one[T any](status int) func(T, error) (int, any, error) {
	return func(v T, err error) (int, any, error) {
		if err != nil {
			return 0, nil, err
		}
		return status, v, nil
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	SpaceID string `json:"spaceId"`
}

type confirmRequest struct {
	Wallet string `json:"wallet"`
}

type rejectRequest struct {
	Wallet string `json:"wallet"`
	Reason string `json:"reason"`
}

// Resources lists every resource template the handler serves.
func Resources() []string {
	return []string{
		ResourceHealth, ResourceProfiles, ResourceProfile, ResourceAsks, ResourceOffers,
		ResourceSessions, ResourceSession, ResourceSessionConfirm, ResourceSessionReject,
		ResourceFeedback, ResourceTrustEdges, ResourceMatches, ResourceDashboard,
	}
}

func (h *Handler) buildRoutes() []route {
	ops := map[string]map[string]operation{
		ResourceHealth: {
			http.MethodGet: func(context.Context, call) (int, any, error) {
				return http.StatusOK, healthResponse{Status: "ok", SpaceID: h.svc.SpaceID()}, nil
			},
		},
		ResourceProfiles: {
			http.MethodPost: func(ctx context.Context, c call) (int, any, error) {
				var in usecase.CreateProfileInput
				if err := c.decode(&in); err != nil {
					return 0, nil, err
				}
				return one[domain.Profile](http.StatusCreated)(h.svc.CreateProfile(ctx, in))
			},
			http.MethodGet: func(ctx context.Context, c call) (int, any, error) {
				return list[domain.Profile](h.svc.ListProfiles(ctx, c.query["skill"]))
			},
		},
		ResourceProfile: {
			http.MethodGet: func(ctx context.Context, c call) (int, any, error) {
				return one[domain.Profile](http.StatusOK)(h.svc.GetProfile(ctx, c.params["wallet"]))
			},
		},
		ResourceAsks: {
			http.MethodPost: func(ctx context.Context, c call) (int, any, error) {
				var in usecase.CreateAskInput
				if err := c.decode(&in); err != nil {
					return 0, nil, err
				}
				return one[domain.Ask](http.StatusCreated)(h.svc.CreateAsk(ctx, in))
			},
			http.MethodGet: func(ctx context.Context, c call) (int, any, error) {
				return list[domain.Ask](h.svc.ListAsks(ctx, usecase.PostingFilter{Wallet: c.query["wallet"], Skill: c.query["skill"]}))
			},
		},
		ResourceOffers: {
			http.MethodPost: func(ctx context.Context, c call) (int, any, error) {
				var in usecase.CreateOfferInput
				if err := c.decode(&in); err != nil {
					return 0, nil, err
				}
				return one[domain.Offer](http.StatusCreated)(h.svc.CreateOffer(ctx, in))
			},
			http.MethodGet: func(ctx context.Context, c call) (int, any, error) {
				return list[domain.Offer](h.svc.ListOffers(ctx, usecase.PostingFilter{Wallet: c.query["wallet"], Skill: c.query["skill"]}))
			},
		},
		ResourceSessions: {
			http.MethodPost: func(ctx context.Context, c call) (int, any, error) {
				var in usecase.RequestSessionInput
				if err := c.decode(&in); err != nil {
					return 0, nil, err
				}
				return one[domain.Session](http.StatusCreated)(h.svc.RequestSession(ctx, in))
			},
			http.MethodGet: func(ctx context.Context, c call) (int, any, error) {
				f := usecase.SessionFilter{Wallet: c.query["wallet"], Status: domain.SessionStatus(strings.ToLower(c.query["status"]))}
				return list[domain.Session](h.svc.ListSessions(ctx, f))
			},
		},
		ResourceSession: {
			http.MethodGet: func(ctx context.Context, c call) (int, any, error) {
				return one[domain.Session](http.StatusOK)(h.svc.GetSession(ctx, c.params["key"]))
			},
		},
		ResourceSessionConfirm: {
			http.MethodPost: func(ctx context.Context, c call) (int, any, error) {
				var in confirmRequest
				if err := c.decode(&in); err != nil {
					return 0, nil, err
				}
				return one[domain.Session](http.StatusOK)(h.svc.ConfirmSession(ctx, c.params["key"], in.Wallet))
			},
		},
		ResourceSessionReject: {
			http.MethodPost: func(ctx context.Context, c call) (int, any, error) {
				var in rejectRequest
				if err := c.decode(&in); err != nil {
					return 0, nil, err
				}
				return one[domain.Session](http.StatusOK)(h.svc.RejectSession(ctx, c.params["key"], in.Wallet, in.Reason))
			},
		},
		ResourceFeedback: {
			http.MethodPost: func(ctx context.Context, c call) (int, any, error) {
				var in usecase.CreateFeedbackInput
				if err := c.decode(&in); err != nil {
					return 0, nil, err
				}
				return one[domain.Feedback](http.StatusCreated)(h.svc.CreateFeedback(ctx, in))
			},
			http.MethodGet: func(ctx context.Context, c call) (int, any, error) {
				return list[domain.Feedback](h.svc.ListFeedback(ctx, usecase.FeedbackFilter{SessionKey: c.query["sessionKey"], Wallet: c.query["wallet"]}))
			},
		},
		ResourceTrustEdges: {
			http.MethodPost: func(ctx context.Context, c call) (int, any, error) {
				var in usecase.CreateTrustEdgeInput
				if err := c.decode(&in); err != nil {
					return 0, nil, err
				}
				return one[domain.TrustEdge](http.StatusCreated)(h.svc.CreateTrustEdge(ctx, in))
			},
			http.MethodGet: func(ctx context.Context, c call) (int, any, error) {
				return list[domain.TrustEdge](h.svc.ListTrustEdges(ctx, usecase.TrustEdgeFilter{Wallet: c.query["wallet"], Direction: c.query["direction"]}))
			},
		},
		ResourceMatches: {
			http.MethodGet: func(ctx context.Context, c call) (int, any, error) {
				return list[domain.Match](h.svc.ListMatches(ctx, c.query["skill"]))
			},
		},
		ResourceDashboard: {
			http.MethodGet: func(ctx context.Context, c call) (int, any, error) {
				return one[domain.Dashboard](http.StatusOK)(h.svc.GetDashboard(ctx, c.params["wallet"]))
			},
		},
	}

	routes := make([]route, 0, len(ops))
	for _, tmpl := range Resources() {
		routes = append(routes, route{template: tmpl, segments: splitPath(tmpl), methods: ops[tmpl]})
	}
	return routes
}

// match finds the route for a request. API Gateway supplies the resource
// template and path parameters; otherwise the raw path is matched segment by
// segment.
func (h *Handler) match(resource, path string, pathParams map[string]string) (route, map[string]string, bool) {
	for _, rt := range h.routes {
		if resource != "" && rt.template == resource {
			if pathParams == nil {
				pathParams = map[string]string{}
			}
			return rt, pathParams, true
		}
	}
	segments := splitPath(path)
	for _, rt := range h.routes {
		if params, ok := matchSegments(rt.segments, segments); ok {
			return rt, params, true
		}
	}
	return route{}, nil, false
}

func matchSegments(tmpl, path []string) (map[string]string, bool) {
	if len(tmpl) != len(path) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range tmpl {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if path[i] == "" {
				return nil, false
			}
			params[strings.Trim(seg, "{}")] = path[i]
			continue
		}
		if seg != path[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
