// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/operation"
	"github.com/bureau-foundation/warden/lib/router"
)

// Request headers that describe the caller.
const (
	HeaderCaller       = "X-Warden-Caller"
	HeaderCallerClass  = "X-Warden-Caller-Class"
	HeaderTopic        = "X-Warden-Topic"
	HeaderConversation = "X-Warden-Conversation"
	HeaderRequestID    = "X-Warden-Request-Id"
)

// maxBodySize bounds a call's JSON parameters.
const maxBodySize = 1 << 20

// Router is the part of *router.Router the handler needs.
type Router interface {
	CreateContext(options callctx.Options) (callctx.RequestContext, error)
	Call(ctx context.Context, rc callctx.RequestContext, op, method string, params map[string]any) (*router.Result, error)
}

// errorBody is the response for requests that never reached a method.
type errorBody struct {
	Error      string `json:"error"`
	Denied     bool   `json:"denied,omitempty"`
	RetryAfter string `json:"retry_after,omitempty"`
}

type handler struct {
	router Router
	logger *slog.Logger
}

// NewHandler returns the chi router serving the API.
func NewHandler(r Router, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{router: r, logger: logger}

	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Route("/v1", func(v1 chi.Router) {
		v1.Post("/call/{operation}/{method}", h.call)
		v1.Get("/audit", h.audit)
		v1.Get("/supplies", h.supplies)
	})
	return mux
}

func (h *handler) call(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "operation")
	method := chi.URLParam(r, "method")

	var params map[string]any
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "reading body: " + err.Error()})
		return
	}
	if len(body) > maxBodySize {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "body must be a JSON object: " + err.Error()})
			return
		}
	}
	h.dispatch(w, r, op, method, params)
}

func (h *handler) audit(w http.ResponseWriter, r *http.Request) {
	params, err := auditParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	h.dispatch(w, r, "audit", "query", params)
}

func (h *handler) supplies(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "policy", "list", nil)
}

// dispatch builds the request context from headers and runs the call.
func (h *handler) dispatch(w http.ResponseWriter, r *http.Request, op, method string, params map[string]any) {
	options, err := callerOptions(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
		return
	}
	rc, err := h.router.CreateContext(options)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	w.Header().Set(HeaderRequestID, rc.RequestID())

	result, err := h.router.Call(r.Context(), rc, op, method, params)
	if err != nil {
		var denied *router.PolicyDeniedError
		if !errors.As(err, &denied) {
			h.logger.Error("http call failed", "request", rc, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		status := http.StatusForbidden
		response := errorBody{Error: err.Error(), Denied: true}
		if retryAfter := denied.RetryAfter(); retryAfter > 0 {
			status = http.StatusTooManyRequests
			response.RetryAfter = retryAfter.String()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		}
		writeJSON(w, status, response)
		return
	}

	writeJSON(w, statusFor(result), result)
}

func callerOptions(r *http.Request) (callctx.Options, error) {
	caller := strings.TrimSpace(r.Header.Get(HeaderCaller))
	if caller == "" {
		return callctx.Options{}, fmt.Errorf("%s header is required", HeaderCaller)
	}
	class := callctx.CallerAgent
	switch value := callctx.CallerClass(r.Header.Get(HeaderCallerClass)); value {
	case "":
	case callctx.CallerUser, callctx.CallerAgent:
		class = value
	default:
		return callctx.Options{}, fmt.Errorf("%s must be %q or %q", HeaderCallerClass, callctx.CallerUser, callctx.CallerAgent)
	}
	return callctx.Options{
		CallerID:       caller,
		CallerClass:    class,
		EntryPoint:     callctx.EntryHTTP,
		TopicID:        r.Header.Get(HeaderTopic),
		ConversationID: r.Header.Get(HeaderConversation),
	}, nil
}

// auditParams converts query parameters to audit.query params.
func auditParams(r *http.Request) (map[string]any, error) {
	query := r.URL.Query()
	params := map[string]any{}
	for _, key := range []string{"request_id", "caller", "operation", "method", "scope"} {
		if value := query.Get(key); value != "" {
			params[key] = value
		}
	}
	for _, key := range []string{"since", "until"} {
		if value := query.Get(key); value != "" {
			if _, err := time.Parse(time.RFC3339Nano, value); err != nil {
				return nil, fmt.Errorf("%s must be an RFC 3339 time: %w", key, err)
			}
			params[key] = value
		}
	}
	if value := query.Get("allowed"); value != "" {
		allowed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("allowed must be true or false")
		}
		params["allowed"] = allowed
	}
	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 1 {
			return nil, fmt.Errorf("limit must be a positive integer")
		}
		params["limit"] = limit
	}
	return params, nil
}

// statusFor maps a Result to its HTTP status.
func statusFor(result *router.Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Category {
	case operation.CategoryValidation:
		return http.StatusBadRequest
	case operation.CategoryNotFound:
		return http.StatusNotFound
	case operation.CategoryForbidden:
		return http.StatusForbidden
	case operation.CategoryConflict:
		return http.StatusConflict
	case operation.CategoryTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}
