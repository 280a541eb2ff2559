// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/codec"
	"github.com/bureau-foundation/warden/lib/operation"
	"github.com/bureau-foundation/warden/lib/policy"
	"github.com/bureau-foundation/warden/lib/router"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer serves s in the background and stops it at cleanup.
func startServer(t *testing.T, s *Server) {
	t.Helper()
	listener, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
}

func newTestServer(t *testing.T, uid int) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "warden.sock")
	s := NewServer(socketPath, testLogger())
	s.credentials = func(net.Conn) (Peer, error) { return Peer{PID: 1, UID: uid, GID: uid}, nil }
	return s, socketPath
}

func newTestRouter(t *testing.T, rules ...policy.Rule) *router.Router {
	t.Helper()
	ctx := context.Background()
	engine, err := policy.NewEngine(ctx, policy.Config{Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	for _, rule := range rules {
		if _, err := engine.CreateSupply(ctx, rule); err != nil {
			t.Fatalf("CreateSupply: %v", err)
		}
	}

	registry := operation.NewRegistry()
	registry.Register("plan", "get", "", func(_ context.Context, params map[string]any) (any, error) {
		id, err := operation.String(params, "id")
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "state": "open"}, nil
	})
	registry.Register("plan", "delete", "", func(context.Context, map[string]any) (any, error) {
		return nil, operation.NotFound("no such plan")
	})

	r, err := router.New(router.Config{Policy: engine, Executor: registry, Logger: testLogger()})
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}
	return r
}

// ownerOnly lets uid 1000 through on the socket and nobody else.
var ownerOnly = policy.Rule{
	ID:            "local-owner",
	Name:          "local owner",
	Priority:      900,
	CallerClasses: []callctx.CallerClass{callctx.CallerUser},
	EntryPoints:   []callctx.EntryPoint{callctx.EntryIPC},
	Condition:     `caller == "uid:1000"`,
	Action:        policy.ActionAllow,
}

func TestCallAction(t *testing.T) {
	s, socketPath := newTestServer(t, 1000)
	s.Handle(ActionCall, CallAction(newTestRouter(t, ownerOnly)))
	startServer(t, s)

	client := NewClient(socketPath)
	result, err := client.CallMethod(context.Background(), CallRequest{
		Operation: "plan",
		Method:    "get",
		Params:    map[string]any{"id": "p-1"},
	})
	if err != nil {
		t.Fatalf("CallMethod: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	value, ok := result.Value.(map[string]any)
	if !ok || value["id"] != "p-1" {
		t.Errorf("Value = %#v", result.Value)
	}
	if result.RequestID == "" {
		t.Error("RequestID is empty")
	}
}

func TestCallAction_ExecutionFailure(t *testing.T) {
	s, socketPath := newTestServer(t, 1000)
	s.Handle(ActionCall, CallAction(newTestRouter(t, ownerOnly)))
	startServer(t, s)

	result, err := NewClient(socketPath).CallMethod(context.Background(), CallRequest{Operation: "plan", Method: "delete"})
	if err != nil {
		t.Fatalf("CallMethod: %v", err)
	}
	if result.Success {
		t.Fatal("expected failed execution")
	}
	if result.Category != operation.CategoryNotFound {
		t.Errorf("Category = %q, want %q", result.Category, operation.CategoryNotFound)
	}
}

func TestCallAction_DeniedForOtherUser(t *testing.T) {
	s, socketPath := newTestServer(t, 2000)
	s.Handle(ActionCall, CallAction(newTestRouter(t, ownerOnly)))
	startServer(t, s)

	_, err := NewClient(socketPath).CallMethod(context.Background(), CallRequest{
		Operation: "plan",
		Method:    "get",
		Params:    map[string]any{"id": "p-1"},
	})
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("err = %v, want *ServerError", err)
	}
	if !serverErr.Denied {
		t.Errorf("Denied = false for %q", serverErr.Message)
	}
}

func TestCallAction_RateLimitedCarriesRetryAfter(t *testing.T) {
	limit := policy.Rule{
		ID:       "limit",
		Name:     "limit",
		Priority: 1000,
		Action:   policy.ActionRateLimit,
		RateLimit: &policy.RateLimit{
			Window: time.Minute,
			Max:    1,
			Key:    policy.KeyCaller,
		},
	}
	s, socketPath := newTestServer(t, 1000)
	s.Handle(ActionCall, CallAction(newTestRouter(t, limit, ownerOnly)))
	startServer(t, s)

	client := NewClient(socketPath)
	request := CallRequest{Operation: "plan", Method: "get", Params: map[string]any{"id": "p-1"}}
	if _, err := client.CallMethod(context.Background(), request); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := client.CallMethod(context.Background(), request)
	var serverErr *ServerError
	if !errors.As(err, &serverErr) || !serverErr.Denied {
		t.Fatalf("second call err = %v, want denial", err)
	}
	if serverErr.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", serverErr.RetryAfter)
	}
}

func TestServer_ProtocolErrors(t *testing.T) {
	s, socketPath := newTestServer(t, 1000)
	s.Handle("echo", func(_ context.Context, peer Peer, raw []byte) (any, error) {
		var request struct {
			Text string `cbor:"text"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return map[string]string{"text": request.Text, "caller": peer.ID()}, nil
	})
	startServer(t, s)
	client := NewClient(socketPath)

	tests := []struct {
		name    string
		request any
		message string
	}{
		{"missing action", map[string]any{"text": "x"}, "missing required field: action"},
		{"unknown action", map[string]any{"action": "nope"}, `unknown action "nope"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Call(context.Background(), "test", tt.request, nil)
			var serverErr *ServerError
			if !errors.As(err, &serverErr) {
				t.Fatalf("err = %v, want *ServerError", err)
			}
			if serverErr.Message != tt.message {
				t.Errorf("Message = %q, want %q", serverErr.Message, tt.message)
			}
			if serverErr.Denied {
				t.Error("protocol error marked as denial")
			}
		})
	}

	var echoed map[string]string
	if err := client.Call(context.Background(), "echo", map[string]any{"action": "echo", "text": "hi"}, &echoed); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if echoed["text"] != "hi" || echoed["caller"] != "uid:1000" {
		t.Errorf("echo = %v", echoed)
	}
}

func TestServer_RejectsUnidentifiedPeer(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "warden.sock")
	s := NewServer(socketPath, testLogger())
	s.credentials = func(net.Conn) (Peer, error) { return Peer{}, errors.New("no credentials") }
	called := false
	s.Handle("echo", func(context.Context, Peer, []byte) (any, error) {
		called = true
		return nil, nil
	})
	startServer(t, s)

	err := NewClient(socketPath).Call(context.Background(), "echo", map[string]any{"action": "echo"}, nil)
	if err == nil {
		t.Fatal("expected an error for an unidentified peer")
	}
	if called {
		t.Error("handler ran for an unidentified peer")
	}
}

func TestServer_DuplicateHandlePanics(t *testing.T) {
	s := NewServer(filepath.Join(t.TempDir(), "warden.sock"), testLogger())
	s.Handle("echo", func(context.Context, Peer, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate action")
		}
	}()
	s.Handle("echo", func(context.Context, Peer, []byte) (any, error) { return nil, nil })
}
