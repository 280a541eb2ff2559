// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/warden/lib/ipc"
	"github.com/bureau-foundation/warden/lib/operation"
)

func TestStartServesSocket(t *testing.T) {
	// Unix socket paths are length-limited; t.TempDir can exceed it.
	dir, err := os.MkdirTemp("", "warden")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := testConfig(t, "warden-a")
	cfg.Socket.Path = filepath.Join(dir, "run", "warden.sock")
	s := newTestServices(t, cfg, serviceOptions{})

	stop, failed, err := s.start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stop()

	client := ipc.NewClient(cfg.Socket.Path)
	ctx := context.Background()

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	caller := fmt.Sprintf("uid:%d", os.Getuid())
	if status.Identity != "warden-a" || status.Caller != caller {
		t.Errorf("status = %+v, want identity warden-a and caller %s", status, caller)
	}

	// The process's own uid is the owner, so administration is allowed.
	result, err := client.CallMethod(ctx, ipc.CallRequest{Operation: "policy", Method: "list"})
	if err != nil {
		t.Fatalf("policy.list: %v", err)
	}
	if !result.Success {
		t.Fatalf("policy.list failed (%s): %s", result.Category, result.Error)
	}
	rules, ok := result.Value.([]any)
	if !ok || len(rules) != 1 {
		t.Errorf("policy.list value = %#v, want the owner rule", result.Value)
	}

	result, err = client.CallMethod(ctx, ipc.CallRequest{Operation: "nosuch", Method: "thing"})
	if err != nil {
		t.Fatalf("nosuch.thing: %v", err)
	}
	if result.Success || result.Category != operation.CategoryNotFound {
		t.Errorf("unknown method = %+v, want not_found", result)
	}

	select {
	case err := <-failed:
		t.Fatalf("component failed: %v", err)
	default:
	}
}
