// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/ipc"
	"github.com/bureau-foundation/warden/lib/process"
)

// daemonCall runs op.method on the daemon and decodes the value into
// result when result is non-nil. A policy denial exits with
// ExitDenied; a failed execution is an error carrying its category.
func (g *globalFlags) daemonCall(ctx context.Context, op, method string, params map[string]any, result any) error {
	socketPath, err := g.socket()
	if err != nil {
		return err
	}
	response, err := ipc.NewClient(socketPath).CallMethod(ctx, ipc.CallRequest{
		Operation: op,
		Method:    method,
		Params:    params,
	})
	if err != nil {
		return daemonError(err)
	}
	if !response.Success {
		return fmt.Errorf("%s.%s failed (%s): %s", op, method, response.Category, response.Error)
	}
	if result != nil {
		return cli.DecodeValue(response.Value, result)
	}
	return nil
}

// daemonError maps socket errors to exit codes.
func daemonError(err error) error {
	var serverErr *ipc.ServerError
	if errors.As(err, &serverErr) && serverErr.Denied {
		if serverErr.RetryAfter > 0 {
			return process.WithCode(process.ExitDenied,
				fmt.Errorf("%s (retry after %s)", serverErr.Message, serverErr.RetryAfter))
		}
		return process.WithCode(process.ExitDenied, errors.New(serverErr.Message))
	}
	return err
}

// emit writes value as JSON when --json is set and reports whether it
// did.
func (g *globalFlags) emit(value any) (bool, error) {
	if !g.jsonOutput {
		return false, nil
	}
	return true, cli.WriteJSON(os.Stdout, value)
}
