// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/warden/lib/codec"
	"github.com/bureau-foundation/warden/lib/router"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = 45 * time.Second
	maxResponseSize     = 16 * 1024 * 1024
)

// ServerError is returned by Client.Call when the daemon answers
// ok=false.
type ServerError struct {
	Action     string
	Message    string
	Denied     bool
	RetryAfter time.Duration
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("warden error on %q: %s", e.Action, e.Message)
}

// Client talks to a warden socket. Each Call opens a new connection.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends request, which must carry an "action" field, and decodes
// the response data into result when both are non-nil. A failure
// response is returned as *ServerError.
func (c *Client) Call(ctx context.Context, action string, request any, result any) error {
	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &ServerError{
			Action:     action,
			Message:    response.Error,
			Denied:     response.Denied,
			RetryAfter: response.RetryAfter,
		}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// CallMethod runs operation.method on the daemon. A failed execution
// is a Result with Success false and a nil error.
func (c *Client) CallMethod(ctx context.Context, request CallRequest) (*router.Result, error) {
	request.Action = ActionCall
	var result router.Result
	if err := c.Call(ctx, ActionCall, request, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status asks the daemon who it is and who it thinks the caller is.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	request := struct {
		Action string `cbor:"action"`
	}{ActionStatus}
	if err := c.Call(ctx, ActionStatus, request, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
