// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/codec"
	"github.com/bureau-foundation/warden/lib/router"
)

// Router is the part of *router.Router the socket needs.
type Router interface {
	CreateContext(options callctx.Options) (callctx.RequestContext, error)
	Call(ctx context.Context, rc callctx.RequestContext, op, method string, params map[string]any) (*router.Result, error)
}

// CallAction returns the handler for [ActionCall]. The data of a
// successful response is the *router.Result, including failed
// executions; a denial is an error response.
func CallAction(r Router) ActionFunc {
	return func(ctx context.Context, peer Peer, raw []byte) (any, error) {
		var request CallRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid call request: %w", err)
		}
		if request.Operation == "" || request.Method == "" {
			return nil, fmt.Errorf("call request needs operation and method")
		}

		rc, err := r.CreateContext(callctx.Options{
			CallerID:       peer.ID(),
			CallerClass:    callctx.CallerUser,
			EntryPoint:     callctx.EntryIPC,
			TopicID:        request.TopicID,
			ConversationID: request.ConversationID,
		})
		if err != nil {
			return nil, err
		}
		return r.Call(ctx, rc, request.Operation, request.Method, request.Params)
	}
}
