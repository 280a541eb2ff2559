// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/warden/messaging"
)

// Dispatcher routes inbound envelopes to the components of one
// instance. Any component may be nil; envelopes for it are dropped.
type Dispatcher struct {
	Identity string
	Supplies *SupplyManager
	Demands  *DemandManager
	Client   *Client
	Server   *Server
	Logger   *slog.Logger
}

// Dispatch handles one envelope. It matches messaging.Handler.
func (d *Dispatcher) Dispatch(ctx context.Context, envelope messaging.Envelope) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if envelope.Sender == d.Identity {
		return
	}
	logger = logger.With("type", envelope.Type, "sender", envelope.Sender, "scope", envelope.ScopeID)

	var err error
	switch envelope.Type {
	case messaging.EnvelopeDemand:
		if d.Supplies == nil {
			return
		}
		var demand Demand
		if err = envelope.Decode(&demand); err == nil {
			if demand.Consumer != envelope.Sender {
				logger.Warn("dropping demand whose consumer is not its sender", "consumer", demand.Consumer)
				return
			}
			if demand.ScopeID == "" {
				demand.ScopeID = envelope.ScopeID
			}
			_, err = d.Supplies.HandleDemand(ctx, demand)
		}

	case messaging.EnvelopeCredential:
		if d.Demands == nil {
			return
		}
		var credential Credential
		if err = envelope.Decode(&credential); err == nil {
			if credential.Provider != envelope.Sender {
				logger.Warn("dropping credential not sent by its provider", "provider", credential.Provider)
				return
			}
			err = d.Demands.ReceiveCredential(ctx, credential)
		}

	case messaging.EnvelopeRequest:
		if d.Server == nil {
			return
		}
		var request Request
		if err = envelope.Decode(&request); err == nil {
			if request.ScopeID == "" {
				request.ScopeID = envelope.ScopeID
			}
			err = d.Server.HandleRequest(ctx, envelope.Sender, request)
		}

	case messaging.EnvelopeResponse:
		if d.Client == nil {
			return
		}
		var response Response
		if err = envelope.Decode(&response); err == nil {
			d.Client.HandleResponse(ctx, envelope.Sender, response)
		}

	default:
		logger.Warn("dropping envelope of unknown type")
		return
	}

	if err != nil {
		logger.Error("envelope handling failed", "error", err)
	}
}
