// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi is warden's HTTP entry point.
//
// Routes:
//
//	POST /v1/call/{operation}/{method}   JSON object body as params
//	GET  /v1/audit                       audit.query, filters as query params
//	GET  /v1/supplies                    policy.list
//	GET  /healthz                        liveness, no policy check
//
// Every route except /healthz is a router call with the http entry
// point, so policy decides what HTTP callers may do. The caller names
// itself with the X-Warden-Caller header and may pick the user or agent
// class with X-Warden-Caller-Class (default agent). Scope comes from
// X-Warden-Topic and X-Warden-Conversation. The response body is the
// router Result as JSON; its HTTP status reflects the failure category.
// A policy denial is 403, or 429 with Retry-After for a rate limit.
package httpapi
