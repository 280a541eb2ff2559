// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential means no live credential covers the scope and
	// provider.
	ErrNoCredential = errors.New("no credential for scope and provider")

	// ErrToolNotAllowed means the credential exists but does not list
	// the tool.
	ErrToolNotAllowed = errors.New("tool not allowed by credential")

	// ErrTimeout means no response arrived before the call timeout.
	ErrTimeout = errors.New("remote call timed out")

	// ErrCancelled means the call was cancelled by CancelAllRequests.
	ErrCancelled = errors.New("remote call cancelled")

	// ErrCredentialNotFound is returned when revoking a credential that
	// was never issued or is already revoked.
	ErrCredentialNotFound = errors.New("credential not found")
)

// RemoteError is a failure reported by the provider before the tool
// ran, such as a policy denial or a missing credential.
type RemoteError struct {
	RequestID string
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote request %s failed: %s", e.RequestID, e.Message)
}
