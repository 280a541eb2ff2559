// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// ContentID is the BLAKE3 keyed hash of a blob.
type ContentID [32]byte

// objectDomainKey separates object ids from any other BLAKE3 use of
// the same bytes. Changing it changes every id.
var objectDomainKey = [32]byte{
	'w', 'a', 'r', 'd', 'e', 'n', '.', 'o', 'b', 'j', 'e', 'c', 't', 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Hash returns the ContentID of data.
func Hash(data []byte) ContentID {
	hasher, err := blake3.NewKeyed(objectDomainKey[:])
	if err != nil {
		panic("objectstore: BLAKE3 keyed hasher: " + err.Error())
	}
	hasher.Write(data)
	var id ContentID
	copy(id[:], hasher.Sum(nil))
	return id
}

// String returns the lowercase hex form.
func (id ContentID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether id is unset.
func (id ContentID) IsZero() bool { return id == ContentID{} }

// MarshalText encodes the id as hex, so ids are strings in JSON and
// CBOR.
func (id ContentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText parses the hex form.
func (id *ContentID) UnmarshalText(text []byte) error {
	parsed, err := ParseContentID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseContentID parses a 64-character hex id.
func ParseContentID(text string) (ContentID, error) {
	var id ContentID
	if len(text) != hex.EncodedLen(len(id)) {
		return id, fmt.Errorf("content id %q: want %d hex characters", text, hex.EncodedLen(len(id)))
	}
	if _, err := hex.Decode(id[:], []byte(text)); err != nil {
		return id, fmt.Errorf("content id %q: %w", text, err)
	}
	return id, nil
}
