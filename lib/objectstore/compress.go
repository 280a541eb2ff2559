// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how blobs are stored. The values are written into
// every stored blob and must not change.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression maps a config name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// maxBlobSize bounds the decoded size a stored header may claim.
const maxBlobSize = 64 << 20

var errIncompressible = errors.New("incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("objectstore: zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxBlobSize))
	if err != nil {
		panic("objectstore: zstd decoder: " + err.Error())
	}
}

// EncodeBlob frames data for storage: one compression byte, the
// uncompressed length as a uvarint, then the payload. When compression
// would not shrink data it is stored uncompressed.
func EncodeBlob(data []byte, compression Compression) ([]byte, error) {
	payload, used, err := compress(data, compression)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload))
	blob = append(blob, byte(used))
	blob = binary.AppendUvarint(blob, uint64(len(data)))
	return append(blob, payload...), nil
}

// DecodeBlob reverses EncodeBlob.
func DecodeBlob(blob []byte) ([]byte, error) {
	if len(blob) < 2 {
		return nil, fmt.Errorf("blob too short: %d bytes", len(blob))
	}
	compression := Compression(blob[0])
	size, read := binary.Uvarint(blob[1:])
	if read <= 0 {
		return nil, fmt.Errorf("blob header: bad length")
	}
	if size > maxBlobSize {
		return nil, fmt.Errorf("blob header: length %d exceeds limit", size)
	}
	payload := blob[1+read:]

	switch compression {
	case CompressionNone:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("uncompressed blob: %d bytes, header says %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		data := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, data)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("lz4: got %d bytes, header says %d", n, size)
		}
		return data, nil
	case CompressionZstd:
		data, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		if uint64(len(data)) != size {
			return nil, fmt.Errorf("zstd: got %d bytes, header says %d", len(data), size)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("blob header: unknown compression %d", blob[0])
	}
}

func compress(data []byte, compression Compression) ([]byte, Compression, error) {
	var (
		payload []byte
		err     error
	)
	switch compression {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		payload, err = compressLZ4(data)
	case CompressionZstd:
		payload = zstdEncoder.EncodeAll(data, nil)
		if len(payload) >= len(data) {
			err = errIncompressible
		}
	default:
		return nil, 0, fmt.Errorf("unsupported compression %d", compression)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return payload, compression, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}
