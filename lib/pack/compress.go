// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how the tar stream of a pack is compressed.
type Compression uint8

const (
	// CompressionNone is a plain tar archive.
	CompressionNone Compression = iota

	// CompressionZstd compresses with zstd at the default level. Best
	// ratio for the JSON and NDJSON members a pack holds.
	CompressionZstd

	// CompressionLZ4 compresses as an LZ4 frame. Faster, larger.
	CompressionLZ4
)

// String returns the human-readable name of a compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression from its string
// representation.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown pack compression: %q", name)
	}
}

// Frame magic numbers, as they appear on the wire (little endian).
var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// detect identifies the compression of a pack from its first bytes.
func detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(data, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// zstdEncoder and zstdDecoder are reused across calls. The encoder is
// single-threaded so its output does not depend on scheduling.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("pack: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPackSize))
	if err != nil {
		panic("pack: zstd decoder initialization failed: " + err.Error())
	}
}

func compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil

	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil

	case CompressionLZ4:
		var buffer bytes.Buffer
		writer := lz4.NewWriter(&buffer)
		if err := writer.Apply(lz4.ConcurrencyOption(1), lz4.ChecksumOption(true)); err != nil {
			return nil, fmt.Errorf("lz4 options: %w", err)
		}
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buffer.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported pack compression: %d", compression)
	}
}

func decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return result, nil

	case CompressionLZ4:
		result, err := io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(data)), MaxPackSize+1))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if len(result) > MaxPackSize {
			return nil, fmt.Errorf("lz4 decompress: pack exceeds %d bytes", MaxPackSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported pack compression: %d", compression)
	}
}
