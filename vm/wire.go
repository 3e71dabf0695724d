package vm

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	cborEncMode cbor.EncMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create zstd decoder: %v", err))
	}
}

// MarshalDebugData serializes debug tables to canonical CBOR.
func MarshalDebugData(d *DebugData) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// UnmarshalDebugData deserializes debug tables from CBOR.
func UnmarshalDebugData(data []byte) (*DebugData, error) {
	var d DebugData
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("vm: unmarshal debug data: %w", err)
	}
	return &d, nil
}

// MarshalProgram serializes a compiled program to canonical CBOR.
func MarshalProgram(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// UnmarshalProgram deserializes a compiled program from CBOR.
func UnmarshalProgram(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("vm: unmarshal program: %w", err)
	}
	return &p, nil
}

// EncodeText packs v as CBOR, compresses it and returns base64 text suitable
// for embedding in generated artifacts.
func EncodeText(v any) (string, error) {
	data, err := cborEncMode.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("vm: encode: %w", err)
	}
	packed := zstdEncoder.EncodeAll(data, nil)
	return base64.StdEncoding.EncodeToString(packed), nil
}

// DecodeText reverses EncodeText into v.
func DecodeText(text string, v any) error {
	packed, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return fmt.Errorf("vm: decode base64: %w", err)
	}
	data, err := zstdDecoder.DecodeAll(packed, nil)
	if err != nil {
		return fmt.Errorf("vm: decompress: %w", err)
	}
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("vm: decode: %w", err)
	}
	return nil
}
