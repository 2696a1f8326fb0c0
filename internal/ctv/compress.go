package ctv

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DefaultCompressionLevel is the zstd level used when none is configured.
const DefaultCompressionLevel = 3

// maxDecodedSize bounds the memory a single decompressed stream may use.
const maxDecodedSize = 1 << 32

// Encoders and the decoder are safe for concurrent EncodeAll/DecodeAll, so one
// instance per level is shared by every stream in the process.
var (
	zstdEncMu sync.Mutex
	zstdEncs  = map[zstd.EncoderLevel]*zstd.Encoder{}

	zstdDec = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(maxDecodedSize),
		)
	})
)

func zstdEncoder(level int) (*zstd.Encoder, error) {
	lvl := zstd.EncoderLevelFromZstd(level)

	zstdEncMu.Lock()
	defer zstdEncMu.Unlock()

	if enc, ok := zstdEncs[lvl]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
	if err != nil {
		return nil, err
	}
	zstdEncs[lvl] = enc
	return enc, nil
}

func compress(data []byte, level int) ([]byte, error) {
	enc, err := zstdEncoder(level)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
}

func decompress(blob []byte) ([]byte, error) {
	dec, err := zstdDec()
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	data, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return data, nil
}
