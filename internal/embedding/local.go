package embedding

import (
	"context"
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"
)

// LocalProvider is a deterministic, dependency-free Provider used when
// embedding.provider=local. It hashes text into a fixed-dimension unit
// vector so retrieval and pattern code have something to score against
// without requiring network access to a real embedding model.
type LocalProvider struct {
	dim int
}

// NewLocalProvider creates a LocalProvider of the given dimension,
// which must be one of the supported embedding dimensions.
func NewLocalProvider(dim int) *LocalProvider {
	return &LocalProvider{dim: dim}
}

func (p *LocalProvider) Dimension() int { return p.dim }

// Embed hashes text through blake2b repeatedly, expanding the digest
// into p.dim float32 components normalized to unit length.
func (p *LocalProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dim)
	seed := []byte(text)
	var sum float64

	for i := 0; i < p.dim; i += 32 {
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, err
		}
		h.Write(seed)
		h.Write(encodeUint32(uint32(i)))
		digest := h.Sum(nil)

		for j := 0; j < 32 && i+j < p.dim; j++ {
			v := float32(digest[j]) / 255.0
			vec[i+j] = v
			sum += float64(v) * float64(v)
		}
	}

	if sum > 0 {
		norm := float32(1.0 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec, nil
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
