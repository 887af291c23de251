package vector

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/bochiedev/tulia-retrieval/internal/text"
)

// HashingEmbedder produces deterministic embeddings by feature-hashing
// terms into a fixed number of buckets. It has no notion of semantics
// beyond shared vocabulary, which is enough for the in-process backend;
// deployments wanting real semantic recall run the chroma backend, where
// the collection embeds server-side.
type HashingEmbedder struct {
	dims int
}

func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashingEmbedder{dims: dims}
}

func (h *HashingEmbedder) Embed(_ context.Context, input string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, term := range text.Terms(input) {
		hasher := fnv.New32a()
		hasher.Write([]byte(term))
		sum := hasher.Sum32()
		bucket := int(sum % uint32(h.dims))
		// The high bit decides sign so colliding terms do not always
		// reinforce each other.
		if sum&0x80000000 != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
