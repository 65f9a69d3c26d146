package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// FakeEmbedder produces deterministic embeddings without calling a
// provider. The same text always yields the same unit vector, and
// distinct texts yield distinct vectors, which is enough for exercising
// storage, search ordering, and batch accounting in tests.
type FakeEmbedder struct {
	Dim int

	// Fixed pins exact vectors for chosen texts so tests can control
	// cosine similarity precisely. Vectors should be unit length.
	Fixed map[string][]float32

	// FailOn makes EmbedBatch return an error whenever the batch
	// contains this text. Empty means never fail.
	FailOn string

	// Calls records the size of each batch received, in order.
	Calls []int
}

// NewFakeEmbedder returns a fake embedder producing vectors of dim
// components.
func NewFakeEmbedder(dim int) *FakeEmbedder {
	return &FakeEmbedder{Dim: dim, Fixed: make(map[string][]float32)}
}

// EmbedBatch embeds every text in order, failing the whole batch when a
// poisoned text is present.
func (f *FakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.Calls = append(f.Calls, len(texts))
	if f.FailOn != "" {
		for _, t := range texts {
			if t == f.FailOn {
				return nil, fmt.Errorf("embedding rejected for %q", t)
			}
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

// Embed embeds a single text.
func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// vector derives a unit vector from the text hash.
func (f *FakeEmbedder) vector(text string) []float32 {
	if v, ok := f.Fixed[text]; ok {
		return v
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, f.Dim)
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed>>32)) / float32(math.MaxInt32)
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// UnitVector builds a dim-length unit vector pointing along axis. Tests
// use orthogonal axes to pin cosine similarities to exact values.
func UnitVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis%dim] = 1
	return v
}

// BlendVectors returns the normalised weighted sum of two unit vectors.
// The cosine similarity of the result against a is cos(theta) where the
// weights choose theta.
func BlendVectors(a, b []float32, wa, wb float64) []float32 {
	v := make([]float32, len(a))
	var norm float64
	for i := range v {
		v[i] = float32(wa*float64(a[i]) + wb*float64(b[i]))
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
