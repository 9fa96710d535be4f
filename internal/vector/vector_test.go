package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	t.Run("identical vectors score 1", func(t *testing.T) {
		v := []float64{1, 2, 3}
		assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
	})

	t.Run("orthogonal vectors score 0", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}))
	})

	t.Run("mismatched lengths score 0", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine([]float64{1, 2}, []float64{1}))
	})

	t.Run("zero vector scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
	})
}

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := NewHashingEmbedder()
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"5 years of Go and Kubernetes"})
	require.NoError(t, err)
	second, err := e.Embed(ctx, []string{"5 years of Go and Kubernetes"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHashingEmbedderSimilarity(t *testing.T) {
	e := NewHashingEmbedder()
	ctx := context.Background()

	vecs, err := e.Embed(ctx, []string{
		"aws cloud infrastructure experience",
		"experience with aws cloud deployments",
		"oil painting and watercolor portraits",
	})
	require.NoError(t, err)

	related := Cosine(vecs[0], vecs[1])
	unrelated := Cosine(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
	assert.Less(t, unrelated, 0.3)
}

func TestTokenize(t *testing.T) {
	toks := Tokenize("Node.js, C++ and Go (3 years)!")
	assert.Equal(t, []string{"node.js", "c++", "and", "go", "3", "years"}, toks)
}
