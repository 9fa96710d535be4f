package vector

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

const hashingDims = 256

// HashingEmbedder is a local, deterministic bag-of-tokens embedder. It is
// the fallback when no external embedding service is configured: weaker than
// a learned model but stable across runs, which the determinism guarantees
// of the pipeline require.
type HashingEmbedder struct{}

func NewHashingEmbedder() *HashingEmbedder {
	return &HashingEmbedder{}
}

func (e *HashingEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = embedOne(text)
	}
	return out, nil
}

func embedOne(text string) []float64 {
	vec := make([]float64, hashingDims)
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%hashingDims]++
	}
	return vec
}

// Tokenize lowercases and splits on non-alphanumeric runes, keeping dots and
// plus signs inside tokens so "node.js" and "c++" survive intact.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		if r == '.' || r == '+' || r == '#' {
			return false
		}
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
