// Package hashembed is a deterministic bag-of-words embedder. It needs no
// model server and is used for offline development and tests.
package hashembed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is used when New is given a non-positive size.
const DefaultDimensions = 256

// Embedder hashes lower-cased word tokens into a fixed number of buckets.
type Embedder struct {
	dims int
}

// New returns an embedder producing vectors of length dims.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

// Dimensions reports the vector length.
func (e *Embedder) Dimensions() int { return e.dims }

// Embed returns the L2-normalized token histogram of text. Text without any
// word token maps to a fixed unit vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, e.dims)
	for _, tok := range Tokens(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		// The top bit picks the sign so that collisions partly cancel.
		idx := int(sum % uint32(e.dims))
		if sum&(1<<31) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	normalize(v)
	return v, nil
}

// EmbedBatch embeds each text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Tokens splits text into lower-case runs of letters and digits.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		v[0] = 1
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
