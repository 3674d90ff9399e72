package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// HashEmbedder is a deterministic bag-of-words embedder. Identifiers are
// split on '_' and camelCase boundaries, lower-cased and hashed into Dim
// buckets. It needs no network and is used offline and in tests.
type HashEmbedder struct {
	Dim int
}

func NewHash(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{Dim: dim}
}

func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.Dim)
	for _, w := range Tokenize(text) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(w))
		v[f.Sum64()%uint64(h.Dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// Tokenize extracts ident-like words (letter or '_' followed by letters,
// digits, '_') and splits them into lower-case parts. Numbers and symbols
// are delimiters.
func Tokenize(text string) []string {
	isStart := func(r rune) bool { return r == '_' || unicode.IsLetter(r) }
	isCont := func(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

	var out []string
	src := text
	i := 0
	for i < len(src) {
		r, w := utf8.DecodeRuneInString(src[i:])
		if !isStart(r) {
			i += w
			continue
		}
		start := i
		i += w
		for i < len(src) {
			rc, wc := utf8.DecodeRuneInString(src[i:])
			if !isCont(rc) {
				break
			}
			i += wc
		}
		out = append(out, splitIdent(src[start:i])...)
	}
	return out
}

// splitIdent breaks snake_case and camelCase into lower-case parts of
// length >= 2.
func splitIdent(word string) []string {
	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) >= 2 {
			parts = append(parts, strings.ToLower(string(cur)))
		}
		cur = cur[:0]
	}
	runes := []rune(word)
	for i, r := range runes {
		switch {
		case r == '_':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return parts
}
