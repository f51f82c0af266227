// Package retrieval ingests course documents and finds the passages most
// relevant to a question.
package retrieval

import (
	"context"
	"errors"
	"slices"
	"strings"
	"unicode"

	"github.com/pavelanni/teachmate/internal/model"
)

// DefaultTopK is the number of chunks returned per query.
const DefaultTopK = 3

// ErrUnsupportedFile is returned for uploads that are not pdf, docx or txt.
var ErrUnsupportedFile = errors.New("unsupported file type")

// ContextRetriever returns text passages relevant to a query. An empty
// result means no context is available.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// ChunkSearcher finds stored chunks containing any of the given terms.
type ChunkSearcher interface {
	SearchChunks(terms []string) ([]model.Chunk, error)
}

// KeywordRetriever ranks stored chunks by how many query terms they contain.
// It stands in for a vector search service behind the same interface.
type KeywordRetriever struct {
	chunks ChunkSearcher
	topK   int
}

// NewKeywordRetriever returns a retriever over chunks returning up to topK
// passages; topK <= 0 means DefaultTopK.
func NewKeywordRetriever(chunks ChunkSearcher, topK int) *KeywordRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &KeywordRetriever{chunks: chunks, topK: topK}
}

// Retrieve returns the best matching chunk texts, best first.
func (k *KeywordRetriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	candidates, err := k.chunks.SearchChunks(terms)
	if err != nil {
		return nil, err
	}

	type scored struct {
		text     string
		distinct int
		hits     int
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		lower := strings.ToLower(c.Text)
		s := scored{text: c.Text}
		for _, t := range terms {
			if n := strings.Count(lower, t); n > 0 {
				s.distinct++
				s.hits += n
			}
		}
		if s.distinct > 0 {
			ranked = append(ranked, s)
		}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		if a.distinct != b.distinct {
			return b.distinct - a.distinct
		}
		return b.hits - a.hits
	})

	out := make([]string, 0, min(k.topK, len(ranked)))
	for _, s := range ranked[:min(k.topK, len(ranked))] {
		out = append(out, s.text)
	}
	return out, nil
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "were": true,
	"what": true, "which": true, "who": true, "whom": true, "how": true, "why": true,
	"when": true, "where": true, "this": true, "that": true, "these": true, "those": true,
	"with": true, "from": true, "does": true, "did": true, "can": true, "could": true,
	"should": true, "would": true, "about": true, "into": true, "has": true, "have": true,
	"had": true, "not": true, "you": true, "your": true, "its": true, "our": true,
	"their": true, "there": true, "then": true, "than": true, "also": true, "any": true,
	"all": true, "but": true, "tell": true, "explain": true, "describe": true,
}

// Terms lowercases query and returns its distinct significant words in order.
func Terms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var terms []string
	for _, w := range words {
		if len([]rune(w)) < 3 || stopwords[w] || slices.Contains(terms, w) {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}
