// Package search provides a simple, deterministic, concurrency-safe in-memory
// matcher over bookings for the admin free-text search. It is intentionally
// small and dependency-free:
//
//   - No logging in the library (callers decide how/what to log)
//   - Clear, documented types and functional options (Option pattern)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// booking's token set: score = |Q ∩ B| / |Q ∪ B|. Phone numbers are folded to
// digits on both sides so formatting differences do not hide matches.
package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/danovmusic/go-booking-backend/internal/domain"
)

// Match is a ranked booking with its similarity score.
type Match struct {
	Booking domain.Booking
	Score   float64
}

// Index is the minimal interface implemented by booking indices.
type Index interface {
	TopK(query string, k int) []Match
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{
		stopwords: nil,
		maxDocs:   0,
	}
}

// WithStopwords drops the given words from both bookings and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps how many bookings the index will hold.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	booking domain.Booking
	tokens  map[string]struct{}
	tLen    int
}

type index struct {
	cfg  config
	docs []doc
}

// NewBookingIndex builds an Index over the given bookings. The index holds a
// snapshot; rebuild it when the underlying data changes.
func NewBookingIndex(bookings []domain.Booking, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(bookings))
	for _, b := range bookings {
		toks := tokenize(bookingText(&b), cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{booking: b, tokens: toks, tLen: len(toks)})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// bookingText composes the searchable surface of one booking.
func bookingText(b *domain.Booking) string {
	parts := []string{
		b.Name,
		b.Email,
		string(b.Service),
		b.Date,
		b.Message,
	}
	parts = append(parts, PhoneVariants(b.Phone)...)
	return strings.Join(parts, " ")
}

// TopK returns up to k best-matching bookings by Jaccard similarity.
func (i *index) TopK(q string, k int) []Match {
	if len(i.docs) == 0 {
		return nil
	}
	if strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	qTokens := tokenize(q+" "+strings.Join(PhoneVariants(q), " "), i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	buf := make([]Match, 0, min(k*4, len(i.docs)))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + d.tLen - over)
		if union <= 0 {
			continue
		}
		score := float64(over) / union
		if score <= 0 {
			continue
		}
		buf = append(buf, Match{Booking: d.booking, Score: score})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		// Newer bookings first on score ties; ID as the final tiebreak.
		ta, tb := buf[a].Booking.CreatedAt, buf[b].Booking.CreatedAt
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return buf[a].Booking.ID < buf[b].Booking.ID
	})

	if k > len(buf) {
		k = len(buf)
	}
	return buf[:k]
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
