// Package search ranks a café's menu items against a free-text query.
//
// An index is built once per menu and is read-only afterwards, so it is safe
// for concurrent use. Scoring is Jaccard similarity between the query's
// token set and an item's token set (name, description, option values):
// score = |Q ∩ I| / |Q ∪ I|. Ties break on shorter names, then on id.
package search

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// Result is a ranked menu item with its similarity score.
type Result struct {
	Item  domain.MenuItem `json:"item"`
	Score float64         `json:"score"`
}

// Index is implemented by menu search indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// Option configures an index.
type Option func(*config)

type config struct {
	stopwords  map[string]struct{}
	nameWeight int
	maxItems   int
}

func defaultConfig() config {
	return config{nameWeight: 2}
}

// WithStopwords drops the given words from both items and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = fold(strings.TrimSpace(w)); w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithNameWeight counts name tokens n times, so a query matching an item's
// name outranks one matching only its description. n < 1 is ignored.
func WithNameWeight(n int) Option {
	return func(c *config) {
		if n >= 1 {
			c.nameWeight = n
		}
	}
}

// WithMaxItems caps the number of items indexed.
func WithMaxItems(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxItems = n
		}
	}
}

type doc struct {
	item    domain.MenuItem
	tokens  map[string]int // token -> weight
	weight  int
	nameLen int
}

type index struct {
	cfg  config
	docs []doc
}

// NewMenuIndex builds an index over items. Items without any searchable
// text are skipped.
func NewMenuIndex(items []domain.MenuItem, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(items))
	for _, it := range items {
		toks := map[string]int{}
		addTokens(toks, it.Name, cfg.nameWeight, cfg.stopwords)
		addTokens(toks, it.Description, 1, cfg.stopwords)
		for _, o := range it.Options {
			addTokens(toks, o.Value, 1, cfg.stopwords)
		}
		if len(toks) == 0 {
			continue
		}
		w := 0
		for _, n := range toks {
			w += n
		}
		docs = append(docs, doc{
			item:    it,
			tokens:  toks,
			weight:  w,
			nameLen: len([]rune(it.Name)),
		})
		if cfg.maxItems > 0 && len(docs) >= cfg.maxItems {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// Len returns the number of indexed items.
func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching items. A blank query or one with no
// searchable tokens yields nil. k <= 0 means 10.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		d     *doc
		score float64
	}
	buf := make([]scored, 0, len(i.docs))
	for n := range i.docs {
		d := &i.docs[n]
		over := 0
		for t := range qTokens {
			over += d.tokens[t]
		}
		if over == 0 {
			continue
		}
		// Weighted Jaccard: query tokens weigh 1 each.
		union := float64(len(qTokens) + d.weight - over)
		buf = append(buf, scored{d: d, score: float64(over) / union})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].d.nameLen != buf[b].d.nameLen {
			return buf[a].d.nameLen < buf[b].d.nameLen
		}
		return buf[a].d.item.ID < buf[b].d.item.ID
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{Item: buf[n].d.item, Score: buf[n].score}
	}
	return out
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// fold lowercases with Unicode case folding after NFC normalization, so
// "Café" and "CAFÉ" produce the same token. A Caser is stateful, hence one per call.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func addTokens(dst map[string]int, s string, weight int, stop map[string]struct{}) {
	for t := range tokenize(s, stop) {
		if weight > dst[t] {
			dst[t] = weight
		}
	}
}
