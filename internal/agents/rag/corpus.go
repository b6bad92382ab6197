// Package rag implements a retrieval delegate over a markdown document
// corpus. Retrieval is lexical: documents are scored by term overlap with the
// query and the best ones are handed to the model for synthesis.
package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"genforge/internal/logging"
)

// Document is one corpus file, tokenized at load time.
type Document struct {
	Name    string
	Content string
	terms   map[string]int
}

// scoredDoc pairs a document with its query score.
type scoredDoc struct {
	doc   *Document
	score float64
}

// Corpus is the set of markdown documents under a directory. Load replaces
// the whole set atomically; Search runs under a read lock so reloads never
// torn-read.
type Corpus struct {
	mu   sync.RWMutex
	dir  string
	docs []*Document
	log  *zap.Logger
}

// NewCorpus loads every markdown file under dir.
func NewCorpus(dir string) (*Corpus, error) {
	c := &Corpus{dir: dir, log: logging.L(logging.CategoryRAG)}
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the corpus directory.
func (c *Corpus) Dir() string { return c.dir }

// Len returns the number of loaded documents.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Load re-reads the corpus directory. The previous document set stays in
// place when the read fails.
func (c *Corpus) Load() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("rag: read corpus directory %q: %w", c.dir, err)
	}

	var docs []*Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			c.log.Warn("skipping unreadable corpus file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		content := string(raw)
		docs = append(docs, &Document{
			Name:    e.Name(),
			Content: content,
			terms:   termCounts(content),
		})
	}

	c.mu.Lock()
	c.docs = docs
	c.mu.Unlock()

	c.log.Info("corpus loaded", zap.String("dir", c.dir), zap.Int("documents", len(docs)))
	return nil
}

// Search returns up to k documents scoring above zero for query, best first.
func (c *Corpus) Search(query string, k int) []Document {
	terms := termCounts(query)
	if len(terms) == 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var scored []scoredDoc
	for _, d := range c.docs {
		s := score(terms, d.terms)
		if s > 0 {
			scored = append(scored, scoredDoc{doc: d, score: s})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	out := make([]Document, len(scored))
	for i, sd := range scored {
		out[i] = *sd.doc
	}
	return out
}

// score is the fraction of query terms present in the document, weighted by
// in-document frequency so longer matches rank higher.
func score(query, doc map[string]int) float64 {
	if len(query) == 0 {
		return 0
	}
	var hit float64
	for term := range query {
		if n, ok := doc[term]; ok {
			hit += 1 + 0.1*float64(n-1)
		}
	}
	return hit / float64(len(query))
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "be": {}, "by": {}, "do": {},
	"does": {}, "for": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "what": {}, "where": {},
	"which": {}, "with": {},
}

func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, skip := stopWords[w]; skip || len(w) < 2 {
			continue
		}
		counts[w]++
	}
	return counts
}
