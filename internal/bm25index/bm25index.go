// Package bm25index implements the inverted index used for BM25-ranked
// text search: per-term posting lists, document frequencies, and the
// corpus statistics BM25 needs (average document length, total doc
// count). The index is hand-rolled rather than built on a generic
// search engine so the exact scoring formula and the later-insertion
// tie-break stay auditable.
package bm25index

import (
	"math"
	"sort"

	"github.com/patronlib/librarystack/internal/texttoken"
)

const (
	k1 = 1.5
	b  = 0.75
)

type posting struct {
	docID    string
	termFreq int
	// seq records insertion order so equal-score results tie-break by
	// later insertion.
	seq uint64
}

// Index is a per-term inverted index over tokenized documents.
type Index struct {
	postings    map[string][]posting
	docLengths  map[string]int
	totalLength int
	nextSeq     uint64
	docSeq      map[string]uint64
}

// New creates an empty index.
func New() *Index {
	return &Index{
		postings:   make(map[string][]posting),
		docLengths: make(map[string]int),
		docSeq:     make(map[string]uint64),
	}
}

// Add tokenizes text and folds it into the index under docID. Calling
// Add twice for the same docID without an intervening Remove corrupts
// the corpus statistics; callers must Remove before re-adding.
func (idx *Index) Add(docID, text string) {
	tokens := texttoken.Tokenize(text)
	idx.nextSeq++
	seq := idx.nextSeq
	idx.docSeq[docID] = seq

	freqs := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freqs[tok]++
	}

	idx.docLengths[docID] = len(tokens)
	idx.totalLength += len(tokens)

	for term, tf := range freqs {
		idx.postings[term] = append(idx.postings[term], posting{docID: docID, termFreq: tf, seq: seq})
	}
}

// Remove reverses the effect of Add for docID. No-op if docID is unknown.
func (idx *Index) Remove(docID string) {
	dl, ok := idx.docLengths[docID]
	if !ok {
		return
	}
	idx.totalLength -= dl
	delete(idx.docLengths, docID)
	delete(idx.docSeq, docID)

	for term, list := range idx.postings {
		filtered := list[:0]
		for _, p := range list {
			if p.docID != docID {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = filtered
		}
	}
}

// DocCount returns the total number of indexed documents.
func (idx *Index) DocCount() int { return len(idx.docLengths) }

// AverageDocLength returns the mean tokenized length across all documents.
func (idx *Index) AverageDocLength() float64 {
	if len(idx.docLengths) == 0 {
		return 0
	}
	return float64(idx.totalLength) / float64(len(idx.docLengths))
}

// Hit is one scored document from Search.
type Hit struct {
	DocID string
	Score float64
}

// Search tokenizes query and scores every document containing at least
// one query term using the standard Okapi BM25 formula with k1=1.5,
// b=0.75. Results are sorted descending by score, ties broken by later
// insertion order (this index does not know each document's external
// timestamp/id, so that tie-break is the caller's responsibility once
// ids are hydrated — here ties are broken by later insertion sequence,
// which callers combining scores with other signals may further
// re-break).
func (idx *Index) Search(query string) []Hit {
	terms := texttoken.Tokenize(query)
	if len(terms) == 0 || idx.DocCount() == 0 {
		return nil
	}

	n := float64(idx.DocCount())
	avgdl := idx.AverageDocLength()

	scores := make(map[string]float64)
	seqs := make(map[string]uint64)

	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		list, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := float64(len(list))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)

		for _, p := range list {
			dl := float64(idx.docLengths[p.docID])
			tf := float64(p.termFreq)
			denom := tf + k1*(1-b+b*dl/avgdl)
			score := idf * ((k1 + 1) * tf) / denom
			scores[p.docID] += score
			seqs[p.docID] = p.seq
		}
	}

	hits := make([]Hit, 0, len(scores))
	for docID, score := range scores {
		hits = append(hits, Hit{DocID: docID, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return seqs[hits[i].DocID] > seqs[hits[j].DocID]
	})

	return hits
}

// Normalize min-max scales hits into [0,1], used only when BM25 scores
// are combined with other modalities. A single hit or a flat score
// distribution maps to 1.0 for all entries.
func Normalize(hits []Hit) []Hit {
	if len(hits) == 0 {
		return hits
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	out := make([]Hit, len(hits))
	spread := max - min
	for i, h := range hits {
		if spread == 0 {
			out[i] = Hit{DocID: h.DocID, Score: 1}
			continue
		}
		out[i] = Hit{DocID: h.DocID, Score: (h.Score - min) / spread}
	}
	return out
}
