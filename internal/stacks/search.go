package stacks

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/patronlib/librarystack/internal/bm25index"
	"github.com/patronlib/librarystack/internal/mathkernel"
	"github.com/patronlib/librarystack/internal/metaindex"
	"github.com/patronlib/librarystack/internal/texttoken"
)

// Search performs a linear cosine scan against every volume, filters by
// score >= threshold, and returns the top k, tie-broken by later
// timestamp then later insertion.
func (s *Stacks) Search(queryVec []float32, k int, threshold float64) []ScoredVolume {
	if k <= 0 {
		k = s.cfg.MaxResults
	}
	s.mu.RLock()
	magQ := mathkernel.Magnitude(queryVec)
	results := make([]ScoredVolume, 0, len(s.volumes))
	seqs := make(map[string]uint64, len(s.volumes))
	for id, v := range s.volumes {
		if len(v.Embedding) != len(queryVec) {
			continue
		}
		score := mathkernel.Cosine(v.Embedding, queryVec, s.magnitudes[id], magQ)
		if score < threshold {
			continue
		}
		results = append(results, ScoredVolume{Volume: v.clone(), Score: score})
		seqs[id] = s.sequences[id]
	}
	s.mu.RUnlock()

	sortScored(results, seqs)
	if len(results) > k {
		results = results[:k]
	}
	for i := range results {
		s.touchAccess(results[i].Volume.ID)
	}
	s.learning.RecordQuery(queryVec, idsOf(results))
	return results
}

// sortScored sorts descending by score, then by later timestamp, then
// by later insertion sequence, matching the tie-break rule shared by
// Search, TextSearch, AdvancedSearch, and Recommend.
func sortScored(results []ScoredVolume, seqs map[string]uint64) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Volume.TimestampMs != b.Volume.TimestampMs {
			return a.Volume.TimestampMs > b.Volume.TimestampMs
		}
		return seqs[a.Volume.ID] > seqs[b.Volume.ID]
	})
}

func idsOf(scored []ScoredVolume) []string {
	ids := make([]string, len(scored))
	for i, sv := range scored {
		ids[i] = sv.Volume.ID
	}
	return ids
}

// TextSearch scores every volume under the chosen mode (default bm25)
// and returns the top MaxResults at or above Threshold.
func (s *Stacks) TextSearch(opts TextSearchOptions) ([]ScoredVolume, error) {
	mode := texttoken.Mode(opts.Mode)
	if mode == "" {
		mode = texttoken.ModeBM25
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if mode == texttoken.ModeBM25 {
		hits := s.bm25.Search(opts.Query)
		results := make([]ScoredVolume, 0, len(hits))
		seqs := make(map[string]uint64, len(hits))
		for _, h := range hits {
			v, ok := s.volumes[h.DocID]
			if !ok || h.Score < opts.Threshold {
				continue
			}
			results = append(results, ScoredVolume{Volume: v.clone(), Score: h.Score})
			seqs[v.ID] = s.sequences[v.ID]
		}
		sortScored(results, seqs)
		if len(results) > maxResults {
			results = results[:maxResults]
		}
		return results, nil
	}

	results := make([]ScoredVolume, 0, len(s.volumes))
	seqs := make(map[string]uint64, len(s.volumes))
	ids := sortedVolumeIDs(s.volumes)
	for _, id := range ids {
		v := s.volumes[id]
		score, err := texttoken.Score(mode, opts.Query, v.Text)
		if err != nil {
			return nil, err
		}
		if score < opts.Threshold {
			continue
		}
		results = append(results, ScoredVolume{Volume: v.clone(), Score: score})
		seqs[id] = s.sequences[id]
	}
	sortScored(results, seqs)
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// FilterByMetadata is a pure index lookup over the metadata filters.
func (s *Stacks) FilterByMetadata(filters []metaindex.Filter) []Volume {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.meta.Match(filters)
	out := make([]Volume, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.volumes[id]; ok {
			out = append(out, v.clone())
		}
	}
	return out
}

// FilterByDateRange returns every volume whose timestamp falls within
// [fromMs, toMs] inclusive.
func (s *Stacks) FilterByDateRange(fromMs, toMs int64) []Volume {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Volume, 0)
	for _, id := range sortedVolumeIDs(s.volumes) {
		v := s.volumes[id]
		if v.TimestampMs >= fromMs && v.TimestampMs <= toMs {
			out = append(out, v.clone())
		}
	}
	return out
}

// FilterByTopic returns every volume registered under any of topics or
// their descendants.
func (s *Stacks) FilterByTopic(topics []string) []Volume {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []Volume
	for _, topic := range topics {
		for _, id := range s.topics.FilterByTopic(topic) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if v, ok := s.volumes[id]; ok {
				out = append(out, v.clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AdvancedSearch implements the combined vector/text/metadata/date/topic
// pipeline with a learning boost.
func (s *Stacks) AdvancedSearch(opts AdvancedSearchOptions) ([]ScoredVolume, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}
	rankBy := opts.RankBy
	if rankBy == "" {
		rankBy = RankByVector
	}
	textMode := texttoken.Mode(opts.TextMode)
	if textMode == "" {
		textMode = texttoken.ModeBM25
	}
	threshold := 0.0
	if opts.SimilarityThreshold != nil {
		threshold = *opts.SimilarityThreshold
	}

	s.mu.RLock()

	candidateIDs := s.candidateSetLocked(opts)

	var bm25Scores map[string]float64
	if opts.Text != "" && textMode == texttoken.ModeBM25 {
		bm25Scores = make(map[string]float64)
		for _, h := range bm25index.Normalize(s.bm25.Search(opts.Text)) {
			bm25Scores[h.DocID] = h.Score
		}
	}

	magQ := mathkernel.Magnitude(opts.QueryEmbedding)

	results := make([]ScoredVolume, 0, len(candidateIDs))
	seqs := make(map[string]uint64, len(candidateIDs))
	for _, id := range candidateIDs {
		v, ok := s.volumes[id]
		if !ok {
			continue
		}

		vScore := 0.0
		if len(opts.QueryEmbedding) > 0 && len(v.Embedding) == len(opts.QueryEmbedding) {
			vScore = mathkernel.Cosine(v.Embedding, opts.QueryEmbedding, s.magnitudes[id], magQ)
		}

		tScore := 0.0
		if opts.Text != "" {
			if bm25Scores != nil {
				tScore = bm25Scores[id]
			} else {
				score, err := texttoken.Score(textMode, opts.Text, v.Text)
				if err != nil {
					s.mu.RUnlock()
					return nil, err
				}
				tScore = score
			}
			tScore *= fieldBoostOrOne(opts.FieldBoosts.Text)
		}

		matchCount := s.metadataMatchCountLocked(v, opts.Metadata)
		mBoost := 1 + 0.25*float64(matchCount)*fieldBoostOrOne(opts.FieldBoosts.Metadata)

		topicBoost := 1.0
		if len(opts.TopicFilter) > 0 && s.inTopicFilterLocked(id, opts.TopicFilter) {
			topicBoost = fieldBoostOrOne(opts.FieldBoosts.Topic)
		}

		learningBoost := s.learning.ComputeBoost(id, opts.QueryEmbedding)

		combined := combineScore(rankBy, vScore, tScore, mBoost, topicBoost, learningBoost, opts.RankWeights, s, id, v, opts.QueryEmbedding)

		if combined < threshold {
			continue
		}
		results = append(results, ScoredVolume{Volume: v.clone(), Score: combined})
		seqs[id] = s.sequences[id]
	}

	s.mu.RUnlock()

	sortScored(results, seqs)
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	ids := idsOf(results)
	s.learning.RecordQuery(opts.QueryEmbedding, ids)
	for _, id := range ids {
		s.touchAccess(id)
	}
	return results, nil
}

func fieldBoostOrOne(b float64) float64 {
	if b <= 0 {
		return 1
	}
	return b
}

func combineScore(rankBy RankBy, vScore, tScore, mBoost, topicBoost, learningBoost float64, weights *RankWeights, s *Stacks, id string, v Volume, queryEmb []float32) float64 {
	switch rankBy {
	case RankByText:
		return tScore * mBoost * topicBoost * learningBoost
	case RankByAverage:
		sum, n := 0.0, 0.0
		if len(queryEmb) > 0 {
			sum += vScore
			n++
		}
		if tScore != 0 {
			sum += tScore
			n++
		}
		if n == 0 {
			n = 1
		}
		return (sum / n) * mBoost * topicBoost * learningBoost
	case RankByWeighted:
		return weightedScore(weights, vScore, tScore, mBoost, topicBoost, s, id, queryEmb) * learningBoost
	default: // RankByVector
		return vScore * mBoost * topicBoost * learningBoost
	}
}

// weightedScore combines the present modalities using rankWeights,
// renormalizing across only the modalities actually present.
// fieldBoosts.topic is applied multiplicatively after the weighted
// combination: topic match acts as a boost on relevance, not a ranking
// signal competing for a weight share.
func weightedScore(weights *RankWeights, vScore, tScore, mBoost, topicBoost float64, s *Stacks, id string, queryEmb []float32) float64 {
	if weights == nil {
		w := RankWeights{Vector: 0.6, Text: 0.4}
		weights = &w
	}

	type component struct {
		weight float64
		value  float64
		active bool
	}
	recency, frequency := s.recencyFrequencyLocked(id)

	components := []component{
		{weights.Vector, vScore, len(queryEmb) > 0},
		{weights.Text, tScore, tScore != 0},
		{weights.Recency, recency, weights.Recency > 0},
		{weights.Frequency, frequency, weights.Frequency > 0},
		{weights.Metadata, mBoost - 1, weights.Metadata > 0},
	}

	totalWeight := 0.0
	sum := 0.0
	for _, c := range components {
		if !c.active {
			continue
		}
		totalWeight += c.weight
		sum += c.weight * c.value
	}
	if totalWeight == 0 {
		return 0
	}
	return (sum / totalWeight) * topicBoost
}

func (s *Stacks) recencyFrequencyLocked(id string) (recency, frequency float64) {
	a, ok := s.access[id]
	if !ok {
		return 0, 0
	}
	const halfLifeMs = 7 * 24 * 60 * 60 * 1000
	deltaMs := float64(s.clock().UnixMilli() - a.LastHitMs)
	if deltaMs < 0 {
		deltaMs = 0
	}
	recency = halfLifeDecay(deltaMs, halfLifeMs)
	frequency = math.Log1p(float64(a.Hits)) / math.Log1p(float64(a.Hits)+1)
	return recency, frequency
}

// halfLifeDecay returns 2^(-delta/halfLife), clamped to [0,1].
func halfLifeDecay(delta, halfLife float64) float64 {
	if halfLife <= 0 {
		return 0
	}
	return math.Exp2(-delta / halfLife)
}

func (s *Stacks) metadataMatchCountLocked(v Volume, filters []metaindex.Filter) int {
	if len(filters) == 0 {
		return 0
	}
	count := 0
	for _, f := range filters {
		if metadataSatisfies(v.Metadata, f) {
			count++
		}
	}
	return count
}

func (s *Stacks) inTopicFilterLocked(id string, topics []string) bool {
	for _, topic := range topics {
		for _, match := range s.topics.FilterByTopic(topic) {
			if match == id {
				return true
			}
		}
	}
	return false
}

// candidateSetLocked computes the AND-intersection of every present
// filter (metadata / date / topic); an absent filter matches everything.
func (s *Stacks) candidateSetLocked(opts AdvancedSearchOptions) []string {
	var sets [][]string
	if len(opts.Metadata) > 0 {
		sets = append(sets, s.meta.Match(opts.Metadata))
	}
	if opts.DateFromMs != nil || opts.DateToMs != nil {
		from, to := int64(0), int64(1<<62)
		if opts.DateFromMs != nil {
			from = *opts.DateFromMs
		}
		if opts.DateToMs != nil {
			to = *opts.DateToMs
		}
		var ids []string
		for id, v := range s.volumes {
			if v.TimestampMs >= from && v.TimestampMs <= to {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		sets = append(sets, ids)
	}
	if len(opts.TopicFilter) > 0 {
		seen := make(map[string]struct{})
		var ids []string
		for _, topic := range opts.TopicFilter {
			for _, id := range s.topics.FilterByTopic(topic) {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
		sort.Strings(ids)
		sets = append(sets, ids)
	}

	if len(sets) == 0 {
		return sortedVolumeIDs(s.volumes)
	}

	result := toSet(sets[0])
	for _, set := range sets[1:] {
		next := toSet(set)
		for id := range result {
			if _, ok := next[id]; !ok {
				delete(result, id)
			}
		}
	}
	out := make([]string, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func metadataSatisfies(meta map[string]string, f metaindex.Filter) bool {
	v, ok := meta[f.Key]
	switch f.Operator {
	case metaindex.OpEq:
		return ok && v == f.Value
	case metaindex.OpNe:
		return !ok || v != f.Value
	case metaindex.OpContains:
		return ok && containsFold(v, f.Value)
	case metaindex.OpStartsWith:
		return ok && hasPrefixFold(v, f.Value)
	case metaindex.OpEndsWith:
		return ok && hasSuffixFold(v, f.Value)
	case metaindex.OpIn:
		for _, want := range f.Values {
			if v == want {
				return true
			}
		}
		return false
	case metaindex.OpNotIn:
		for _, want := range f.Values {
			if v == want {
				return false
			}
		}
		return ok
	case metaindex.OpGt:
		return ok && numericCompare(v, f.Value, func(x, ref float64) bool { return x > ref })
	case metaindex.OpGte:
		return ok && numericCompare(v, f.Value, func(x, ref float64) bool { return x >= ref })
	case metaindex.OpLt:
		return ok && numericCompare(v, f.Value, func(x, ref float64) bool { return x < ref })
	case metaindex.OpLte:
		return ok && numericCompare(v, f.Value, func(x, ref float64) bool { return x <= ref })
	case metaindex.OpBetween:
		if !ok || len(f.Values) != 2 {
			return false
		}
		return numericCompare(v, f.Values[0], func(x, lo float64) bool { return x >= lo }) &&
			numericCompare(v, f.Values[1], func(x, hi float64) bool { return x <= hi })
	default:
		return false
	}
}

// numericCompare parses both sides as float64; an unparseable side
// fails the comparison rather than erroring.
func numericCompare(value, ref string, cmp func(x, ref float64) bool) bool {
	x, errX := strconv.ParseFloat(value, 64)
	r, errR := strconv.ParseFloat(ref, 64)
	if errX != nil || errR != nil {
		return false
	}
	return cmp(x, r)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

func hasSuffixFold(s, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(suffix))
}

// Recommend blends cosine similarity with recency and frequency decay:
// 0.7*cosine + 0.2*recencyDecay + 0.1*frequencyDecay, multiplied by the
// learning boost, filtered by MinScore.
func (s *Stacks) Recommend(opts RecommendOptions) []ScoredVolume {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}
	halfLife := opts.RecencyHalfLife
	if halfLife <= 0 {
		halfLife = 7 * 24 * time.Hour
	}
	halfLifeMs := float64(halfLife.Milliseconds())

	s.mu.RLock()
	magQ := mathkernel.Magnitude(opts.QueryEmbedding)
	nowMs := s.clock().UnixMilli()
	results := make([]ScoredVolume, 0, len(s.volumes))
	seqs := make(map[string]uint64, len(s.volumes))

	maxHits := uint32(0)
	for _, a := range s.access {
		if a.Hits > maxHits {
			maxHits = a.Hits
		}
	}

	for id, v := range s.volumes {
		cosine := 0.0
		if len(v.Embedding) == len(opts.QueryEmbedding) && len(opts.QueryEmbedding) > 0 {
			cosine = mathkernel.Cosine(v.Embedding, opts.QueryEmbedding, s.magnitudes[id], magQ)
		}

		recencyDecay, frequencyDecay := 0.0, 0.0
		if a, ok := s.access[id]; ok {
			deltaMs := float64(nowMs - a.LastHitMs)
			if deltaMs < 0 {
				deltaMs = 0
			}
			recencyDecay = halfLifeDecay(deltaMs, halfLifeMs)
			if maxHits > 0 {
				frequencyDecay = math.Log1p(float64(a.Hits)) / math.Log1p(float64(maxHits))
			}
		}

		score := 0.7*cosine + 0.2*recencyDecay + 0.1*frequencyDecay
		score *= s.learning.ComputeBoost(id, opts.QueryEmbedding)

		if score < opts.MinScore {
			continue
		}
		results = append(results, ScoredVolume{Volume: v.clone(), Score: score})
		seqs[id] = s.sequences[id]
	}
	s.mu.RUnlock()

	sortScored(results, seqs)
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}
