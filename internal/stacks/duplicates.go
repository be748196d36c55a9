package stacks

import (
	"sort"

	"github.com/patronlib/librarystack/internal/mathkernel"
)

// CheckDuplicate reports the nearest neighbor to embedding and whether
// it counts as a duplicate per the configured threshold. A threshold of
// 0 disables duplicate detection entirely.
func (s *Stacks) CheckDuplicate(embedding []float32) DuplicateResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkDuplicateLocked(embedding)
}

func (s *Stacks) checkDuplicateLocked(embedding []float32) DuplicateResult {
	if s.cfg.DuplicateThreshold <= 0 || len(s.volumes) == 0 {
		return DuplicateResult{}
	}

	magB := mathkernel.Magnitude(embedding)
	best := DuplicateResult{}
	ids := sortedVolumeIDs(s.volumes)
	for _, id := range ids {
		v := s.volumes[id]
		if len(v.Embedding) != len(embedding) {
			continue
		}
		sim := mathkernel.Cosine(v.Embedding, embedding, s.magnitudes[id], magB)
		if sim > best.Similarity {
			best = DuplicateResult{Similarity: sim, VolumeID: id}
		}
	}
	best.IsDuplicate = best.Similarity >= s.cfg.DuplicateThreshold
	return best
}

// FindDuplicates groups every pair of volumes whose cosine similarity
// is at or above threshold into connected components (union-find); only
// groups of size >= 2 are returned.
func (s *Stacks) FindDuplicates(threshold float64) [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := sortedVolumeIDs(s.volumes)
	parent := make(map[string]string, len(ids))
	for _, id := range ids {
		parent[id] = id
	}

	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < len(ids); i++ {
		vi := s.volumes[ids[i]]
		for j := i + 1; j < len(ids); j++ {
			vj := s.volumes[ids[j]]
			if len(vi.Embedding) != len(vj.Embedding) {
				continue
			}
			sim := mathkernel.Cosine(vi.Embedding, vj.Embedding, s.magnitudes[ids[i]], s.magnitudes[ids[j]])
			if sim >= threshold {
				union(ids[i], ids[j])
			}
		}
	}

	groups := make(map[string][]string)
	for _, id := range ids {
		root := find(id)
		groups[root] = append(groups[root], id)
	}

	roots := make([]string, 0, len(groups))
	for root, members := range groups {
		if len(members) >= 2 {
			roots = append(roots, root)
		}
	}
	sort.Strings(roots)

	out := make([][]string, 0, len(roots))
	for _, root := range roots {
		members := groups[root]
		sort.Strings(members)
		out = append(out, members)
	}
	return out
}

func sortedVolumeIDs(volumes map[string]Volume) []string {
	ids := make([]string, 0, len(volumes))
	for id := range volumes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
