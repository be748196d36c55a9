// Package topiccatalog implements the hierarchical,
// fuzzily-canonicalized topic tree: a topic is a '/'-delimited path
// whose ancestors are auto-materialized on insert, with alias
// resolution and Levenshtein-similarity-based fuzzy matching onto
// existing canonical topics.
package topiccatalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/patronlib/librarystack/internal/texttoken"
)

// DefaultSimilarityThreshold is the minimum fuzzy-match score required
// to canonicalize a proposed topic onto an existing one.
const DefaultSimilarityThreshold = 0.85

// Catalog owns the four co-maintained mappings described in the data
// model: topic -> volumes, volume -> canonical topic, alias -> canonical
// topic, and topic -> child topics.
type Catalog struct {
	mu                  sync.RWMutex
	similarityThreshold float64

	canonical        map[string]struct{}
	children         map[string]map[string]struct{}
	topicToVolumes   map[string]map[string]struct{}
	volumeToTopic    map[string]string
	aliasToCanonical map[string]string
}

// New creates an empty catalog with the default similarity threshold.
func New() *Catalog {
	return NewWithThreshold(DefaultSimilarityThreshold)
}

// NewWithThreshold creates an empty catalog with a custom fuzzy-match
// threshold.
func NewWithThreshold(threshold float64) *Catalog {
	return &Catalog{
		similarityThreshold: threshold,
		canonical:           make(map[string]struct{}),
		children:            make(map[string]map[string]struct{}),
		topicToVolumes:      make(map[string]map[string]struct{}),
		volumeToTopic:       make(map[string]string),
		aliasToCanonical:    make(map[string]string),
	}
}

func normalizePath(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// Resolve canonicalizes a proposed topic path: alias lookup, then exact
// match, then best fuzzy match above the threshold (tie-break by
// shortest path then lexicographic), else registers it as new
// (materializing ancestors). Resolve always mutates the catalog when
// the topic is genuinely new; it is not a read-only preview.
func (c *Catalog) Resolve(proposed string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveLocked(proposed)
}

func (c *Catalog) resolveLocked(proposed string) string {
	p := normalizePath(proposed)
	if p == "" {
		return p
	}
	if canon, ok := c.aliasToCanonical[p]; ok {
		return canon
	}
	if _, ok := c.canonical[p]; ok {
		return p
	}

	best := ""
	bestScore := 0.0
	candidates := make([]string, 0, len(c.canonical))
	for t := range c.canonical {
		candidates = append(candidates, t)
	}
	sort.Strings(candidates)
	for _, t := range candidates {
		score := texttoken.Similarity(p, t)
		if score < c.similarityThreshold {
			continue
		}
		if score > bestScore ||
			(score == bestScore && isBetterTieBreak(t, best)) {
			best = t
			bestScore = score
		}
	}
	if best != "" {
		return best
	}

	c.materializeLocked(p)
	return p
}

func isBetterTieBreak(candidate, current string) bool {
	if current == "" {
		return true
	}
	if len(candidate) != len(current) {
		return len(candidate) < len(current)
	}
	return candidate < current
}

// materializeLocked registers topic and every ancestor path as canonical,
// wiring parent/child adjacency.
func (c *Catalog) materializeLocked(topic string) {
	segments := strings.Split(topic, "/")
	path := ""
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		parent := path
		if path == "" {
			path = seg
		} else {
			path = path + "/" + seg
		}
		c.canonical[path] = struct{}{}
		if i > 0 && parent != "" {
			if c.children[parent] == nil {
				c.children[parent] = make(map[string]struct{})
			}
			c.children[parent][path] = struct{}{}
		}
	}
}

// RegisterVolume canonicalizes topic and binds volumeID to it, removing
// any previous topic binding for that volume.
func (c *Catalog) RegisterVolume(volumeID, topic string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	canon := c.resolveLocked(topic)
	c.unregisterLocked(volumeID)
	if c.topicToVolumes[canon] == nil {
		c.topicToVolumes[canon] = make(map[string]struct{})
	}
	c.topicToVolumes[canon][volumeID] = struct{}{}
	c.volumeToTopic[volumeID] = canon
	return canon
}

// Unregister removes volumeID from the catalog entirely.
func (c *Catalog) Unregister(volumeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unregisterLocked(volumeID)
}

func (c *Catalog) unregisterLocked(volumeID string) {
	prev, ok := c.volumeToTopic[volumeID]
	if !ok {
		return
	}
	delete(c.volumeToTopic, volumeID)
	if set, ok := c.topicToVolumes[prev]; ok {
		delete(set, volumeID)
		if len(set) == 0 {
			delete(c.topicToVolumes, prev)
		}
	}
}

// Relocate moves volumeID to a new topic; equivalent to unregister then
// register.
func (c *Catalog) Relocate(volumeID, newTopic string) string {
	return c.RegisterVolume(volumeID, newTopic)
}

// Alias registers alias as resolving to the canonical form of target,
// materializing target if it does not yet exist.
func (c *Catalog) Alias(alias, target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	canon := c.resolveLocked(target)
	c.aliasToCanonical[normalizePath(alias)] = canon
}

// Merge moves every volume under src (and its descendants) to tgt, then
// registers src as an alias of tgt.
func (c *Catalog) Merge(src, tgt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	srcCanon := c.resolveLocked(src)
	tgtCanon := c.resolveLocked(tgt)
	if srcCanon == tgtCanon {
		return
	}

	for _, topic := range c.descendantsLocked(srcCanon, true) {
		volumes := c.topicToVolumes[topic]
		for volumeID := range volumes {
			c.unregisterLocked(volumeID)
			if c.topicToVolumes[tgtCanon] == nil {
				c.topicToVolumes[tgtCanon] = make(map[string]struct{})
			}
			c.topicToVolumes[tgtCanon][volumeID] = struct{}{}
			c.volumeToTopic[volumeID] = tgtCanon
		}
	}
	c.aliasToCanonical[srcCanon] = tgtCanon
}

// EnsureTopic materializes topic (and its ancestors) as canonical
// without binding any volume to it, returning the canonicalized path.
// Used when a reorganization plan names a new subtopic with no members
// yet.
func (c *Catalog) EnsureTopic(topic string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := normalizePath(topic)
	if p == "" {
		return p
	}
	c.materializeLocked(p)
	return p
}

// FilterByTopic returns every volume id registered under topic or any of
// its descendants.
func (c *Catalog) FilterByTopic(topic string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := normalizePath(topic)
	canon, ok := c.aliasToCanonical[p]
	if !ok {
		canon = p
	}

	seen := make(map[string]struct{})
	for _, t := range c.descendantsLocked(canon, true) {
		for volumeID := range c.topicToVolumes[t] {
			seen[volumeID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) descendantsLocked(topic string, includeSelf bool) []string {
	var out []string
	if includeSelf {
		out = append(out, topic)
	}
	for child := range c.children[topic] {
		out = append(out, c.descendantsLocked(child, true)...)
	}
	return out
}

// TopicOf returns the canonical topic a volume is registered under, and
// whether it is registered at all.
func (c *Catalog) TopicOf(volumeID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.volumeToTopic[volumeID]
	return t, ok
}

// Topics returns every canonical topic path, sorted.
func (c *Catalog) Topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.canonical))
	for t := range c.canonical {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ChildrenOf returns the direct child topic paths of topic, sorted.
func (c *Catalog) ChildrenOf(topic string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kids := c.children[normalizePath(topic)]
	out := make([]string, 0, len(kids))
	for k := range kids {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Aliases returns a copy of every alias -> canonical mapping.
func (c *Catalog) Aliases() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.aliasToCanonical))
	for k, v := range c.aliasToCanonical {
		out[k] = v
	}
	return out
}

// ParentOf returns topic's parent path (everything before the last '/'),
// or "" if topic is a root.
func ParentOf(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 {
		return ""
	}
	return topic[:idx]
}
