// Package codec implements deterministic binary encode/decode for the
// four on-disk snapshot streams: volumes, access stats, topic catalog,
// and the learning profile. The record layout follows the external
// interface contract verbatim (length-prefixed strings, explicit field
// widths) so that two encodes of the same in-memory state are
// byte-identical. The wire format is hand-rolled rather than gob: gob's
// stream framing does not guarantee the field-order determinism required
// by the save->load->save byte-identity property.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/patronlib/librarystack/pkg/liberr"
)

// VolumeRecord is the on-disk shape of one stored Volume.
type VolumeRecord struct {
	ID          string
	Text        string
	Embedding   []float32
	TimestampMs uint64
	Metadata    map[string]string
}

// AccessRecord is the on-disk shape of one entry's access statistics.
type AccessRecord struct {
	ID        string
	Hits      uint32
	LastHitMs uint64
}

// TopicEntry is one canonical topic node with its parent path (empty for
// roots) and its direct children.
type TopicEntry struct {
	Path     string
	Parent   string
	Children []string
}

// TopicSnapshot is the on-disk shape of the whole topic catalog.
type TopicSnapshot struct {
	Topics       []TopicEntry
	Aliases      map[string]string
	VolumeTopics map[string]string
}

// LearningWeights mirrors the adapted ranking weights; always sums to 1.
type LearningWeights struct {
	Vector    float32
	Recency   float32
	Frequency float32
	Text      float32
}

// QueryHistoryEntry is one ring-buffer slot of recorded query history.
type QueryHistoryEntry struct {
	Embedding    []float32
	RetrievedIDs []string
}

// FeedbackEntry is per-entry relevance feedback bookkeeping.
type FeedbackEntry struct {
	TotalRetrievals uint64
	QueryCount      uint64
	FirstSeenMs     uint64
	LastSeenMs      uint64
}

// LearningSnapshot is the on-disk shape of the learning profile.
type LearningSnapshot struct {
	Version      uint16
	TotalQueries uint64
	Weights      LearningWeights
	History      []QueryHistoryEntry
	Feedback     map[string]FeedbackEntry
}

// LearningFormatVersion is the only learning.bin version this codec
// understands; a different version is treated as corrupt.
const LearningFormatVersion uint16 = 1

// EncodeVolumes writes length-prefixed volume records concatenated, per
// the volumes.bin layout.
func EncodeVolumes(records []VolumeRecord) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		writeString(&buf, r.ID)
		writeString(&buf, r.Text)
		writeUint32(&buf, uint32(len(r.Embedding)))
		for _, f := range r.Embedding {
			writeFloat32(&buf, f)
		}
		writeUint64(&buf, r.TimestampMs)
		writeUint32(&buf, uint32(len(r.Metadata)))
		for _, k := range sortedKeys(r.Metadata) {
			writeString(&buf, k)
			writeString(&buf, r.Metadata[k])
		}
	}
	return buf.Bytes()
}

// DecodeVolumes parses the volumes.bin layout. Malformed input returns a
// *liberr.LibraryError of KindStorageCorruption.
func DecodeVolumes(data []byte) ([]VolumeRecord, error) {
	r := bytes.NewReader(data)
	var records []VolumeRecord
	for r.Len() > 0 {
		id, err := readString(r)
		if err != nil {
			return nil, corrupt("volumes.bin", err)
		}
		text, err := readString(r)
		if err != nil {
			return nil, corrupt("volumes.bin", err)
		}
		dim, err := readUint32(r)
		if err != nil {
			return nil, corrupt("volumes.bin", err)
		}
		embedding := make([]float32, dim)
		for i := range embedding {
			embedding[i], err = readFloat32(r)
			if err != nil {
				return nil, corrupt("volumes.bin", err)
			}
		}
		ts, err := readUint64(r)
		if err != nil {
			return nil, corrupt("volumes.bin", err)
		}
		metaCount, err := readUint32(r)
		if err != nil {
			return nil, corrupt("volumes.bin", err)
		}
		meta := make(map[string]string, metaCount)
		for i := uint32(0); i < metaCount; i++ {
			k, err := readString(r)
			if err != nil {
				return nil, corrupt("volumes.bin", err)
			}
			v, err := readString(r)
			if err != nil {
				return nil, corrupt("volumes.bin", err)
			}
			meta[k] = v
		}
		records = append(records, VolumeRecord{
			ID: id, Text: text, Embedding: embedding, TimestampMs: ts, Metadata: meta,
		})
	}
	return records, nil
}

// EncodeAccess writes length-prefixed access-stat records concatenated.
func EncodeAccess(records []AccessRecord) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		writeString(&buf, r.ID)
		writeUint32(&buf, r.Hits)
		writeUint64(&buf, r.LastHitMs)
	}
	return buf.Bytes()
}

// DecodeAccess parses the access.bin layout.
func DecodeAccess(data []byte) ([]AccessRecord, error) {
	r := bytes.NewReader(data)
	var records []AccessRecord
	for r.Len() > 0 {
		id, err := readString(r)
		if err != nil {
			return nil, corrupt("access.bin", err)
		}
		hits, err := readUint32(r)
		if err != nil {
			return nil, corrupt("access.bin", err)
		}
		lastHit, err := readUint64(r)
		if err != nil {
			return nil, corrupt("access.bin", err)
		}
		records = append(records, AccessRecord{ID: id, Hits: hits, LastHitMs: lastHit})
	}
	return records, nil
}

// EncodeTopics writes the topics.bin layout.
func EncodeTopics(snap TopicSnapshot) []byte {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(snap.Topics)))
	for _, t := range snap.Topics {
		writeString(&buf, t.Path)
		writeString(&buf, t.Parent)
		writeUint32(&buf, uint32(len(t.Children)))
		for _, c := range t.Children {
			writeString(&buf, c)
		}
	}
	writeUint32(&buf, uint32(len(snap.Aliases)))
	for _, alias := range sortedKeys(snap.Aliases) {
		writeString(&buf, alias)
		writeString(&buf, snap.Aliases[alias])
	}
	writeUint32(&buf, uint32(len(snap.VolumeTopics)))
	for _, id := range sortedKeys(snap.VolumeTopics) {
		writeString(&buf, id)
		writeString(&buf, snap.VolumeTopics[id])
	}
	return buf.Bytes()
}

// DecodeTopics parses the topics.bin layout.
func DecodeTopics(data []byte) (TopicSnapshot, error) {
	r := bytes.NewReader(data)
	var snap TopicSnapshot

	topicCount, err := readUint32(r)
	if err != nil {
		return snap, corrupt("topics.bin", err)
	}
	snap.Topics = make([]TopicEntry, 0, topicCount)
	for i := uint32(0); i < topicCount; i++ {
		path, err := readString(r)
		if err != nil {
			return snap, corrupt("topics.bin", err)
		}
		parent, err := readString(r)
		if err != nil {
			return snap, corrupt("topics.bin", err)
		}
		childCount, err := readUint32(r)
		if err != nil {
			return snap, corrupt("topics.bin", err)
		}
		var children []string
		if childCount > 0 {
			children = make([]string, childCount)
		}
		for j := range children {
			children[j], err = readString(r)
			if err != nil {
				return snap, corrupt("topics.bin", err)
			}
		}
		snap.Topics = append(snap.Topics, TopicEntry{Path: path, Parent: parent, Children: children})
	}

	aliasCount, err := readUint32(r)
	if err != nil {
		return snap, corrupt("topics.bin", err)
	}
	snap.Aliases = make(map[string]string, aliasCount)
	for i := uint32(0); i < aliasCount; i++ {
		alias, err := readString(r)
		if err != nil {
			return snap, corrupt("topics.bin", err)
		}
		canon, err := readString(r)
		if err != nil {
			return snap, corrupt("topics.bin", err)
		}
		snap.Aliases[alias] = canon
	}

	volCount, err := readUint32(r)
	if err != nil {
		return snap, corrupt("topics.bin", err)
	}
	snap.VolumeTopics = make(map[string]string, volCount)
	for i := uint32(0); i < volCount; i++ {
		id, err := readString(r)
		if err != nil {
			return snap, corrupt("topics.bin", err)
		}
		topic, err := readString(r)
		if err != nil {
			return snap, corrupt("topics.bin", err)
		}
		snap.VolumeTopics[id] = topic
	}
	return snap, nil
}

// EncodeLearning writes the learning.bin layout.
func EncodeLearning(snap LearningSnapshot) []byte {
	var buf bytes.Buffer
	writeUint16(&buf, LearningFormatVersion)
	writeUint64(&buf, snap.TotalQueries)
	writeFloat32(&buf, snap.Weights.Vector)
	writeFloat32(&buf, snap.Weights.Recency)
	writeFloat32(&buf, snap.Weights.Frequency)
	writeFloat32(&buf, snap.Weights.Text)

	writeUint32(&buf, uint32(len(snap.History)))
	for _, h := range snap.History {
		writeUint32(&buf, uint32(len(h.Embedding)))
		for _, f := range h.Embedding {
			writeFloat32(&buf, f)
		}
		writeUint32(&buf, uint32(len(h.RetrievedIDs)))
		for _, id := range h.RetrievedIDs {
			writeString(&buf, id)
		}
	}

	writeUint32(&buf, uint32(len(snap.Feedback)))
	for _, id := range sortedKeys(snap.Feedback) {
		f := snap.Feedback[id]
		writeString(&buf, id)
		writeUint64(&buf, f.TotalRetrievals)
		writeUint64(&buf, f.QueryCount)
		writeUint64(&buf, f.FirstSeenMs)
		writeUint64(&buf, f.LastSeenMs)
	}
	return buf.Bytes()
}

// DecodeLearning parses the learning.bin layout. A version mismatch is
// reported as storage corruption, which callers treat as an empty
// profile.
func DecodeLearning(data []byte) (LearningSnapshot, error) {
	r := bytes.NewReader(data)
	var snap LearningSnapshot

	version, err := readUint16(r)
	if err != nil {
		return snap, corrupt("learning.bin", err)
	}
	if version != LearningFormatVersion {
		return snap, liberr.New(liberr.KindStorageCorruption, liberr.CodeStorageCorruption,
			fmt.Sprintf("unsupported learning.bin version %d", version), nil)
	}
	snap.Version = version

	snap.TotalQueries, err = readUint64(r)
	if err != nil {
		return snap, corrupt("learning.bin", err)
	}

	if snap.Weights.Vector, err = readFloat32(r); err != nil {
		return snap, corrupt("learning.bin", err)
	}
	if snap.Weights.Recency, err = readFloat32(r); err != nil {
		return snap, corrupt("learning.bin", err)
	}
	if snap.Weights.Frequency, err = readFloat32(r); err != nil {
		return snap, corrupt("learning.bin", err)
	}
	if snap.Weights.Text, err = readFloat32(r); err != nil {
		return snap, corrupt("learning.bin", err)
	}

	historyLen, err := readUint32(r)
	if err != nil {
		return snap, corrupt("learning.bin", err)
	}
	snap.History = make([]QueryHistoryEntry, 0, historyLen)
	for i := uint32(0); i < historyLen; i++ {
		dim, err := readUint32(r)
		if err != nil {
			return snap, corrupt("learning.bin", err)
		}
		embedding := make([]float32, dim)
		for j := range embedding {
			embedding[j], err = readFloat32(r)
			if err != nil {
				return snap, corrupt("learning.bin", err)
			}
		}
		idCount, err := readUint32(r)
		if err != nil {
			return snap, corrupt("learning.bin", err)
		}
		ids := make([]string, idCount)
		for j := range ids {
			ids[j], err = readString(r)
			if err != nil {
				return snap, corrupt("learning.bin", err)
			}
		}
		snap.History = append(snap.History, QueryHistoryEntry{Embedding: embedding, RetrievedIDs: ids})
	}

	feedbackCount, err := readUint32(r)
	if err != nil {
		return snap, corrupt("learning.bin", err)
	}
	snap.Feedback = make(map[string]FeedbackEntry, feedbackCount)
	for i := uint32(0); i < feedbackCount; i++ {
		id, err := readString(r)
		if err != nil {
			return snap, corrupt("learning.bin", err)
		}
		var f FeedbackEntry
		if f.TotalRetrievals, err = readUint64(r); err != nil {
			return snap, corrupt("learning.bin", err)
		}
		if f.QueryCount, err = readUint64(r); err != nil {
			return snap, corrupt("learning.bin", err)
		}
		if f.FirstSeenMs, err = readUint64(r); err != nil {
			return snap, corrupt("learning.bin", err)
		}
		if f.LastSeenMs, err = readUint64(r); err != nil {
			return snap, corrupt("learning.bin", err)
		}
		snap.Feedback[id] = f
	}
	return snap, nil
}

func corrupt(stream string, cause error) error {
	return liberr.New(liberr.KindStorageCorruption, liberr.CodeStorageCorruption,
		fmt.Sprintf("corrupt %s stream", stream), cause)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- primitive wire helpers ---

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeFloat32(buf *bytes.Buffer, f float32) {
	writeUint32(buf, math.Float32bits(f))
}

func readFloat32(r *bytes.Reader) (float32, error) {
	bits, err := readUint32(r)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}
