package desk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patronlib/librarystack/pkg/librarian"
)

func toLibrarianViews(views []VolumeView) []librarian.VolumeView {
	out := make([]librarian.VolumeView, len(views))
	for i, v := range views {
		out[i] = librarian.VolumeView{ID: v.ID, Text: v.Text, Metadata: v.Metadata, TimestampMs: v.TimestampMs}
	}
	return out
}

func nowMs() int64 { return time.Now().UnixMilli() }

// handleExtraction runs a single extraction job: pull memory candidates
// out of one user-input/response exchange, embed and store each
// non-duplicate one, then run auto-escalation.
func (d *Desk) handleExtraction(ctx context.Context, job Job) error {
	lib := d.lib
	if d.registry != nil {
		resolved, err := d.registry.ResolveLibrarian(ctx, job.UserInput+"\n"+job.Response, job.Topic, countByTopicView{d.callbacks.CountByTopic})
		if err == nil && resolved != nil {
			lib = resolved
		}
	}
	if lib == nil {
		return fmt.Errorf("desk: no librarian available for extraction")
	}

	result, err := lib.Extract(ctx, job.UserInput, job.Response)
	if err != nil {
		return fmt.Errorf("desk: extraction failed: %w", err)
	}

	stored := 0
	for _, mem := range result.Memories {
		embedding, err := d.callbacks.Embed(ctx, mem.Text)
		if err != nil {
			return fmt.Errorf("desk: embedding failed during extraction: %w", err)
		}
		if dup, _ := d.callbacks.CheckDuplicate(embedding); dup {
			continue
		}
		metadata := map[string]string{
			"topic":     mem.Topic,
			"entryType": mem.EntryType,
		}
		if len(mem.Tags) > 0 {
			metadata["tags"] = joinStrings(mem.Tags)
		}
		if _, err := d.callbacks.AddVolume(mem.Text, embedding, metadata); err != nil {
			return fmt.Errorf("desk: add volume failed during extraction: %w", err)
		}
		stored++
	}

	d.autoEscalate(job.Topic, stored)
	return nil
}

// autoEscalate runs the post-extraction checks: per-topic and global
// volume-count thresholds enqueue an Optimization job; a complexity
// threshold on the batch just stored asks the Registry to spawn a topic
// specialist.
func (d *Desk) autoEscalate(topic string, storedThisBatch int) {
	if topic != "" && d.callbacks.CountByTopic != nil {
		if n := d.callbacks.CountByTopic(topic); n >= d.cfg.Optimization.TopicThreshold && d.cfg.Optimization.TopicThreshold > 0 {
			d.Enqueue(Job{Kind: KindOptimization, EnqueuedAtMs: nowMs(), Topic: topic, ModelID: d.cfg.Optimization.ModelID})
		}
	}
	if d.callbacks.TotalCount != nil && d.cfg.Optimization.GlobalThreshold > 0 {
		if d.callbacks.TotalCount() >= d.cfg.Optimization.GlobalThreshold && d.callbacks.MostPopulousTopic != nil {
			if busiest, n := d.callbacks.MostPopulousTopic(); n > 0 {
				d.Enqueue(Job{Kind: KindOptimization, EnqueuedAtMs: nowMs(), Topic: busiest, ModelID: d.cfg.Optimization.ModelID})
			}
		}
	}
	if d.registry != nil && d.callbacks.SpawnSpecialist != nil && d.cfg.Spawning.ComplexityThreshold > 0 {
		if storedThisBatch >= d.cfg.Spawning.ComplexityThreshold {
			d.callbacks.SpawnSpecialist(topic)
		}
	}
}

// handleCompendium condenses every volume under job.Topic into a single
// compendium entry once the topic holds at least MinEntries volumes and
// its oldest member is at least MinAgeMs old.
func (d *Desk) handleCompendium(ctx context.Context, job Job) error {
	volumes := d.callbacks.VolumesByTopic(job.Topic)
	if len(volumes) < d.cfg.Compendium.MinEntries {
		return nil
	}
	oldest := oldestTimestamp(volumes)
	if nowMs()-oldest < d.cfg.Compendium.MinAgeMs {
		return nil
	}

	result, err := d.lib.Summarize(ctx, toLibrarianViews(volumes), job.Topic)
	if err != nil {
		return fmt.Errorf("desk: compendium summarize failed: %w", err)
	}
	if result.Summary == "" {
		return nil
	}

	embedding, err := d.callbacks.Embed(ctx, result.Summary)
	if err != nil {
		return fmt.Errorf("desk: embedding failed during compendium: %w", err)
	}
	if _, err := d.callbacks.AddVolume(result.Summary, embedding, map[string]string{
		"topic":     job.Topic,
		"entryType": "compendium",
	}); err != nil {
		return fmt.Errorf("desk: add volume failed during compendium: %w", err)
	}

	if d.cfg.Compendium.DeleteOriginals {
		for _, v := range volumes {
			d.callbacks.DeleteVolume(v.ID)
		}
	}
	return nil
}

// handleOptimization prunes, summarizes, and reorganizes the volumes
// under job.Topic in a single pass.
func (d *Desk) handleOptimization(ctx context.Context, job Job) error {
	volumes := d.callbacks.VolumesByTopic(job.Topic)
	result, err := d.lib.Optimize(ctx, toLibrarianViews(volumes), job.Topic, job.ModelID)
	if err != nil {
		return fmt.Errorf("desk: optimize failed: %w", err)
	}

	for _, id := range result.Pruned {
		d.callbacks.DeleteVolume(id)
	}
	if result.Summary != "" {
		embedding, err := d.callbacks.Embed(ctx, result.Summary)
		if err != nil {
			return fmt.Errorf("desk: embedding failed during optimization: %w", err)
		}
		if _, err := d.callbacks.AddVolume(result.Summary, embedding, map[string]string{
			"topic":     job.Topic,
			"entryType": "compendium",
		}); err != nil {
			return fmt.Errorf("desk: add volume failed during optimization: %w", err)
		}
	}
	d.applyReorganization(result.Reorganization)
	return nil
}

// handleReorganization applies a reorganization plan for job.Topic
// without pruning or summarizing anything.
func (d *Desk) handleReorganization(ctx context.Context, job Job) error {
	volumes := d.callbacks.VolumesByTopic(job.Topic)
	plan, err := d.lib.Reorganize(ctx, job.Topic, toLibrarianViews(volumes))
	if err != nil {
		return fmt.Errorf("desk: reorganize failed: %w", err)
	}
	d.applyReorganization(plan)
	return nil
}

func (d *Desk) applyReorganization(plan librarian.ReorganizationPlan) {
	for _, topic := range plan.NewSubtopics {
		d.callbacks.EnsureTopic(topic)
	}
	for _, move := range plan.Moves {
		if err := d.callbacks.RelocateVolume(move.VolumeID, move.NewTopic); err != nil {
			d.logger.Warn("desk: relocate failed during reorganization",
				slog.String("volumeId", move.VolumeID), slog.String("newTopic", move.NewTopic), slog.Any("error", err))
		}
	}
	for _, merge := range plan.Merges {
		d.callbacks.MergeTopic(merge.Source, merge.Target)
	}
}

func oldestTimestamp(volumes []VolumeView) int64 {
	if len(volumes) == 0 {
		return nowMs()
	}
	oldest := volumes[0].TimestampMs
	for _, v := range volumes[1:] {
		if v.TimestampMs < oldest {
			oldest = v.TimestampMs
		}
	}
	return oldest
}

func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

type countByTopicView struct {
	fn func(string) int
}

func (c countByTopicView) CountByTopic(topic string) int {
	if c.fn == nil {
		return 0
	}
	return c.fn(topic)
}
