package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/storyline/internal/model"
	"github.com/ppiankov/storyline/internal/reconcile"
	"github.com/ppiankov/storyline/internal/store"
)

// RunStoryPass groups the current events one level up. Flat clusters are
// cut at the looser story threshold over the same article nodes, then each
// cluster is mapped to the set of events its nodes belong to; a visited set
// ensures every event lands in exactly one candidate, so the groups form a
// partition over story-eligible events.
func (l *Lifecycle) RunStoryPass(ctx context.Context) (*PassResult, error) {
	res := &PassResult{}

	events, err := l.store.ActiveEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active events: %w", err)
	}
	nodeEvent := make(map[int]string)
	for _, ev := range events {
		for _, n := range ev.MemberNodes {
			nodeEvent[n] = ev.ID
		}
	}

	clusters := l.hier.Clusters(l.cfg.Clusters.StoryThreshold)
	visited := make(map[string]bool, len(events))
	var fresh [][]string
	for _, cluster := range clusters {
		var group []string
		for _, n := range cluster {
			id, ok := nodeEvent[n]
			if !ok || visited[id] {
				continue
			}
			visited[id] = true
			group = append(group, id)
		}
		if len(group) >= l.cfg.Clusters.MinStoryMembers {
			sort.Strings(group)
			fresh = append(fresh, group)
		}
	}

	stories, err := l.store.ActiveStories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active stories: %w", err)
	}
	existing := make([]reconcile.Existing[string], len(stories))
	for i, st := range stories {
		existing[i] = reconcile.Existing[string]{ID: st.ID, Members: st.EventIDs}
	}

	triage, err := reconcile.Triage(existing, fresh)
	if err != nil {
		return nil, fmt.Errorf("triage stories: %w", err)
	}

	changes := &store.StoryChanges{}
	for _, group := range triage.Create {
		st, err := l.newStory(ctx, group)
		if err != nil {
			l.log.Warn("skipping story creation", "members", len(group), "error", err)
			continue
		}
		changes.Create = append(changes.Create, st)
	}

	now := l.Now()
	unchanged := make(map[string]bool, len(triage.Unchanged))
	for _, id := range triage.Unchanged {
		unchanged[id] = true
	}
	for _, st := range stories {
		if members, ok := triage.Update[st.ID]; ok {
			if err := l.refreshStory(ctx, st, members, now); err != nil {
				l.log.Warn("skipping story update", "story", st.ID, "error", err)
				continue
			}
			changes.Update = append(changes.Update, st)
			continue
		}
		// Member nodes belong to the events, so a stale story is only
		// deactivated, never pruned from the index.
		if unchanged[st.ID] && now.Sub(st.UpdatedAt) > l.cfg.Clusters.Staleness {
			changes.Deactivate = append(changes.Deactivate, st.ID)
		}
	}
	changes.Delete = triage.Delete

	if err := l.store.ApplyStoryChanges(ctx, changes); err != nil {
		return nil, fmt.Errorf("apply story changes: %w", err)
	}
	if err := l.saveHierarchy(); err != nil {
		return nil, err
	}

	res.Created = len(changes.Create)
	res.Updated = len(changes.Update)
	res.Deleted = len(changes.Delete)
	res.Deactivated = len(changes.Deactivate)
	res.Unchanged = len(triage.Unchanged) - len(changes.Deactivate)
	l.log.Info("story pass complete",
		"created", res.Created, "updated", res.Updated, "deleted", res.Deleted,
		"deactivated", res.Deactivated, "unchanged", res.Unchanged)
	return res, nil
}

func (l *Lifecycle) newStory(ctx context.Context, eventIDs []string) (*model.Story, error) {
	now := l.Now()
	st := &model.Story{
		Cluster: model.Cluster{
			ID:        newClusterID(),
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := l.deriveStory(ctx, st, eventIDs); err != nil {
		return nil, err
	}
	return st, nil
}

func (l *Lifecycle) refreshStory(ctx context.Context, st *model.Story, eventIDs []string, now time.Time) error {
	if err := l.deriveStory(ctx, st, eventIDs); err != nil {
		return err
	}
	st.UpdatedAt = now
	st.Score = l.scorer.Score(st.RawScore, st.UpdatedAt)
	return nil
}

// deriveStory recomputes a story's membership and member-derived fields
// from its event set. Summaries feed the multi-text summarizer so the
// story abstract covers every member, not just the first.
func (l *Lifecycle) deriveStory(ctx context.Context, st *model.Story, eventIDs []string) error {
	events, err := l.store.EventsByIDs(ctx, eventIDs)
	if err != nil {
		return fmt.Errorf("load member events: %w", err)
	}
	if len(events) == 0 {
		return fmt.Errorf("no stored events for group")
	}

	st.EventIDs = make([]string, len(events))
	docs := make([]model.Doc, len(events))
	titles := make([]string, len(events))
	texts := make([]string, len(events))
	var raw float64
	for i, ev := range events {
		st.EventIDs[i] = ev.ID
		docs[i] = ev.Doc()
		titles[i] = ev.Title
		if ev.Summary != "" {
			texts[i] = ev.Summary
		} else {
			texts[i] = ev.Text
		}
		raw += ev.RawScore
	}
	sort.Strings(st.EventIDs)

	title, image := l.titleAndImage(docs, titles)
	if title != "" {
		st.Title = title
	}
	if image != "" {
		st.Image = image
	}
	st.Text = joinNonEmpty(titles)
	if summary, ok := l.summarize(ctx, texts); ok {
		st.Summary = summary
	}
	st.Concepts = l.aggregateConcepts(ctx, docs)
	st.RawScore = raw
	st.Score = l.scorer.Score(st.RawScore, st.UpdatedAt)
	return nil
}
