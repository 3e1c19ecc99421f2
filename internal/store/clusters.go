package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/storyline/internal/model"
)

// EventChanges is one reconciliation batch for events, applied in a single
// transaction. Deletions run after creations and updates so articles
// migrating out of a dying event have already been reassigned.
type EventChanges struct {
	Create     []*model.Event
	Update     []*model.Event
	Deactivate []string
	Delete     []string
}

// StoryChanges is the story-level counterpart of EventChanges.
type StoryChanges struct {
	Create     []*model.Story
	Update     []*model.Story
	Deactivate []string
	Delete     []string
}

// ActiveEvents returns all active events with members and concepts loaded,
// ordered by creation time then id. That order is what the reconciler
// iterates, so it decides which event wins a contested cluster.
func (s *Store) ActiveEvents(ctx context.Context) ([]*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, active, raw_score, score, title, summary, image, text, created_at, updated_at
		FROM events WHERE active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query active events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := s.loadEventMembers(ctx, ev); err != nil {
			return nil, err
		}
		if ev.Concepts, err = loadConcepts(ctx, s.db, ev.ID); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// EventsByIDs returns the events with the given ids, members and concepts
// loaded, in id-sorted order.
func (s *Store) EventsByIDs(ctx context.Context, ids []string) ([]*model.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, active, raw_score, score, title, summary, image, text, created_at, updated_at
		FROM events WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := s.loadEventMembers(ctx, ev); err != nil {
			return nil, err
		}
		if ev.Concepts, err = loadConcepts(ctx, s.db, ev.ID); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// TopEvents returns up to limit active events ordered by cached score,
// highest first.
func (s *Store) TopEvents(ctx context.Context, limit int) ([]*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, active, raw_score, score, title, summary, image, text, created_at, updated_at
		FROM events WHERE active = 1 ORDER BY score DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ApplyEventChanges commits one reconciliation batch atomically: creates,
// then updates, then deactivations, then deletions last.
func (s *Store) ApplyEventChanges(ctx context.Context, ch *EventChanges) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, ev := range ch.Create {
		if err = writeEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	for _, ev := range ch.Update {
		if err = writeEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	for _, id := range ch.Deactivate {
		if _, err = tx.ExecContext(ctx, `UPDATE events SET active = 0 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deactivate event %s: %w", id, err)
		}
	}
	for _, id := range ch.Delete {
		if err = deleteEvent(ctx, tx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ActiveStories returns all active stories with members and concepts
// loaded, ordered by creation time then id.
func (s *Store) ActiveStories(ctx context.Context) ([]*model.Story, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, active, raw_score, score, title, summary, image, text, created_at, updated_at
		FROM stories WHERE active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query active stories: %w", err)
	}
	defer rows.Close()

	var stories []*model.Story
	for rows.Next() {
		st := &model.Story{}
		if err := scanCluster(rows, &st.Cluster); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}

	for _, st := range stories {
		if err := s.loadStoryMembers(ctx, st); err != nil {
			return nil, err
		}
		if st.Concepts, err = loadConcepts(ctx, s.db, st.ID); err != nil {
			return nil, err
		}
	}
	return stories, nil
}

// ApplyStoryChanges commits one story reconciliation batch atomically,
// deletions last.
func (s *Store) ApplyStoryChanges(ctx context.Context, ch *StoryChanges) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, st := range ch.Create {
		if err = writeStory(ctx, tx, st); err != nil {
			return err
		}
	}
	for _, st := range ch.Update {
		if err = writeStory(ctx, tx, st); err != nil {
			return err
		}
	}
	for _, id := range ch.Deactivate {
		if _, err = tx.ExecContext(ctx, `UPDATE stories SET active = 0 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deactivate story %s: %w", id, err)
		}
	}
	for _, id := range ch.Delete {
		if err = deleteStory(ctx, tx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func writeEvent(ctx context.Context, tx *sql.Tx, ev *model.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, active, raw_score, score, title, summary, image, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			active=excluded.active, raw_score=excluded.raw_score, score=excluded.score,
			title=excluded.title, summary=excluded.summary, image=excluded.image,
			text=excluded.text, updated_at=excluded.updated_at`,
		ev.ID, boolInt(ev.Active), ev.RawScore, ev.Score, ev.Title, ev.Summary,
		ev.Image, ev.Text, ev.CreatedAt.Unix(), ev.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", ev.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_members WHERE event_id = ?`, ev.ID); err != nil {
		return fmt.Errorf("clear event members %s: %w", ev.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE articles SET event_id = '' WHERE event_id = ?`, ev.ID); err != nil {
		return fmt.Errorf("unassign articles of event %s: %w", ev.ID, err)
	}
	for pos, articleID := range ev.ArticleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_members (event_id, article_id, pos) VALUES (?, ?, ?)`,
			ev.ID, articleID, pos); err != nil {
			return fmt.Errorf("insert event member %s/%s: %w", ev.ID, articleID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE articles SET event_id = ? WHERE id = ?`, ev.ID, articleID); err != nil {
			return fmt.Errorf("assign article %s to event %s: %w", articleID, ev.ID, err)
		}
	}
	return saveConcepts(ctx, tx, ev.ID, ev.Concepts)
}

func deleteEvent(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE articles SET event_id = '' WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("unassign articles of event %s: %w", id, err)
	}
	for _, q := range []string{
		`DELETE FROM event_members WHERE event_id = ?`,
		`DELETE FROM concepts WHERE owner_id = ?`,
		`DELETE FROM events WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete event %s: %w", id, err)
		}
	}
	return nil
}

func writeStory(ctx context.Context, tx *sql.Tx, st *model.Story) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stories (id, active, raw_score, score, title, summary, image, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			active=excluded.active, raw_score=excluded.raw_score, score=excluded.score,
			title=excluded.title, summary=excluded.summary, image=excluded.image,
			text=excluded.text, updated_at=excluded.updated_at`,
		st.ID, boolInt(st.Active), st.RawScore, st.Score, st.Title, st.Summary,
		st.Image, st.Text, st.CreatedAt.Unix(), st.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert story %s: %w", st.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM story_members WHERE story_id = ?`, st.ID); err != nil {
		return fmt.Errorf("clear story members %s: %w", st.ID, err)
	}
	for pos, eventID := range st.EventIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO story_members (story_id, event_id, pos) VALUES (?, ?, ?)`,
			st.ID, eventID, pos); err != nil {
			return fmt.Errorf("insert story member %s/%s: %w", st.ID, eventID, err)
		}
	}
	return saveConcepts(ctx, tx, st.ID, st.Concepts)
}

func deleteStory(ctx context.Context, tx *sql.Tx, id string) error {
	for _, q := range []string{
		`DELETE FROM story_members WHERE story_id = ?`,
		`DELETE FROM concepts WHERE owner_id = ?`,
		`DELETE FROM stories WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete story %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) loadEventMembers(ctx context.Context, ev *model.Event) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.article_id, a.node_id
		FROM event_members m
		JOIN articles a ON a.id = m.article_id
		WHERE m.event_id = ? ORDER BY m.pos`, ev.ID)
	if err != nil {
		return fmt.Errorf("query event members %s: %w", ev.ID, err)
	}
	defer rows.Close()

	ev.ArticleIDs = nil
	ev.MemberNodes = nil
	for rows.Next() {
		var articleID string
		var node sql.NullInt64
		if err := rows.Scan(&articleID, &node); err != nil {
			return fmt.Errorf("scan event member: %w", err)
		}
		ev.ArticleIDs = append(ev.ArticleIDs, articleID)
		if node.Valid {
			ev.MemberNodes = append(ev.MemberNodes, int(node.Int64))
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate event members: %w", err)
	}
	sort.Ints(ev.MemberNodes)
	return nil
}

func (s *Store) loadStoryMembers(ctx context.Context, st *model.Story) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id FROM story_members WHERE story_id = ? ORDER BY pos`, st.ID)
	if err != nil {
		return fmt.Errorf("query story members %s: %w", st.ID, err)
	}
	defer rows.Close()

	st.EventIDs = nil
	for rows.Next() {
		var eventID string
		if err := rows.Scan(&eventID); err != nil {
			return fmt.Errorf("scan story member: %w", err)
		}
		st.EventIDs = append(st.EventIDs, eventID)
	}
	return rows.Err()
}

type clusterRows interface {
	Scan(dest ...interface{}) error
}

func scanCluster(rows clusterRows, c *model.Cluster) error {
	var active int
	var created, updated int64
	var title, summary, image, text sql.NullString
	if err := rows.Scan(&c.ID, &active, &c.RawScore, &c.Score,
		&title, &summary, &image, &text, &created, &updated); err != nil {
		return err
	}
	c.Active = active != 0
	c.Title = title.String
	c.Summary = summary.String
	c.Image = image.String
	c.Text = text.String
	c.CreatedAt = time.Unix(created, 0).UTC()
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		ev := &model.Event{}
		if err := scanCluster(rows, &ev.Cluster); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
