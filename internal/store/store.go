// Package store provides the persistent relational layer for articles,
// events, and stories.
//
// Store is the source of truth for domain entities. The hierarchy snapshot
// and these tables form one unit of consistency: a clustering pass holds
// an external lock, mutates both, and commits reconciliation batches in
// per-chunk transactions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/storyline/internal/model"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// Store handles persistence of articles, events, and stories.
type Store struct {
	db  *sql.DB
	log *log.Logger
}

// NewStore creates a SQLite store at the given path. The database is
// created if it doesn't exist and migrations are applied automatically.
func NewStore(path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrent read access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if logger == nil {
		logger = log.Default()
	}
	s := &Store{db: db, log: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		text TEXT NOT NULL,
		image TEXT,
		score REAL NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		node_id INTEGER,
		event_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_articles_node ON articles(node_id);
	CREATE INDEX IF NOT EXISTS idx_articles_event ON articles(event_id);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		active INTEGER NOT NULL DEFAULT 1,
		raw_score REAL NOT NULL DEFAULT 0,
		score REAL NOT NULL DEFAULT 0,
		title TEXT,
		summary TEXT,
		image TEXT,
		text TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS event_members (
		event_id TEXT NOT NULL,
		article_id TEXT NOT NULL,
		pos INTEGER NOT NULL,
		PRIMARY KEY (event_id, article_id)
	);

	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		active INTEGER NOT NULL DEFAULT 1,
		raw_score REAL NOT NULL DEFAULT 0,
		score REAL NOT NULL DEFAULT 0,
		title TEXT,
		summary TEXT,
		image TEXT,
		text TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS story_members (
		story_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		pos INTEGER NOT NULL,
		PRIMARY KEY (story_id, event_id)
	);

	CREATE TABLE IF NOT EXISTS concepts (
		owner_id TEXT NOT NULL,
		concept TEXT NOT NULL,
		score REAL NOT NULL,
		PRIMARY KEY (owner_id, concept)
	);
	CREATE INDEX IF NOT EXISTS idx_concepts_concept ON concepts(concept);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// SaveArticles upserts a batch of articles and their concept associations
// in one transaction.
func (s *Store) SaveArticles(ctx context.Context, articles []*model.Article) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, a := range articles {
		var node sql.NullInt64
		if a.NodeID != nil {
			node = sql.NullInt64{Int64: int64(*a.NodeID), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO articles (id, title, text, image, score, created_at, updated_at, node_id, event_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title=excluded.title, text=excluded.text, image=excluded.image,
				score=excluded.score, updated_at=excluded.updated_at`,
			a.ID, a.Title, a.Text, a.Image, a.Score,
			a.CreatedAt.Unix(), a.UpdatedAt.Unix(), node, a.EventID)
		if err != nil {
			return fmt.Errorf("upsert article %s: %w", a.ID, err)
		}
		if err = saveConcepts(ctx, tx, a.ID, a.Concepts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UnclusteredArticles returns up to limit articles not yet inserted into
// the hierarchy, oldest first.
func (s *Store) UnclusteredArticles(ctx context.Context, limit int) ([]*model.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, text, image, score, created_at, updated_at, node_id, event_id
		FROM articles WHERE node_id IS NULL
		ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unclustered articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(ctx, s.db, rows)
}

// ArticlesByIDs returns the articles with the given ids, in id-sorted
// order. Missing ids are simply absent from the result.
func (s *Store) ArticlesByIDs(ctx context.Context, ids []string) ([]*model.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, title, text, image, score, created_at, updated_at, node_id, event_id
		FROM articles WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(ctx, s.db, rows)
}

// SetArticleNodes records the hierarchy node id assigned to each article
// at insertion, in one transaction (the durable chunk boundary for the
// fitting phase).
func (s *Store) SetArticleNodes(ctx context.Context, nodes map[string]int) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for id, node := range nodes {
		if _, err = tx.ExecContext(ctx,
			`UPDATE articles SET node_id = ? WHERE id = ?`, node, id); err != nil {
			return fmt.Errorf("set node for article %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ResetArticleNodes clears every node id at or above bound, returning the
// number of articles reset. Node ids are assigned monotonically, so ids
// the loaded hierarchy has never handed out belong to a run whose snapshot
// save failed; clearing them puts the articles back in the unclustered set
// for re-fitting.
func (s *Store) ResetArticleNodes(ctx context.Context, bound int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET node_id = NULL WHERE node_id >= ?`, bound)
	if err != nil {
		return 0, fmt.Errorf("reset article nodes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset article nodes: %w", err)
	}
	return int(n), nil
}

// CountArticles returns the total number of stored articles.
func (s *Store) CountArticles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// Commonness returns how generic a concept is across the article corpus:
// the fraction of articles associated with it, in [0,1]. An empty corpus
// yields 0.
func (s *Store) Commonness(ctx context.Context, concept string) (float64, error) {
	total, err := s.CountArticles(ctx)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	var n int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM concepts c
		JOIN articles a ON a.id = c.owner_id
		WHERE c.concept = ?`, concept).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count concept frequency: %w", err)
	}
	return float64(n) / float64(total), nil
}

func scanArticles(ctx context.Context, db *sql.DB, rows *sql.Rows) ([]*model.Article, error) {
	var articles []*model.Article
	for rows.Next() {
		a := &model.Article{}
		var created, updated int64
		var node sql.NullInt64
		var image, eventID sql.NullString
		if err := rows.Scan(&a.ID, &a.Title, &a.Text, &image, &a.Score,
			&created, &updated, &node, &eventID); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.Image = image.String
		a.EventID = eventID.String
		a.CreatedAt = time.Unix(created, 0).UTC()
		a.UpdatedAt = time.Unix(updated, 0).UTC()
		if node.Valid {
			a.SetNode(int(node.Int64))
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}

	for _, a := range articles {
		assocs, err := loadConcepts(ctx, db, a.ID)
		if err != nil {
			return nil, err
		}
		a.Concepts = assocs
	}
	return articles, nil
}

func saveConcepts(ctx context.Context, tx *sql.Tx, owner string, assocs []model.ConceptAssociation) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM concepts WHERE owner_id = ?`, owner); err != nil {
		return fmt.Errorf("clear concepts for %s: %w", owner, err)
	}
	for _, a := range assocs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO concepts (owner_id, concept, score) VALUES (?, ?, ?)`,
			owner, a.Concept, a.Score); err != nil {
			return fmt.Errorf("insert concept %q for %s: %w", a.Concept, owner, err)
		}
	}
	return nil
}

func loadConcepts(ctx context.Context, db *sql.DB, owner string) ([]model.ConceptAssociation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT concept, score FROM concepts WHERE owner_id = ? ORDER BY score DESC, concept`, owner)
	if err != nil {
		return nil, fmt.Errorf("query concepts for %s: %w", owner, err)
	}
	defer rows.Close()

	var assocs []model.ConceptAssociation
	for rows.Next() {
		var a model.ConceptAssociation
		if err := rows.Scan(&a.Concept, &a.Score); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		assocs = append(assocs, a)
	}
	return assocs, rows.Err()
}

func placeholders(n int) string {
	out := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
