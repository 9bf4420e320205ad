package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"kbsearch/internal/domain"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS faq_articles (
    article_id   TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    content      TEXT NOT NULL,
    url          TEXT,
    last_updated TEXT,
    embedding    BLOB,
    created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS chat_history (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT,
    user_message TEXT,
    bot_response TEXT,
    timestamp    TEXT
);
CREATE TABLE IF NOT EXISTS kb_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// SQLiteStore keeps the article table in the layout the chatbot has always
// used: one row per article with the embedding as a raw float32 blob column.
type SQLiteStore struct {
	db  *sql.DB
	dim int
}

// NewSQLiteStore opens (or creates) the database at dsn. Pass ":memory:" for
// a throwaway database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *SQLiteStore) Upsert(ctx context.Context, article domain.Article) error {
	if article.ID == "" {
		return fmt.Errorf("article id is empty")
	}

	// SET expressions see the pre-update row, so the CASE compares old text
	// against the incoming text.
	_, err := s.db.ExecContext(ctx, `
INSERT INTO faq_articles (article_id, title, content, url, last_updated)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(article_id) DO UPDATE SET
    embedding = CASE
        WHEN faq_articles.title = excluded.title AND faq_articles.content = excluded.content
        THEN faq_articles.embedding
        ELSE NULL
    END,
    title = excluded.title,
    content = excluded.content,
    url = excluded.url,
    last_updated = excluded.last_updated`,
		article.ID, article.Title, article.Content, article.URL, formatTime(article.LastUpdated))
	return err
}

func (s *SQLiteStore) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	var (
		a       domain.Article
		url     sql.NullString
		updated sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT article_id, title, content, url, last_updated FROM faq_articles WHERE article_id = ?`, id,
	).Scan(&a.ID, &a.Title, &a.Content, &url, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, domain.NotFoundError(id)
	}
	if err != nil {
		return domain.Article{}, err
	}
	a.URL = url.String
	a.LastUpdated = parseTime(updated)
	return a, nil
}

func (s *SQLiteStore) SetEmbedding(ctx context.Context, id string, vector []float32) error {
	if err := checkDimension(s.dim, vector); err != nil {
		return fmt.Errorf("article %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE faq_articles SET embedding = ? WHERE article_id = ?`, EncodeVector(vector), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundError(id)
	}
	return tx.Commit()
}

func (s *SQLiteStore) AllWithEmbeddings(ctx context.Context) ([]domain.EmbeddedArticle, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT article_id, title, content, url, last_updated, embedding
FROM faq_articles
WHERE embedding IS NOT NULL
ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.EmbeddedArticle
	for rows.Next() {
		var (
			a       domain.Article
			url     sql.NullString
			updated sql.NullString
			blob    []byte
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &url, &updated, &blob); err != nil {
			return nil, err
		}
		a.URL = url.String
		a.LastUpdated = parseTime(updated)

		vec, err := DecodeVector(blob, s.dim)
		if err != nil {
			return nil, fmt.Errorf("article %s: %w", a.ID, err)
		}
		if len(vec) == 0 {
			continue
		}
		items = append(items, domain.EmbeddedArticle{Article: a, Vector: vec})
	}
	return items, rows.Err()
}

func (s *SQLiteStore) CountArticles(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM faq_articles`)
}

func (s *SQLiteStore) CountEmbedded(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM faq_articles WHERE embedding IS NOT NULL`)
}

func (s *SQLiteStore) CountChats(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM chat_history`)
}

func (s *SQLiteStore) count(ctx context.Context, query string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, query).Scan(&n)
	return n, err
}

func (s *SQLiteStore) AppendChat(ctx context.Context, record domain.ChatRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (session_id, user_message, bot_response, timestamp) VALUES (?, ?, ?, ?)`,
		record.SessionID, record.UserMessage, record.BotResponse, formatTime(record.Timestamp))
	return err
}

// RecentChats returns up to limit of the newest chat records, oldest first.
// A limit of zero or less returns the whole log.
func (s *SQLiteStore) RecentChats(ctx context.Context, limit int) ([]domain.ChatRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, user_message, bot_response, timestamp FROM (
    SELECT id, session_id, user_message, bot_response, timestamp
    FROM chat_history ORDER BY id DESC LIMIT ?
) ORDER BY id`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ChatRecord
	for rows.Next() {
		var (
			rec                     domain.ChatRecord
			session, user, response sql.NullString
			ts                      sql.NullString
		)
		if err := rows.Scan(&session, &user, &response, &ts); err != nil {
			return nil, err
		}
		rec.SessionID = session.String
		rec.UserMessage = user.String
		rec.BotResponse = response.String
		rec.Timestamp = parseTime(ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kb_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *SQLiteStore) GetSchemaInfo(ctx context.Context) (SchemaInfo, error) {
	var info SchemaInfo
	for key, dst := range map[string]*int{"schema_version": &info.Version, "dimension": &info.Dimension} {
		v, err := s.getMeta(ctx, key)
		if err != nil {
			return info, err
		}
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return info, fmt.Errorf("corrupt %s %q: %w", key, v, err)
		}
		*dst = n
	}
	model, err := s.getMeta(ctx, "embedding_model")
	if err != nil {
		return info, err
	}
	info.EmbeddingModel = model
	return info, nil
}

// SetSchemaInfo stores the schema info in the database.
func (s *SQLiteStore) SetSchemaInfo(ctx context.Context, info SchemaInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	values := map[string]string{
		"schema_version":  strconv.Itoa(info.Version),
		"embedding_model": info.EmbeddingModel,
		"dimension":       strconv.Itoa(info.Dimension),
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kb_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Prepare binds the store to an encoder, migrating if needed.
func (s *SQLiteStore) Prepare(ctx context.Context, spec EmbeddingSpec) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result, err := CheckMigration(info, spec)
	if err != nil {
		return nil, err
	}

	if result.ClearEmbeddings {
		if _, err := s.db.ExecContext(ctx, `UPDATE faq_articles SET embedding = NULL`); err != nil {
			return nil, fmt.Errorf("failed to clear embeddings: %w", err)
		}
	}
	if result.NeedsMigration {
		err := s.SetSchemaInfo(ctx, SchemaInfo{
			Version:        CurrentSchemaVersion,
			EmbeddingModel: spec.Model,
			Dimension:      spec.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update schema info: %w", err)
		}
	}

	s.dim = spec.Dimension
	return result, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
