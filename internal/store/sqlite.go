package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/aichatlibre/memcore/internal/model"
)

// SQLite implements Store using SQLite.
type SQLite struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLite opens or creates a SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLite{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLite) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS working_memory (
		id         TEXT PRIMARY KEY,
		chat_id    TEXT NOT NULL UNIQUE,
		summary    TEXT NOT NULL,
		key_points TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS episodic_memory (
		id           TEXT PRIMARY KEY,
		chat_id      TEXT NOT NULL,
		event        TEXT NOT NULL,
		participants TEXT,
		emotion      TEXT,
		importance   INTEGER NOT NULL DEFAULT 5,
		created_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_episodic_chat ON episodic_memory(chat_id, importance);

	CREATE TABLE IF NOT EXISTS semantic_memory (
		id           TEXT PRIMARY KEY,
		character_id TEXT NOT NULL,
		fact         TEXT NOT NULL,
		category     TEXT NOT NULL,
		confidence   REAL NOT NULL DEFAULT 0.8,
		source       TEXT,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_semantic_char_cat ON semantic_memory(character_id, category);

	CREATE TABLE IF NOT EXISTS lorebooks (
		id           TEXT PRIMARY KEY,
		character_id TEXT,
		name         TEXT NOT NULL,
		entries      TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lorebooks_char ON lorebooks(character_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) WorkingMemory(ctx context.Context, chatID string) (*model.WorkingMemory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, summary, key_points, updated_at FROM working_memory WHERE chat_id = ?`, chatID)

	var wm model.WorkingMemory
	var keyPoints sql.NullString
	var updatedAt string
	err := row.Scan(&wm.ID, &wm.ChatID, &wm.Summary, &keyPoints, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("working memory for chat %s: %w", chatID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	wm.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if keyPoints.Valid {
		json.Unmarshal([]byte(keyPoints.String), &wm.KeyPoints)
	}
	return &wm, nil
}

func (s *SQLite) AllWorkingMemory(ctx context.Context) ([]model.WorkingMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, summary, key_points, updated_at FROM working_memory ORDER BY updated_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []model.WorkingMemory
	for rows.Next() {
		var wm model.WorkingMemory
		var keyPoints sql.NullString
		var updatedAt string
		if err := rows.Scan(&wm.ID, &wm.ChatID, &wm.Summary, &keyPoints, &updatedAt); err != nil {
			return nil, err
		}
		wm.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if keyPoints.Valid {
			json.Unmarshal([]byte(keyPoints.String), &wm.KeyPoints)
		}
		memories = append(memories, wm)
	}
	return memories, rows.Err()
}

func (s *SQLite) UpsertWorkingMemory(ctx context.Context, wm *model.WorkingMemory) (*model.WorkingMemory, error) {
	out := *wm
	if out.ID == "" {
		out.ID = s.newID()
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now().UTC()
	}

	var keyPoints *string
	if len(out.KeyPoints) > 0 {
		b, _ := json.Marshal(out.KeyPoints)
		str := string(b)
		keyPoints = &str
	}

	// One row per chat: conflict on chat_id keeps the original row id.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO working_memory (id, chat_id, summary, key_points, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   summary = excluded.summary,
		   key_points = excluded.key_points,
		   updated_at = excluded.updated_at`,
		out.ID, out.ChatID, out.Summary, keyPoints, out.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("upsert working memory: %w", err)
	}
	return s.WorkingMemory(ctx, out.ChatID)
}

func (s *SQLite) AddEpisodic(ctx context.Context, p EpisodicParams) (*model.EpisodicMemory, error) {
	mem := &model.EpisodicMemory{
		ID:           p.ID,
		ChatID:       p.ChatID,
		Event:        p.Event,
		Participants: p.Participants,
		Emotion:      p.Emotion,
		Importance:   p.Importance,
		CreatedAt:    p.CreatedAt,
	}
	if mem.ID == "" {
		mem.ID = s.newID()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}

	var participants *string
	if len(mem.Participants) > 0 {
		b, _ := json.Marshal(mem.Participants)
		str := string(b)
		participants = &str
	}
	var emotion *string
	if mem.Emotion != "" {
		emotion = &mem.Emotion
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodic_memory (id, chat_id, event, participants, emotion, importance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.ChatID, mem.Event, participants, emotion, mem.Importance,
		mem.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert episodic memory: %w", err)
	}
	return mem, nil
}

const episodicColumns = `id, chat_id, event, participants, emotion, importance, created_at`

func (s *SQLite) EpisodicByChat(ctx context.Context, chatID string) ([]model.EpisodicMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+episodicColumns+` FROM episodic_memory WHERE chat_id = ? ORDER BY created_at`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEpisodic(rows)
}

func (s *SQLite) AllEpisodic(ctx context.Context) ([]model.EpisodicMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+episodicColumns+` FROM episodic_memory ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEpisodic(rows)
}

func scanEpisodic(rows *sql.Rows) ([]model.EpisodicMemory, error) {
	var memories []model.EpisodicMemory
	for rows.Next() {
		var m model.EpisodicMemory
		var participants, emotion sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Event, &participants, &emotion, &m.Importance, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if participants.Valid {
			json.Unmarshal([]byte(participants.String), &m.Participants)
		}
		if emotion.Valid {
			m.Emotion = emotion.String
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func (s *SQLite) AddSemantic(ctx context.Context, p SemanticParams) (*model.SemanticMemory, error) {
	mem := &model.SemanticMemory{
		ID:          p.ID,
		CharacterID: p.CharacterID,
		Fact:        p.Fact,
		Category:    p.Category,
		Confidence:  p.Confidence,
		Source:      p.Source,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if mem.ID == "" {
		mem.ID = s.newID()
	}
	now := time.Now().UTC()
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = now
	}
	if mem.UpdatedAt.IsZero() {
		mem.UpdatedAt = now
	}

	var source *string
	if mem.Source != "" {
		source = &mem.Source
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO semantic_memory (id, character_id, fact, category, confidence, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.CharacterID, mem.Fact, mem.Category, mem.Confidence, source,
		mem.CreatedAt.Format(time.RFC3339), mem.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert semantic memory: %w", err)
	}
	return mem, nil
}

const semanticColumns = `id, character_id, fact, category, confidence, source, created_at, updated_at`

func (s *SQLite) SemanticByCharacter(ctx context.Context, characterID, category string) ([]model.SemanticMemory, error) {
	query := `SELECT ` + semanticColumns + ` FROM semantic_memory WHERE character_id = ?`
	args := []interface{}{characterID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSemantic(rows)
}

func (s *SQLite) AllSemantic(ctx context.Context) ([]model.SemanticMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+semanticColumns+` FROM semantic_memory ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSemantic(rows)
}

func scanSemantic(rows *sql.Rows) ([]model.SemanticMemory, error) {
	var memories []model.SemanticMemory
	for rows.Next() {
		var m model.SemanticMemory
		var source sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &m.CharacterID, &m.Fact, &m.Category, &m.Confidence, &source, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if source.Valid {
			m.Source = source.String
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func (s *SQLite) CreateLorebook(ctx context.Context, lb *model.Lorebook) (*model.Lorebook, error) {
	out := *lb
	if out.ID == "" {
		out.ID = s.newID()
	}
	now := time.Now().UTC()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	if out.Entries == nil {
		out.Entries = []model.LorebookEntry{}
	}

	entries, _ := json.Marshal(out.Entries)
	var characterID *string
	if out.CharacterID != "" {
		characterID = &out.CharacterID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lorebooks (id, character_id, name, entries, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		out.ID, characterID, out.Name, string(entries),
		out.CreatedAt.Format(time.RFC3339), out.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert lorebook: %w", err)
	}
	return &out, nil
}

const lorebookColumns = `id, character_id, name, entries, created_at, updated_at`

func (s *SQLite) Lorebook(ctx context.Context, id string) (*model.Lorebook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+lorebookColumns+` FROM lorebooks WHERE id = ?`, id)
	lb, err := scanLorebook(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lorebook %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return lb, nil
}

func (s *SQLite) AllLorebooks(ctx context.Context) ([]model.Lorebook, error) {
	return s.queryLorebooks(ctx, `SELECT `+lorebookColumns+` FROM lorebooks ORDER BY created_at`)
}

func (s *SQLite) LorebooksByCharacter(ctx context.Context, characterID string) ([]model.Lorebook, error) {
	return s.queryLorebooks(ctx,
		`SELECT `+lorebookColumns+` FROM lorebooks WHERE character_id = ? ORDER BY created_at`, characterID)
}

func (s *SQLite) GlobalLorebooks(ctx context.Context) ([]model.Lorebook, error) {
	return s.queryLorebooks(ctx,
		`SELECT `+lorebookColumns+` FROM lorebooks WHERE character_id IS NULL ORDER BY created_at`)
}

func (s *SQLite) queryLorebooks(ctx context.Context, query string, args ...interface{}) ([]model.Lorebook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []model.Lorebook
	for rows.Next() {
		lb, err := scanLorebook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *lb)
	}
	return books, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLorebook(row scanner) (*model.Lorebook, error) {
	var lb model.Lorebook
	var characterID sql.NullString
	var entries, createdAt, updatedAt string

	err := row.Scan(&lb.ID, &characterID, &lb.Name, &entries, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if characterID.Valid {
		lb.CharacterID = characterID.String
	}
	lb.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	lb.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if err := json.Unmarshal([]byte(entries), &lb.Entries); err != nil {
		return nil, fmt.Errorf("decode lorebook entries: %w", err)
	}
	return &lb, nil
}

func (s *SQLite) UpdateLorebook(ctx context.Context, lb *model.Lorebook) error {
	entries, _ := json.Marshal(lb.Entries)
	var characterID *string
	if lb.CharacterID != "" {
		characterID = &lb.CharacterID
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE lorebooks SET character_id = ?, name = ?, entries = ?, updated_at = ? WHERE id = ?`,
		characterID, lb.Name, string(entries), time.Now().UTC().Format(time.RFC3339), lb.ID)
	if err != nil {
		return fmt.Errorf("update lorebook: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("lorebook %s: %w", lb.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) DeleteLorebook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lorebooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("lorebook %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
