package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/docuquery/docuquery/internal/rag"
)

// SQLiteStore archives completed conversation turns. It persists transcripts
// only; vector indexes are rebuilt per uploaded document and never stored.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY, -- UUID
        document_name TEXT NOT NULL,
        title TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS turns (
        id TEXT PRIMARY KEY, -- UUID
        session_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        sources_json TEXT,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        negative_feedback BOOLEAN DEFAULT FALSE,
        FOREIGN KEY (session_id) REFERENCES sessions (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// CreateSession records a new session row.
func (s *SQLiteStore) CreateSession(sessionID, documentName string) error {
	_, err := s.db.Exec("INSERT INTO sessions (id, document_name, created_at) VALUES (?, ?, ?)",
		sessionID, documentName, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// AppendTurn archives one completed turn and returns its id.
func (s *SQLiteStore) AppendTurn(sessionID string, turn rag.Turn) (string, error) {
	sourcesJSON := ""
	if len(turn.Sources) > 0 {
		data, err := json.Marshal(turn.Sources)
		if err != nil {
			return "", fmt.Errorf("failed to marshal turn sources: %w", err)
		}
		sourcesJSON = string(data)
	}

	turnID := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO turns (id, session_id, role, content, sources_json, timestamp, negative_feedback) VALUES (?, ?, ?, ?, ?, ?, ?)",
		turnID, sessionID, string(turn.Role), turn.Content, sourcesJSON, time.Now(), false)
	if err != nil {
		return "", fmt.Errorf("failed to insert turn: %w", err)
	}
	return turnID, nil
}

func (s *SQLiteStore) SetSessionTitle(sessionID, title string) error {
	res, err := s.db.Exec("UPDATE sessions SET title = ? WHERE id = ?", title, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session title: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("session not found, title not updated")
	}
	return nil
}

func (s *SQLiteStore) GetSession(sessionID string) (*SessionRecord, error) {
	var rec SessionRecord
	var title sql.NullString
	err := s.db.QueryRow("SELECT id, document_name, title, created_at FROM sessions WHERE id = ?", sessionID).
		Scan(&rec.ID, &rec.DocumentName, &title, &rec.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	if title.Valid {
		rec.Title = &title.String
	}
	return &rec, nil
}

func (s *SQLiteStore) ListSessions() ([]SessionRecord, error) {
	rows, err := s.db.Query("SELECT id, document_name, title, created_at FROM sessions ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var title sql.NullString
		if err := rows.Scan(&rec.ID, &rec.DocumentName, &title, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if title.Valid {
			rec.Title = &title.String
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) GetTurnsBySessionID(sessionID string) ([]TurnRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, session_id, role, content, sources_json, timestamp, negative_feedback FROM turns WHERE session_id = ? ORDER BY rowid ASC",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var sourcesJSON sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Role, &rec.Content, &sourcesJSON, &rec.Timestamp, &rec.NegativeFeedback); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		if sourcesJSON.Valid {
			rec.SourcesJSON = sourcesJSON.String
		}
		turns = append(turns, rec)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) UpdateTurnFeedback(turnID string, negativeFeedback bool) error {
	res, err := s.db.Exec("UPDATE turns SET negative_feedback = ? WHERE id = ?", negativeFeedback, turnID)
	if err != nil {
		return fmt.Errorf("failed to execute feedback update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("turn not found, feedback not updated")
	}
	return nil
}
