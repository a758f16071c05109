// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		type TEXT NOT NULL,
		storage_uri TEXT,
		file_size INTEGER NOT NULL DEFAULT 0,
		processing_status TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		vector_ids TEXT,
		error TEXT,
		metadata TEXT,
		processing_stats TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(processing_status);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		chatbot_id TEXT,
		messages TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	vectorIDs, metadata, stats, err := marshalDocumentJSON(doc)
	if err != nil {
		return err
	}

	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, description, type, storage_uri, file_size,
			processing_status, chunk_count, vector_ids, error, metadata, processing_stats,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.Description, string(doc.Type), doc.StorageURI, doc.FileSize,
		string(doc.ProcessingStatus), doc.ChunkCount, vectorIDs, doc.Error, metadata, stats,
		doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, type, storage_uri, file_size, processing_status,
			chunk_count, vector_ids, error, metadata, processing_stats, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, err
}

// UpdateDocument updates an existing document.
func (s *SQLiteStorage) UpdateDocument(ctx context.Context, doc *models.Document) error {
	vectorIDs, metadata, stats, err := marshalDocumentJSON(doc)
	if err != nil {
		return err
	}

	doc.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET name = ?, description = ?, type = ?, storage_uri = ?,
			file_size = ?, processing_status = ?, chunk_count = ?, vector_ids = ?,
			error = ?, metadata = ?, processing_stats = ?, updated_at = ?
		 WHERE id = ?`,
		doc.Name, doc.Description, string(doc.Type), doc.StorageURI,
		doc.FileSize, string(doc.ProcessingStatus), doc.ChunkCount, vectorIDs,
		doc.Error, metadata, stats, doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes a document by ID.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns documents with offset and limit, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, type, storage_uri, file_size, processing_status,
			chunk_count, vector_ids, error, metadata, processing_stats, created_at, updated_at
		 FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// SaveSession upserts a chat session with its full message history.
func (s *SQLiteStorage) SaveSession(ctx context.Context, session *models.ChatSession) error {
	messagesJSON, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, chatbot_id, messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		session.ID, session.ChatbotID, string(messagesJSON), session.CreatedAt, session.UpdatedAt,
	)
	return err
}

// GetSession returns a chat session by ID.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	var messagesJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, chatbot_id, messages, created_at, updated_at
		 FROM chat_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.ChatbotID, &messagesJSON, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messagesJSON), &session.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return &session, nil
}

// SetSetting upserts a runtime setting.
func (s *SQLiteStorage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetSetting returns a runtime setting value.
func (s *SQLiteStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	return value, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var docType, status string
	var description, storageURI, vectorIDs, docErr, metadata, stats sql.NullString

	err := row.Scan(&doc.ID, &doc.Name, &description, &docType, &storageURI, &doc.FileSize,
		&status, &doc.ChunkCount, &vectorIDs, &docErr, &metadata, &stats,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	doc.Type = models.SourceType(docType)
	doc.ProcessingStatus = models.ProcessingStatus(status)
	doc.Description = description.String
	doc.StorageURI = storageURI.String
	doc.Error = docErr.String
	if vectorIDs.String != "" {
		if err := json.Unmarshal([]byte(vectorIDs.String), &doc.VectorIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal vector ids: %w", err)
		}
	}
	if metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if stats.String != "" {
		doc.ProcessingStats = &models.ProcessingStats{}
		if err := json.Unmarshal([]byte(stats.String), doc.ProcessingStats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal processing stats: %w", err)
		}
	}
	return &doc, nil
}

func marshalDocumentJSON(doc *models.Document) (vectorIDs, metadata, stats string, err error) {
	if len(doc.VectorIDs) > 0 {
		b, err := json.Marshal(doc.VectorIDs)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to marshal vector ids: %w", err)
		}
		vectorIDs = string(b)
	}
	if len(doc.Metadata) > 0 {
		b, err := json.Marshal(doc.Metadata)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = string(b)
	}
	if doc.ProcessingStats != nil {
		b, err := json.Marshal(doc.ProcessingStats)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to marshal processing stats: %w", err)
		}
		stats = string(b)
	}
	return vectorIDs, metadata, stats, nil
}
