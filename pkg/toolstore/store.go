package toolstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/toolshed/pkg/catalog"
)

func init() {
	sqlite_vec.Auto()
}

// Config holds store configuration
type Config struct {
	DBPath            string
	Logger            zerolog.Logger
	EmbeddingProvider EmbeddingProvider
}

// Store is the SQLite-backed tool table
type Store struct {
	db                *sql.DB
	logger            zerolog.Logger
	embeddingProvider EmbeddingProvider
}

// Open opens (or creates) the database at cfg.DBPath
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:                db,
		logger:            cfg.Logger,
		embeddingProvider: cfg.EmbeddingProvider,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().
		Str("path", cfg.DBPath).
		Bool("embeddings", s.embeddingProvider != nil).
		Msg("Tool store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tools (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			human_readable_function_title TEXT NOT NULL,
			function_title TEXT NOT NULL,
			function_description TEXT NOT NULL DEFAULT '',
			tool_type TEXT NOT NULL DEFAULT '',
			code TEXT NOT NULL,
			inputs TEXT NOT NULL DEFAULT '[]',
			output TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS tools_fts USING fts5(
			tool_id UNINDEXED,
			title,
			function_title,
			description,
			tool_type,
			tokenize='porter unicode61'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if s.embeddingProvider != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS tool_embeddings USING vec0(
				tool_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, s.embeddingProvider.Dimension())
		if _, err := s.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return nil
}

// Create stores a descriptor under a fresh id and indexes it. The id on the
// input is ignored.
func (s *Store) Create(ctx context.Context, tool catalog.Tool) (*catalog.Tool, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tool id: %w", err)
	}
	tool.ID = catalog.ID(id)
	if tool.Inputs == nil {
		tool.Inputs = []catalog.InputSpec{}
	}

	inputs, err := json.Marshal(tool.Inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inputs: %w", err)
	}
	var output sql.NullString
	if len(tool.Output) > 0 {
		output = sql.NullString{String: string(tool.Output), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tools (id, human_readable_function_title, function_title, function_description, tool_type, code, inputs, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, tool.HumanReadableTitle, tool.FunctionTitle, tool.FunctionDescription, tool.ToolType, tool.Code, string(inputs), output, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert tool: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tools_fts (tool_id, title, function_title, description, tool_type)
		VALUES (?, ?, ?, ?, ?)
	`, id, tool.HumanReadableTitle, tool.FunctionTitle, tool.FunctionDescription, tool.ToolType)
	if err != nil {
		return nil, fmt.Errorf("failed to index tool: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tool: %w", err)
	}

	if s.embeddingProvider != nil {
		if err := s.storeEmbedding(ctx, id, embeddingText(tool)); err != nil {
			s.logger.Warn().Err(err).Str("tool_id", id).Msg("Failed to embed tool")
		}
	}

	s.logger.Info().Str("tool_id", id).Str("tool", tool.FunctionTitle).Msg("Tool stored")
	return &tool, nil
}

// List returns every tool in creation order
func (s *Store) List(ctx context.Context) ([]catalog.Tool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+toolColumns+` FROM tools ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	tools := []catalog.Tool{}
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

// Get returns the tool with the given id or catalog.ErrToolNotFound
func (s *Store) Get(ctx context.Context, id catalog.ID) (catalog.Tool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = ?`, id.String())
	tool, err := scanTool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Tool{}, catalog.ErrToolNotFound
	}
	return tool, err
}

// Delete removes a tool and its index rows. It reports whether the tool existed.
func (s *Store) Delete(ctx context.Context, id catalog.ID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete tool: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tools_fts WHERE tool_id = ?`, id.String()); err != nil {
		return false, fmt.Errorf("failed to unindex tool: %w", err)
	}
	if s.embeddingProvider != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tool_embeddings WHERE tool_id = ?`, id.String()); err != nil {
			return false, fmt.Errorf("failed to remove tool embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}

	s.logger.Info().Str("tool_id", id.String()).Msg("Tool removed")
	return true, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) storeEmbedding(ctx context.Context, id, text string) error {
	embedding, err := s.embeddingProvider.GenerateEmbedding(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO tool_embeddings (tool_id, embedding) VALUES (?, ?)",
		id, string(embeddingJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store embedding in vector table: %w", err)
	}
	return nil
}

// embeddingText is the text a tool is embedded and searched by
func embeddingText(tool catalog.Tool) string {
	parts := []string{tool.HumanReadableTitle, tool.FunctionDescription, tool.ToolType}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

const toolColumns = `id, human_readable_function_title, function_title, function_description, tool_type, code, inputs, output`

type scanner interface {
	Scan(dest ...any) error
}

func scanTool(row scanner) (catalog.Tool, error) {
	var (
		tool   catalog.Tool
		id     string
		inputs string
		output sql.NullString
	)
	err := row.Scan(&id, &tool.HumanReadableTitle, &tool.FunctionTitle, &tool.FunctionDescription,
		&tool.ToolType, &tool.Code, &inputs, &output)
	if err != nil {
		return catalog.Tool{}, err
	}

	tool.ID = catalog.ID(id)
	if err := json.Unmarshal([]byte(inputs), &tool.Inputs); err != nil {
		return catalog.Tool{}, fmt.Errorf("failed to decode inputs of %s: %w", id, err)
	}
	if output.Valid {
		tool.Output = json.RawMessage(output.String)
	}
	return tool, nil
}
