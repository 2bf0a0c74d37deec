package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/ppiankov/cvlacsync/internal/model"
)

// Compile-time contract assertions
var (
	_ Store = (*SQLStore)(nil)
	_ Admin = (*SQLStore)(nil)
)

// Legacy schemas name these columns differently
const (
	legacyLabelColumn = "nombre_completo"
	legacyLinkColumn  = "link_cvlac"
)

// SQLStore implements Store on database/sql for Postgres and SQLite
type SQLStore struct {
	db      *sql.DB
	dialect dialect

	mu          sync.RWMutex
	inspected   bool
	legacyLabel bool
	legacyLink  bool
}

// Open connects to the configured database and verifies the connection.
// The caller owns the returned store and must Close it.
func Open(ctx context.Context, cfg model.DatabaseConfig) (*SQLStore, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	if d.name == "sqlite" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if d.name == "sqlite" {
		// a single writer avoids SQLITE_BUSY between pool connections
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}

	return &SQLStore{db: db, dialect: d}, nil
}

// New wraps an already opened database. driver is postgres or sqlite.
func New(db *sql.DB, driver string) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// Close releases the underlying connection pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *SQLStore) DB() *sql.DB { return s.db }

// EnsureSchema creates both tables if absent and adds missing columns
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, ddl := range []string{s.dialect.createItems, s.dialect.createFacts} {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	if err := s.addMissingColumns(ctx, "work_items", s.dialect.itemColumns); err != nil {
		return err
	}
	if err := s.addMissingColumns(ctx, "extracted_facts", s.dialect.factColumns); err != nil {
		return err
	}
	return s.inspect(ctx)
}

func (s *SQLStore) addMissingColumns(ctx context.Context, table string, cols []column) error {
	existing, err := s.columns(ctx, table)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if existing[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col.name, col.def)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, col.name, err)
		}
	}
	return nil
}

func (s *SQLStore) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.listColumns, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

// inspect records which legacy column names the work item table carries
func (s *SQLStore) inspect(ctx context.Context) error {
	cols, err := s.columns(ctx, "work_items")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacyLabel = cols[legacyLabelColumn]
	s.legacyLink = cols[legacyLinkColumn]
	s.inspected = true
	return nil
}

func (s *SQLStore) selectExprs(ctx context.Context) (string, string, error) {
	s.mu.RLock()
	inspected := s.inspected
	s.mu.RUnlock()
	if !inspected {
		if err := s.inspect(ctx); err != nil {
			return "", "", err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	label := "COALESCE(label, '')"
	if s.legacyLabel {
		label = "COALESCE(label, " + legacyLabelColumn + ", '')"
	}
	link := "COALESCE(link, '')"
	if s.legacyLink {
		link = "COALESCE(link, " + legacyLinkColumn + ", '')"
	}
	return label, link, nil
}

// ListPending returns pending items ordered by id
func (s *SQLStore) ListPending(ctx context.Context) ([]model.WorkItem, error) {
	labelExpr, linkExpr, err := s.selectExprs(ctx)
	if err != nil {
		return nil, err
	}

	// must agree with model.ParseStatus: everything not processed is pending
	values := model.ProcessedValues()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	query := fmt.Sprintf(
		"SELECT id, %s, %s, status FROM work_items WHERE status IS NULL OR LOWER(TRIM(status)) NOT IN (%s) ORDER BY id",
		labelExpr, linkExpr, placeholders,
	)
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.WorkItem
	for rows.Next() {
		var (
			item   model.WorkItem
			status sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Label, &item.Link, &status); err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		item.Status = model.ParseStatus(status.String)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return items, nil
}

const insertFactSQL = `INSERT INTO extracted_facts
	(parent_work_item_id, category, full_name, sex, degree, project_type, parent_node, project_title, year)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// PersistFacts inserts facts in a single transaction
func (s *SQLStore) PersistFacts(ctx context.Context, facts []model.ExtractedFact) (n int, retErr error) {
	if len(facts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(insertFactSQL))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, f := range facts {
		_, err := stmt.ExecContext(ctx,
			nullInt64(f.ParentWorkItemID),
			f.Category,
			f.FullName,
			f.Sex,
			f.Degree,
			f.ProjectType,
			f.ParentNode,
			f.ProjectTitle,
			nullInt(f.Year),
		)
		if err != nil {
			return 0, fmt.Errorf("insert fact %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(facts), nil
}

// MarkProcessed sets the item status to processed
func (s *SQLStore) MarkProcessed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		s.dialect.rebind(`UPDATE work_items SET status = ? WHERE id = ?`),
		string(model.StatusProcessed), id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark %d: %w", id, ErrItemNotFound)
	}
	return nil
}

// ClearFacts removes every extracted fact
func (s *SQLStore) ClearFacts(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.truncateFacts); err != nil {
		return fmt.Errorf("clear facts: %w", err)
	}
	return nil
}

// AddItem inserts a pending work item
func (s *SQLStore) AddItem(ctx context.Context, label, link string) (model.WorkItem, error) {
	item := model.WorkItem{
		Label:     label,
		Link:      link,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	row := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`INSERT INTO work_items (label, link, status) VALUES (?, ?, ?) RETURNING id`),
		label, link, string(model.StatusPending),
	)
	if err := row.Scan(&item.ID); err != nil {
		return model.WorkItem{}, fmt.Errorf("insert work item: %w", err)
	}
	return item, nil
}

// StatusCounts counts items per status
func (s *SQLStore) StatusCounts(ctx context.Context) (model.StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM work_items GROUP BY status`)
	if err != nil {
		return model.StatusCounts{}, fmt.Errorf("count statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts model.StatusCounts
	for rows.Next() {
		var (
			status sql.NullString
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return model.StatusCounts{}, fmt.Errorf("scan count: %w", err)
		}
		switch model.ParseStatus(status.String) {
		case model.StatusProcessed:
			counts.Processed += n
		default:
			counts.Pending += n
		}
	}
	if err := rows.Err(); err != nil {
		return model.StatusCounts{}, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
