package store

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ppiankov/cvlacsync/internal/model"
)

// column is a column the store adds when missing
type column struct {
	name string
	def  string
}

// dialect captures the SQL differences between supported drivers
type dialect struct {
	name          string
	driver        string
	createItems   string
	createFacts   string
	itemColumns   []column
	factColumns   []column
	listColumns   string
	truncateFacts string
	numbered      bool // $1 placeholders instead of ?
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "pgx",
	createItems: `CREATE TABLE IF NOT EXISTS work_items (
		id BIGSERIAL PRIMARY KEY,
		label TEXT,
		link TEXT,
		status VARCHAR(20) DEFAULT 'pending',
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	createFacts: `CREATE TABLE IF NOT EXISTS extracted_facts (
		id BIGSERIAL PRIMARY KEY,
		parent_work_item_id BIGINT,
		category VARCHAR(255),
		full_name VARCHAR(255),
		sex VARCHAR(50),
		degree VARCHAR(255),
		project_type VARCHAR(255),
		parent_node VARCHAR(255) DEFAULT '',
		project_title TEXT,
		year INTEGER,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	itemColumns: []column{
		{"label", "TEXT"},
		{"link", "TEXT"},
		{"status", "VARCHAR(20) DEFAULT 'pending'"},
		{"created_at", "TIMESTAMPTZ DEFAULT NOW()"},
	},
	factColumns: []column{
		{"parent_node", "VARCHAR(255) DEFAULT ''"},
	},
	listColumns:   `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`,
	truncateFacts: `TRUNCATE TABLE extracted_facts`,
	numbered:      true,
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	createItems: `CREATE TABLE IF NOT EXISTS work_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT,
		link TEXT,
		status TEXT DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	createFacts: `CREATE TABLE IF NOT EXISTS extracted_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_work_item_id INTEGER,
		category TEXT,
		full_name TEXT,
		sex TEXT,
		degree TEXT,
		project_type TEXT,
		parent_node TEXT DEFAULT '',
		project_title TEXT,
		year INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	// SQLite rejects non-constant defaults in ADD COLUMN
	itemColumns: []column{
		{"label", "TEXT"},
		{"link", "TEXT"},
		{"status", "TEXT DEFAULT 'pending'"},
		{"created_at", "TIMESTAMP"},
	},
	factColumns: []column{
		{"parent_node", "TEXT DEFAULT ''"},
	},
	listColumns:   `SELECT name FROM pragma_table_info(?)`,
	truncateFacts: `DELETE FROM extracted_facts`,
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return postgresDialect, nil
	case "sqlite", "sqlite3":
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// rebind rewrites ? placeholders to $N for dialects that need it
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DSN builds a driver connection string from configuration
func DSN(cfg model.DatabaseConfig) (string, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return "", err
	}

	switch d.name {
	case "sqlite":
		if cfg.Name == "" {
			return "", fmt.Errorf("sqlite requires a database file name")
		}
		return cfg.Name, nil
	default:
		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		if cfg.Port > 0 {
			host = host + ":" + strconv.Itoa(cfg.Port)
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   host,
			Path:   "/" + cfg.Name,
		}
		switch {
		case cfg.User != "" && cfg.Password != "":
			u.User = url.UserPassword(cfg.User, cfg.Password)
		case cfg.User != "":
			u.User = url.User(cfg.User)
		}
		if cfg.SSLMode != "" {
			u.RawQuery = url.Values{"sslmode": []string{cfg.SSLMode}}.Encode()
		}
		return u.String(), nil
	}
}
