package store

import (
	"testing"

	"github.com/ppiankov/cvlacsync/internal/model"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect dialect
		in      string
		want    string
	}{
		{"postgres numbers placeholders", postgresDialect, "UPDATE t SET a = ? WHERE id = ?", "UPDATE t SET a = $1 WHERE id = $2"},
		{"sqlite keeps question marks", sqliteDialect, "UPDATE t SET a = ? WHERE id = ?", "UPDATE t SET a = ? WHERE id = ?"},
		{"no placeholders", postgresDialect, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.rebind(tt.in); got != tt.want {
				t.Errorf("rebind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     model.DatabaseConfig
		want    string
		wantErr bool
	}{
		{
			name: "postgres with credentials",
			cfg:  model.DatabaseConfig{Driver: "postgres", Host: "db", Port: 5433, User: "root", Password: "p@ss", Name: "scraping", SSLMode: "disable"},
			want: "postgres://root:p%40ss@db:5433/scraping?sslmode=disable",
		},
		{
			name: "postgres defaults host",
			cfg:  model.DatabaseConfig{Driver: "postgresql", User: "root", Name: "scraping"},
			want: "postgres://root@localhost/scraping",
		},
		{
			name: "sqlite uses the name as path",
			cfg:  model.DatabaseConfig{Driver: "sqlite", Name: "/tmp/x.db"},
			want: "/tmp/x.db",
		},
		{
			name:    "sqlite without a name",
			cfg:     model.DatabaseConfig{Driver: "sqlite"},
			wantErr: true,
		},
		{
			name:    "unknown driver",
			cfg:     model.DatabaseConfig{Driver: "mssql"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DSN(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}
