package infra

import (
	"database/sql"
	"fmt"
	"time"

	"admission-gateway/middleware/admission/domain"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3"
)

// SQLitePersister guarda o mesmo mapa de banimentos numa tabela SQLite.
// Cada Save reescreve a tabela inteira dentro de uma transação.
type SQLitePersister struct {
	db *sql.DB
}

func NewSQLitePersister(dataSourceName string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("ban store: open sqlite: %w", err)
	}
	// sqlite só aceita um escritor; o BanStore já serializa as escritas
	db.SetMaxOpenConns(1)

	const createTableSQL = `
	CREATE TABLE IF NOT EXISTS bans (
		identifier TEXT PRIMARY KEY,
		banned_at TEXT NOT NULL,
		reason TEXT NOT NULL,
		banned_by TEXT NOT NULL
	);`
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ban store: create table: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

func (p *SQLitePersister) Load() (map[domain.Key]domain.BanRecord, error) {
	rows, err := p.db.Query(`SELECT identifier, banned_at, reason, banned_by FROM bans`)
	if err != nil {
		return nil, fmt.Errorf("ban store: query bans: %w", err)
	}
	defer rows.Close()

	bans := make(map[domain.Key]domain.BanRecord)
	for rows.Next() {
		var (
			id, bannedAt string
			rec          domain.BanRecord
		)
		if err := rows.Scan(&id, &bannedAt, &rec.Reason, &rec.BannedBy); err != nil {
			return nil, fmt.Errorf("ban store: scan ban: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, bannedAt)
		if err != nil {
			return nil, fmt.Errorf("ban store: parse banned_at for %s: %w", id, err)
		}
		rec.Identifier = domain.Key(id)
		rec.BannedAt = at
		bans[rec.Identifier] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ban store: iterate bans: %w", err)
	}
	return bans, nil
}

func (p *SQLitePersister) Save(bans map[domain.Key]domain.BanRecord) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("ban store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM bans`); err != nil {
		return fmt.Errorf("ban store: clear bans: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO bans(identifier, banned_at, reason, banned_by) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ban store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for k, rec := range bans {
		if _, err := stmt.Exec(string(k), rec.BannedAt.UTC().Format(time.RFC3339Nano), rec.Reason, rec.BannedBy); err != nil {
			return fmt.Errorf("ban store: insert %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ban store: commit: %w", err)
	}
	return nil
}

func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
