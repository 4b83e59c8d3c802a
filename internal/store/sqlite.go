package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "barista.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time, and ":memory:" must not be split across connections
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	return initTable(ctx, db, "drink", `
		CREATE TABLE IF NOT EXISTS drink (
			id      INTEGER PRIMARY KEY,
			title   TEXT NOT NULL UNIQUE CHECK (length(title) <= 80),
			recipe  TEXT NOT NULL
		);`,
	)
}

func initTable(ctx context.Context, db *sql.DB, name, ddl string) error {
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init '%s' table schema: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Drink, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, recipe FROM drink ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list drinks: %w", err)
	}
	defer rows.Close()

	drinks := []Drink{}
	for rows.Next() {
		d, err := scanDrink(rows)
		if err != nil {
			return nil, err
		}
		drinks = append(drinks, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list drinks: %w", err)
	}
	return drinks, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (Drink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, recipe FROM drink WHERE id = ?`, id)
	d, err := scanDrink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Drink{}, ErrNotFound
	}
	return d, err
}

func (s *SQLiteStore) Create(ctx context.Context, d Drink) (Drink, error) {
	if err := d.Validate(); err != nil {
		return Drink{}, err
	}
	recipe, err := encodeRecipe(d.Recipe)
	if err != nil {
		return Drink{}, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO drink (title, recipe) VALUES (?, ?)`, d.Title, recipe)
	if err != nil {
		return Drink{}, translate("insert drink", err)
	}
	d.ID, err = res.LastInsertId()
	if err != nil {
		return Drink{}, fmt.Errorf("insert drink: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) Update(ctx context.Context, d Drink) (Drink, error) {
	if err := d.Validate(); err != nil {
		return Drink{}, err
	}
	recipe, err := encodeRecipe(d.Recipe)
	if err != nil {
		return Drink{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE drink SET title = ?, recipe = ? WHERE id = ?`, d.Title, recipe, d.ID)
	if err != nil {
		return Drink{}, translate("update drink", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Drink{}, ErrNotFound
	}
	return d, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drink WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete drink: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS drink`); err != nil {
		return fmt.Errorf("reset: drop: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE drink (
			id      INTEGER PRIMARY KEY,
			title   TEXT NOT NULL UNIQUE CHECK (length(title) <= 80),
			recipe  TEXT NOT NULL
		);`); err != nil {
		return fmt.Errorf("reset: create: %w", err)
	}
	seed := Seed()
	recipe, err := encodeRecipe(seed.Recipe)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO drink (title, recipe) VALUES (?, ?)`, seed.Title, recipe); err != nil {
		return fmt.Errorf("reset: seed: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrink(r rowScanner) (Drink, error) {
	var (
		d      Drink
		recipe string
	)
	if err := r.Scan(&d.ID, &d.Title, &recipe); err != nil {
		return Drink{}, err
	}
	rec, err := decodeRecipe(recipe)
	if err != nil {
		return Drink{}, fmt.Errorf("drink %d: %w", d.ID, err)
	}
	d.Recipe = rec
	return d, nil
}

func translate(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && (se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
