package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"ahorrove/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteSink keeps every record in a local database so the log survives a
// Sheets outage.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// embedded migrations.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("audit database ready", map[string]interface{}{"path": path})
	return &SQLiteSink{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: migrate up: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Write(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calculos (
			id, created_at, nombre, email, cedula_nit, celular, ciudad, tipo_cliente,
			ingresos_mensuales, otras_deducciones, valor_vehiculo, ahorro_anual,
			tramo_sin_vehiculo, tramo_con_vehiculo
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp.UTC().Format(time.RFC3339Nano), r.Nombre, r.Email, r.CedulaNIT,
		r.Celular, r.Ciudad, r.TipoCliente, r.IngresosMensuales, r.OtrasDeducciones,
		r.ValorVehiculo, r.AhorroAnual, r.TramoSinVehiculo, r.TramoConVehiculo,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, nombre, email, cedula_nit, celular, ciudad, tipo_cliente,
			ingresos_mensuales, otras_deducciones, valor_vehiculo, ahorro_anual,
			tramo_sin_vehiculo, tramo_con_vehiculo
		FROM calculos
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ts string
		if err := rows.Scan(&r.ID, &ts, &r.Nombre, &r.Email, &r.CedulaNIT, &r.Celular, &r.Ciudad,
			&r.TipoCliente, &r.IngresosMensuales, &r.OtrasDeducciones, &r.ValorVehiculo,
			&r.AhorroAnual, &r.TramoSinVehiculo, &r.TramoConVehiculo); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calculos`).Scan(&n)
	return n, err
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
