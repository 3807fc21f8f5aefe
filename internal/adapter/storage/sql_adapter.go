package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name onto a dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "mysql"
}

// Proof references are indexed but not unique: replay refusal is the
// cache's job and is opt-in.
var schemas = map[Dialect][]string{
	DialectMySQL: {`
		CREATE TABLE IF NOT EXISTS orders (
			id              VARCHAR(64)    NOT NULL PRIMARY KEY,
			created_at      DATETIME(6)    NOT NULL,
			item            VARCHAR(128)   NOT NULL,
			quantity        INT            NOT NULL,
			total_paid      DECIMAL(36,18) NOT NULL,
			proof_reference VARCHAR(128)   NOT NULL,
			status          VARCHAR(16)    NOT NULL,
			invoice_id      VARCHAR(64)    NOT NULL DEFAULT '',
			tracking_id     VARCHAR(32)    NOT NULL,
			KEY idx_orders_proof (proof_reference)
		)`,
	},
	DialectPostgres: {`
		CREATE TABLE IF NOT EXISTS orders (
			id              TEXT           PRIMARY KEY,
			created_at      TIMESTAMPTZ    NOT NULL,
			item            TEXT           NOT NULL,
			quantity        INTEGER        NOT NULL,
			total_paid      NUMERIC(36,18) NOT NULL,
			proof_reference TEXT           NOT NULL,
			status          TEXT           NOT NULL,
			invoice_id      TEXT           NOT NULL DEFAULT '',
			tracking_id     TEXT           NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_proof ON orders (proof_reference)`,
	},
}

// Open connects to the ledger database. MySQL DSNs always get parseTime so
// DATETIME columns scan into time.Time.
func Open(dialect Dialect, dsn string) (*sql.DB, error) {
	if dialect != DialectMySQL {
		return sql.Open(dialect.DriverName(), dsn)
	}
	cfg, err := mysqlConfig(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func mysqlConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg, nil
}

// SQLAdapter is the append-only order ledger on MySQL or Postgres.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect}
}

// EnsureSchema creates the orders table when it does not exist.
func (m *SQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemas[m.dialect] {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create orders table: %w", err)
		}
	}
	return nil
}

func (m *SQLAdapter) AppendOrder(ctx context.Context, order domain.Order) error {
	_, err := m.db.ExecContext(ctx, m.rebind(`
		INSERT INTO orders (id, created_at, item, quantity, total_paid, proof_reference, status, invoice_id, tracking_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		order.ID, order.Timestamp.UTC(), order.Item, order.Quantity, order.TotalPaid,
		order.ProofReference, order.Status, order.InvoiceID, order.TrackingID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert order %s: %w", order.ID, domain.ErrDuplicateOrder)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *SQLAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, created_at, item, quantity, total_paid, proof_reference, status, invoice_id, tracking_id
		FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.Timestamp, &o.Item, &o.Quantity, &o.TotalPaid,
			&o.ProofReference, &o.Status, &o.InvoiceID, &o.TrackingID); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (m *SQLAdapter) rebind(query string) string {
	if m.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
