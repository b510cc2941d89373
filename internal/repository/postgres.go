// Package repository реализует хранилище хаба поверх PostgreSQL.
// Хаб — единственный владелец складского справочника; агенты изменяют
// остатки только через операции этого пакета.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/picking-system/internal/model"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var (
	// ErrProductNotFound возвращается, когда товар отсутствует в справочнике.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderAlreadyProcessed возвращается при повторном завершении заказа.
	ErrOrderAlreadyProcessed = errors.New("order already processed")
)

// Repository предоставляет доступ к базе данных хаба.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт пул соединений и применяет миграции.
func NewRepository(ctx context.Context, databaseURI string) (*Repository, error) {
	if err := runMigrations(databaseURI); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURI)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func runMigrations(databaseURI string) error {
	db, err := sql.Open("pgx", databaseURI)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений.
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping проверяет доступность базы данных.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const productColumns = `code, description, unit, barcodes, quantity, price_cents, tax_code, updated_at`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.Code, &p.Description, &p.Unit, &p.Barcodes,
		&p.Quantity, &p.PriceCents, &p.TaxCode, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}

// ListProducts возвращает весь складской справочник.
func (r *Repository) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.Code, &p.Description, &p.Unit, &p.Barcodes,
			&p.Quantity, &p.PriceCents, &p.TaxCode, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// GetProductByCode возвращает товар по коду.
func (r *Repository) GetProductByCode(ctx context.Context, code string) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE code = $1`, code)
	return scanProduct(row)
}

// GetProductByBarcode возвращает товар по любому из его штрихкодов.
func (r *Repository) GetProductByBarcode(ctx context.Context, ean string) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE $1 = ANY(barcodes)`, ean)
	return scanProduct(row)
}

// ApplyPicks атомарно списывает отобранные количества по позициям заказа
// и регистрирует заказ как обработанный. Повторная обработка того же
// заказа возвращает ErrOrderAlreadyProcessed, не изменяя остатков.
// Позиции, не найденные ни по коду, ни по штрихкоду, пропускаются и
// учитываются в missing; остальные списываются, даже если остаток
// уходит в минус.
func (r *Repository) ApplyPicks(ctx context.Context, orderID, operator string, picks []model.LineItem) (applied, missing int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO processed_orders (order_id, operator, processed_at) VALUES ($1, $2, $3)`,
		orderID, operator, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, 0, ErrOrderAlreadyProcessed
		}
		return 0, 0, fmt.Errorf("register processed order: %w", err)
	}

	for _, pick := range picks {
		if pick.Picked == 0 {
			continue
		}

		// UPDATE берёт блокировку строки: одновременные списания одного
		// товара с разных устройств выполняются последовательно.
		tag, err := tx.Exec(ctx,
			`UPDATE products SET quantity = quantity - $2, updated_at = $3 WHERE code = $1`,
			pick.Code, pick.Picked, time.Now())
		if err != nil {
			return 0, 0, fmt.Errorf("decrement by code: %w", err)
		}

		if tag.RowsAffected() == 0 {
			// Код не найден: позиция могла быть добавлена сканированием
			// штрихкода, отсутствующего в справочнике под этим кодом.
			tag, err = tx.Exec(ctx,
				`UPDATE products SET quantity = quantity - $2, updated_at = $3 WHERE $1 = ANY(barcodes)`,
				pick.Code, pick.Picked, time.Now())
			if err != nil {
				return 0, 0, fmt.Errorf("decrement by barcode: %w", err)
			}
		}

		if tag.RowsAffected() == 0 {
			missing++
			continue
		}
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit tx: %w", err)
	}

	return applied, missing, nil
}

// InsertActivityLogs сохраняет пакет записей журнала и возвращает число
// фактически вставленных. Повторно доставленные записи отбрасываются по
// идентификатору: агент шлёт журналы «как минимум один раз».
func (r *Repository) InsertActivityLogs(ctx context.Context, logs []model.ActivityLog) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, l := range logs {
		tag, err := tx.Exec(ctx,
			`INSERT INTO activity_logs (log_id, log_type, operator, order_id, product_code, quantity, device_id, details, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (log_id) DO NOTHING`,
			l.ID, l.Type, l.Operator, l.Order, l.Product, l.Quantity, l.DeviceID, l.Details, l.Timestamp)
		if err != nil {
			return 0, fmt.Errorf("insert activity log: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// CreateSession регистрирует начало рабочей смены оператора.
func (r *Repository) CreateSession(ctx context.Context, id, operator string, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, operator, started_at) VALUES ($1, $2, $3)`,
		id, operator, startedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// InsertProduct добавляет новый товар в справочник.
func (r *Repository) InsertProduct(ctx context.Context, p model.Product) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (code, description, unit, barcodes, quantity, price_cents, tax_code, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.Code, p.Description, p.Unit, p.Barcodes, p.Quantity, p.PriceCents, p.TaxCode, time.Now())
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// UpdateQuantityPrice обновляет остаток и цену товара.
func (r *Repository) UpdateQuantityPrice(ctx context.Context, code string, quantity, priceCents int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET quantity = $2, price_cents = $3, updated_at = $4 WHERE code = $1`,
		code, quantity, priceCents, time.Now())
	if err != nil {
		return fmt.Errorf("update quantity and price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// AddProductBarcode добавляет товару штрихкод, если его ещё нет.
func (r *Repository) AddProductBarcode(ctx context.Context, code, ean string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET barcodes = array_append(barcodes, $2), updated_at = $3
		 WHERE code = $1 AND NOT ($2 = ANY(barcodes))`,
		code, ean, time.Now())
	if err != nil {
		return fmt.Errorf("add barcode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// UpdateDescription обновляет описание товара.
func (r *Repository) UpdateDescription(ctx context.Context, code, description string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET description = $2, updated_at = $3 WHERE code = $1`,
		code, description, time.Now())
	if err != nil {
		return fmt.Errorf("update description: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
