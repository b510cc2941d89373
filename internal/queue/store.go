// Package queue реализует устойчивое локальное хранилище мобильного агента:
// очереди отложенных операций, регистр состояния синхронизации и рабочие
// копии заказов. Хранилище переживает перезапуск процесса; все операции
// атомарны относительно аварийного завершения.
package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mmeshcher/picking-system/internal/model"
)

// ErrEntryNotFound возвращается при обращении к отсутствующей записи очереди.
var ErrEntryNotFound = errors.New("queue entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS queue_entries (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	ref          TEXT NOT NULL DEFAULT '',
	payload      BLOB NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	last_attempt INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_offline_order_ref
	ON queue_entries (ref) WHERE kind = 'offline-order';

CREATE INDEX IF NOT EXISTS idx_queue_kind_created
	ON queue_entries (kind, created_at);

CREATE TABLE IF NOT EXISTS sync_status (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	is_syncing INTEGER NOT NULL DEFAULT 0,
	last_sync  INTEGER,
	pending    INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	mode       TEXT NOT NULL DEFAULT 'online'
);

CREATE TABLE IF NOT EXISTS working_orders (
	id         TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	abandoned  INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
`

// Entry описывает одну запись устойчивой очереди.
type Entry struct {
	ID          string
	Kind        model.QueueKind
	Ref         string
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
	LastAttempt *time.Time
}

// Store предоставляет доступ к локальному хранилищу агента поверх SQLite.
// Очереди принадлежат исключительно движку синхронизации; прочие компоненты
// изменяют их только через Enqueue.
type Store struct {
	db      *sql.DB
	logger  *zap.Logger
	maxSize int
}

// Open открывает (при необходимости создавая) хранилище в указанном каталоге.
func Open(dataDir string, maxSize int, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "picker.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite допускает только одного пишущего; один коннект исключает
	// SQLITE_BUSY между горутинами процесса.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if _, err := db.Exec(
		`INSERT INTO sync_status (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("init status row: %w", err)
	}

	return &Store{db: db, logger: logger, maxSize: maxSize}, nil
}

// Close закрывает хранилище.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue добавляет запись в очередь указанного вида и возвращает признак
// фактической вставки. Для очереди offline-order записи дедуплицируются по
// идентификатору заказа (ref): повторная постановка того же заказа — no-op,
// первая запись побеждает. При превышении ёмкости очереди старейшие записи
// вытесняются по принципу FIFO, каждое вытеснение журналируется.
func (s *Store) Enqueue(kind model.QueueKind, ref string, payload []byte) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT OR IGNORE INTO queue_entries (id, kind, ref, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), string(kind), ref, payload, time.Now().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("insert entry: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if inserted == 0 {
		// Дубликат offline-order: заказ уже ждёт отправки.
		return false, tx.Commit()
	}

	if err := s.trim(tx, kind); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

// trim вытесняет старейшие записи вида сверх настроенной ёмкости.
// Это предохранитель от неограниченного роста, а не механизм корректности.
func (s *Store) trim(tx *sql.Tx, kind model.QueueKind) error {
	var count int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM queue_entries WHERE kind = ?`, string(kind),
	).Scan(&count); err != nil {
		return fmt.Errorf("count entries: %w", err)
	}

	if count <= s.maxSize {
		return nil
	}

	excess := count - s.maxSize
	if _, err := tx.Exec(
		`DELETE FROM queue_entries WHERE id IN (
			SELECT id FROM queue_entries WHERE kind = ?
			ORDER BY created_at ASC LIMIT ?)`,
		string(kind), excess,
	); err != nil {
		return fmt.Errorf("trim entries: %w", err)
	}

	s.logger.Warn("queue overflow, oldest entries discarded",
		zap.String("kind", string(kind)),
		zap.Int("discarded", excess),
		zap.Int("max_size", s.maxSize),
	)

	return nil
}

// Snapshot возвращает записи очереди в порядке постановки.
func (s *Store) Snapshot(kind model.QueueKind) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, ref, payload, attempts, created_at, last_attempt
		 FROM queue_entries WHERE kind = ? ORDER BY created_at ASC`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			kindStr   string
			createdAt int64
			lastAtt   sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &kindStr, &e.Ref, &e.Payload, &e.Attempts, &createdAt, &lastAtt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = model.QueueKind(kindStr)
		e.CreatedAt = time.Unix(0, createdAt)
		if lastAtt.Valid {
			t := time.Unix(0, lastAtt.Int64)
			e.LastAttempt = &t
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}

// Remove удаляет записи с указанными идентификаторами одной транзакцией:
// пакет журналов либо очищается целиком, либо остаётся целиком.
func (s *Store) Remove(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM queue_entries WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// MarkAttempt фиксирует неудачную попытку отправки записи и возвращает
// новое число попыток.
func (s *Store) MarkAttempt(id string) (int, error) {
	res, err := s.db.Exec(
		`UPDATE queue_entries SET attempts = attempts + 1, last_attempt = ? WHERE id = ?`,
		time.Now().UnixNano(), id,
	)
	if err != nil {
		return 0, fmt.Errorf("update attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrEntryNotFound
	}

	var attempts int
	if err := s.db.QueryRow(
		`SELECT attempts FROM queue_entries WHERE id = ?`, id,
	).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("select attempts: %w", err)
	}

	return attempts, nil
}

// Count возвращает длину очереди указанного вида.
func (s *Store) Count(kind model.QueueKind) (int, error) {
	var count int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM queue_entries WHERE kind = ?`, string(kind),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

// CountAll возвращает суммарную длину всех очередей.
func (s *Store) CountAll() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM queue_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count all entries: %w", err)
	}
	return count, nil
}

// WorkingOrder — рабочая копия заказа в локальном хранилище.
// Флаг Abandoned означает, что синхронизация заказа исчерпала попытки
// и более не повторяется.
type WorkingOrder struct {
	Order     model.Order
	Abandoned bool
	UpdatedAt time.Time
}

// SaveWorkingOrder сохраняет (или обновляет) рабочую копию заказа.
func (s *Store) SaveWorkingOrder(o model.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT INTO working_orders (id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		o.ID, payload, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("save working order: %w", err)
	}

	return nil
}

// DeleteWorkingOrder удаляет рабочую копию заказа после подтверждения хабом.
func (s *Store) DeleteWorkingOrder(id string) error {
	if _, err := s.db.Exec(`DELETE FROM working_orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete working order: %w", err)
	}
	return nil
}

// MarkOrderAbandoned помечает рабочую копию заказа как оставленную без
// дальнейших попыток синхронизации.
func (s *Store) MarkOrderAbandoned(id string) error {
	if _, err := s.db.Exec(
		`UPDATE working_orders SET abandoned = 1, updated_at = ? WHERE id = ?`,
		time.Now().UnixNano(), id,
	); err != nil {
		return fmt.Errorf("mark order abandoned: %w", err)
	}
	return nil
}

// WorkingOrders возвращает все рабочие копии заказов.
func (s *Store) WorkingOrders() ([]WorkingOrder, error) {
	rows, err := s.db.Query(`SELECT payload, abandoned, updated_at FROM working_orders ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select working orders: %w", err)
	}
	defer rows.Close()

	var res []WorkingOrder
	for rows.Next() {
		var (
			payload   []byte
			abandoned int
			updatedAt int64
		)
		if err := rows.Scan(&payload, &abandoned, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan working order: %w", err)
		}

		var wo WorkingOrder
		if err := json.Unmarshal(payload, &wo.Order); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		wo.Abandoned = abandoned != 0
		wo.UpdatedAt = time.Unix(0, updatedAt)
		res = append(res, wo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
