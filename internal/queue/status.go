package queue

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mmeshcher/picking-system/internal/model"
)

// Status возвращает текущее состояние синхронизации.
// Запись единственная на хранилище и создаётся при открытии.
func (s *Store) Status() (model.SyncStatus, error) {
	var (
		st       model.SyncStatus
		syncing  int
		lastSync sql.NullInt64
		mode     string
	)

	if err := s.db.QueryRow(
		`SELECT is_syncing, last_sync, pending, last_error, mode FROM sync_status WHERE id = 1`,
	).Scan(&syncing, &lastSync, &st.PendingOperations, &st.LastError, &mode); err != nil {
		return model.SyncStatus{}, fmt.Errorf("select status: %w", err)
	}

	st.IsSyncing = syncing != 0
	st.Mode = model.SyncMode(mode)
	if lastSync.Valid {
		t := time.Unix(0, lastSync.Int64)
		st.LastSync = &t
	}

	return st, nil
}

// SaveStatus сохраняет состояние синхронизации.
func (s *Store) SaveStatus(st model.SyncStatus) error {
	var lastSync any
	if st.LastSync != nil {
		lastSync = st.LastSync.UnixNano()
	}

	syncing := 0
	if st.IsSyncing {
		syncing = 1
	}

	if _, err := s.db.Exec(
		`UPDATE sync_status SET is_syncing = ?, last_sync = ?, pending = ?, last_error = ?, mode = ?
		 WHERE id = 1`,
		syncing, lastSync, st.PendingOperations, st.LastError, string(st.Mode),
	); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	return nil
}
