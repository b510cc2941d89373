package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/picking-system/internal/model"
	"github.com/mmeshcher/picking-system/internal/queue"
)

// Monitor следит за достижимостью хаба. При потере связи регистр
// состояния переводится в offline; при восстановлении немедленно
// запрашивается внеочередной проход синхронизации.
type Monitor struct {
	client   HubClient
	store    *queue.Store
	engine   *Engine
	logger   *zap.Logger
	interval time.Duration

	online bool
}

// NewMonitor создаёт монитор достижимости.
func NewMonitor(client HubClient, store *queue.Store, engine *Engine, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		client:   client,
		store:    store,
		engine:   engine,
		logger:   logger,
		interval: interval,
		online:   true,
	}
}

// Run опрашивает хаб до отмены контекста.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	err := m.client.Health(ctx)

	switch {
	case err == nil && !m.online:
		m.online = true
		m.logger.Info("hub connection restored, triggering sync")
		m.engine.Kick()
	case err != nil && m.online:
		m.online = false
		m.logger.Warn("hub unreachable", zap.Error(err))
		m.setOffline()
	}
}

func (m *Monitor) setOffline() {
	st, err := m.store.Status()
	if err != nil {
		m.logger.Error("read sync status failed", zap.Error(err))
		return
	}

	st.Mode = model.SyncModeOffline
	if err := m.store.SaveStatus(st); err != nil {
		m.logger.Error("save sync status failed", zap.Error(err))
	}
}
