// Package syncer реализует движок синхронизации мобильного агента:
// периодические проходы по устойчивым очередям, экспоненциальные повторы
// и ведение регистра состояния синхронизации.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/picking-system/internal/config"
	"github.com/mmeshcher/picking-system/internal/model"
	"github.com/mmeshcher/picking-system/internal/queue"
)

// ErrSyncInProgress возвращается при попытке запустить проход,
// пока предыдущий не завершён.
var ErrSyncInProgress = errors.New("sync already in progress")

// HubClient описывает операции хаба, используемые движком.
type HubClient interface {
	Health(ctx context.Context) error
	CompleteOrder(ctx context.Context, order *model.Order) (*model.CompletionResult, error)
	UploadLogs(ctx context.Context, logs []model.ActivityLog) error
	UploadDocument(ctx context.Context, fileName string, content []byte) error
	PendingOrders(ctx context.Context) ([]model.OrderFileInfo, error)
}

// Operation — отложенная операция очереди generic-operation.
type Operation struct {
	Type     model.OperationType `json:"type"`
	Order    *model.Order        `json:"order,omitempty"`
	FileName string              `json:"file_name,omitempty"`
	Content  []byte              `json:"content,omitempty"`
	Logs     []model.ActivityLog `json:"logs,omitempty"`
}

// Engine выполняет проходы синхронизации. В каждый момент времени идёт
// не более одного прохода; конкурирующие запуски немедленно отклоняются.
type Engine struct {
	store   *queue.Store
	client  HubClient
	logger  *zap.Logger
	backoff *Controller

	interval    time.Duration
	maxAttempts int
	operator    string
	deviceID    string

	mu      sync.Mutex
	syncing bool

	kick chan struct{}
}

// NewEngine создаёт движок синхронизации.
func NewEngine(store *queue.Store, client HubClient, cfg *config.AgentConfig, deviceID string, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		client:      client,
		logger:      logger,
		backoff:     NewController(cfg.BackoffBase, cfg.BackoffCap),
		interval:    cfg.SyncInterval,
		maxAttempts: cfg.MaxAttempts,
		operator:    cfg.Operator,
		deviceID:    deviceID,
		kick:        make(chan struct{}, 1),
	}
}

// Kick запрашивает внеочередной проход синхронизации. Вызов не блокирует:
// если запрос уже стоит, повторный схлопывается с ним.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run выполняет проходы синхронизации по таймеру и по запросам Kick
// до отмены контекста.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-e.kick:
		}

		if err := e.TrySync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			e.logger.Warn("sync pass failed", zap.Error(err))
		}
	}
}

// TrySync выполняет один проход синхронизации. Если проход уже идёт,
// немедленно возвращает ErrSyncInProgress. Неудачный проход переводит
// агента в режим degraded и планирует повтор с растущей задержкой;
// успешный сбрасывает задержку и фиксирует время синхронизации.
func (e *Engine) TrySync(ctx context.Context) error {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return ErrSyncInProgress
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	e.setSyncing(true)

	passErr := e.pass(ctx)

	e.finalize(passErr)

	if passErr != nil {
		d := e.backoff.Next()
		e.logger.Warn("sync pass failed, retry scheduled",
			zap.Error(passErr), zap.Duration("delay", d))
		time.AfterFunc(d, e.Kick)
		return passErr
	}

	e.backoff.Reset()
	return nil
}

func (e *Engine) pass(ctx context.Context) error {
	var failed []error

	if err := e.syncLogs(ctx); err != nil {
		failed = append(failed, fmt.Errorf("logs: %w", err))
	}
	if err := e.syncOperations(ctx); err != nil {
		failed = append(failed, fmt.Errorf("operations: %w", err))
	}
	if err := e.syncOrders(ctx); err != nil {
		failed = append(failed, fmt.Errorf("orders: %w", err))
	}

	// Сведения о новых заказах не влияют на исход прохода.
	if orders, err := e.client.PendingOrders(ctx); err == nil && len(orders) > 0 {
		e.logger.Info("orders waiting on hub", zap.Int("count", len(orders)))
	}

	return errors.Join(failed...)
}

// syncLogs отправляет журнал действий одним пакетом. Очередь очищается
// только после подтверждения хабом; доставка «как минимум один раз»,
// повторы хаб отбрасывает по идентификаторам записей.
func (e *Engine) syncLogs(ctx context.Context) error {
	entries, err := e.store.Snapshot(model.KindActivityLog)
	if err != nil {
		return fmt.Errorf("snapshot logs: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	logs := make([]model.ActivityLog, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		var l model.ActivityLog
		if err := json.Unmarshal(entry.Payload, &l); err != nil {
			e.logger.Error("corrupt log entry dropped",
				zap.String("entry", entry.ID), zap.Error(err))
			ids = append(ids, entry.ID)
			continue
		}
		logs = append(logs, l)
		ids = append(ids, entry.ID)
	}

	if len(logs) > 0 {
		if err := e.client.UploadLogs(ctx, logs); err != nil {
			return fmt.Errorf("upload logs: %w", err)
		}
	}

	if err := e.store.Remove(ids...); err != nil {
		return fmt.Errorf("clear log queue: %w", err)
	}

	e.logger.Info("activity logs synced", zap.Int("count", len(logs)))
	return nil
}

// syncOperations воспроизводит отложенные операции по одной в порядке
// постановки. Операция, исчерпавшая попытки, удаляется из очереди
// с записью в журнал действий.
func (e *Engine) syncOperations(ctx context.Context) error {
	entries, err := e.store.Snapshot(model.KindOperation)
	if err != nil {
		return fmt.Errorf("snapshot operations: %w", err)
	}

	var failed int
	for _, entry := range entries {
		var op Operation
		if err := json.Unmarshal(entry.Payload, &op); err != nil {
			e.logger.Error("corrupt operation dropped",
				zap.String("entry", entry.ID), zap.Error(err))
			if err := e.store.Remove(entry.ID); err != nil {
				return fmt.Errorf("remove entry: %w", err)
			}
			continue
		}

		if err := e.execute(ctx, op); err != nil {
			failed++
			if err := e.handleFailure(entry, string(op.Type), err); err != nil {
				return err
			}
			continue
		}

		if err := e.store.Remove(entry.ID); err != nil {
			return fmt.Errorf("remove entry: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d operations failed", failed)
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, op Operation) error {
	switch op.Type {
	case model.OpCompleteOrder:
		if op.Order == nil {
			return errors.New("operation without order")
		}
		_, err := e.client.CompleteOrder(ctx, op.Order)
		return err
	case model.OpUploadDocument:
		return e.client.UploadDocument(ctx, op.FileName, op.Content)
	case model.OpUploadLogs:
		return e.client.UploadLogs(ctx, op.Logs)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

// syncOrders отправляет завершённые офлайн заказы на проводку.
// Подтверждение повтора (already_processed) равнозначно успеху: остатки
// хаб уже списал при первой доставке.
func (e *Engine) syncOrders(ctx context.Context) error {
	entries, err := e.store.Snapshot(model.KindOfflineOrder)
	if err != nil {
		return fmt.Errorf("snapshot orders: %w", err)
	}

	var failed int
	for _, entry := range entries {
		var order model.Order
		if err := json.Unmarshal(entry.Payload, &order); err != nil {
			e.logger.Error("corrupt order entry dropped",
				zap.String("entry", entry.ID), zap.Error(err))
			if err := e.store.Remove(entry.ID); err != nil {
				return fmt.Errorf("remove entry: %w", err)
			}
			continue
		}

		result, err := e.client.CompleteOrder(ctx, &order)
		if err != nil {
			failed++
			if err := e.handleOrderFailure(entry, &order, err); err != nil {
				return err
			}
			continue
		}

		if result.AlreadyProcessed {
			e.logger.Info("order replay confirmed", zap.String("order", order.ID))
		}

		if err := e.queueLog(model.ActivityLog{
			Type:     model.LogOrderSyncSuccess,
			Operator: order.Operator,
			Order:    order.ID,
		}); err != nil {
			return err
		}
		if err := e.store.Remove(entry.ID); err != nil {
			return fmt.Errorf("remove entry: %w", err)
		}
		if err := e.store.DeleteWorkingOrder(order.ID); err != nil {
			return fmt.Errorf("delete working order: %w", err)
		}

		e.logger.Info("offline order synced",
			zap.String("order", order.ID),
			zap.Int("updates_applied", result.UpdatesApplied),
			zap.Int("lookup_errors", result.LookupErrors))
	}

	if failed > 0 {
		return fmt.Errorf("%d orders failed", failed)
	}
	return nil
}

// handleFailure учитывает неудачную попытку операции и удаляет её после
// исчерпания попыток.
func (e *Engine) handleFailure(entry queue.Entry, opType string, cause error) error {
	attempts, err := e.store.MarkAttempt(entry.ID)
	if err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}

	if attempts < e.maxAttempts {
		e.logger.Warn("operation attempt failed",
			zap.String("entry", entry.ID),
			zap.String("type", opType),
			zap.Int("attempts", attempts),
			zap.Error(cause))
		return nil
	}

	e.logger.Error("operation abandoned after max attempts",
		zap.String("entry", entry.ID),
		zap.String("type", opType),
		zap.Int("attempts", attempts),
		zap.Error(cause))

	if err := e.queueLog(model.ActivityLog{
		Type:     model.LogSyncAbandoned,
		Operator: e.operator,
		Details:  fmt.Sprintf("operation %s abandoned after %d attempts: %v", opType, attempts, cause),
	}); err != nil {
		return err
	}

	if err := e.store.Remove(entry.ID); err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}
	return nil
}

// handleOrderFailure учитывает неудачную попытку заказа. После исчерпания
// попыток заказ покидает очередь, но рабочая копия остаётся помеченной
// для ручного разбора.
func (e *Engine) handleOrderFailure(entry queue.Entry, order *model.Order, cause error) error {
	attempts, err := e.store.MarkAttempt(entry.ID)
	if err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}

	if attempts < e.maxAttempts {
		e.logger.Warn("order sync attempt failed",
			zap.String("order", order.ID),
			zap.Int("attempts", attempts),
			zap.Error(cause))
		return nil
	}

	e.logger.Error("order sync abandoned after max attempts",
		zap.String("order", order.ID),
		zap.Int("attempts", attempts),
		zap.Error(cause))

	// Запись в журнал ставится до удаления: след оставленного заказа
	// не теряется даже при аварии между шагами.
	if err := e.queueLog(model.ActivityLog{
		Type:     model.LogSyncAbandoned,
		Operator: order.Operator,
		Order:    order.ID,
		Details:  fmt.Sprintf("order sync abandoned after %d attempts: %v", attempts, cause),
	}); err != nil {
		return err
	}

	if err := e.store.Remove(entry.ID); err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}
	if err := e.store.MarkOrderAbandoned(order.ID); err != nil {
		return fmt.Errorf("mark order abandoned: %w", err)
	}
	return nil
}

func (e *Engine) setSyncing(v bool) {
	st, err := e.store.Status()
	if err != nil {
		e.logger.Error("read sync status failed", zap.Error(err))
		return
	}
	st.IsSyncing = v
	if err := e.store.SaveStatus(st); err != nil {
		e.logger.Error("save sync status failed", zap.Error(err))
	}
}

// finalize записывает итог прохода в регистр состояния. Регистр никогда
// не остаётся в состоянии is_syncing после завершения прохода.
func (e *Engine) finalize(passErr error) {
	st, err := e.store.Status()
	if err != nil {
		e.logger.Error("read sync status failed", zap.Error(err))
		return
	}

	st.IsSyncing = false

	pending, err := e.store.CountAll()
	if err != nil {
		e.logger.Error("count pending failed", zap.Error(err))
	} else {
		st.PendingOperations = pending
	}

	if passErr != nil {
		st.Mode = model.SyncModeDegraded
		st.LastError = passErr.Error()
	} else {
		now := time.Now()
		st.LastSync = &now
		st.Mode = model.SyncModeOnline
		st.LastError = ""
	}

	if err := e.store.SaveStatus(st); err != nil {
		e.logger.Error("save sync status failed", zap.Error(err))
	}
}

// Status возвращает текущее состояние синхронизации.
func (e *Engine) Status() (model.SyncStatus, error) {
	return e.store.Status()
}

func (e *Engine) queueLog(l model.ActivityLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.DeviceID == "" {
		l.DeviceID = e.deviceID
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}

	payload, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}
	if _, err := e.store.Enqueue(model.KindActivityLog, "", payload); err != nil {
		return fmt.Errorf("enqueue log: %w", err)
	}
	return nil
}

// QueueLog ставит запись журнала действий в очередь отправки.
func (e *Engine) QueueLog(l model.ActivityLog) error {
	return e.queueLog(l)
}

// QueueOrder сохраняет рабочую копию завершённого заказа и ставит его в
// очередь отправки. Повторная постановка того же заказа схлопывается с
// уже стоящей записью.
func (e *Engine) QueueOrder(o model.Order) error {
	if err := e.store.SaveWorkingOrder(o); err != nil {
		return err
	}

	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	inserted, err := e.store.Enqueue(model.KindOfflineOrder, o.ID, payload)
	if err != nil {
		return fmt.Errorf("enqueue order: %w", err)
	}
	if !inserted {
		e.logger.Info("order already queued", zap.String("order", o.ID))
	}

	e.Kick()
	return nil
}

// QueueOperation ставит отложенную операцию в очередь отправки.
func (e *Engine) QueueOperation(op Operation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	if _, err := e.store.Enqueue(model.KindOperation, "", payload); err != nil {
		return fmt.Errorf("enqueue operation: %w", err)
	}

	e.Kick()
	return nil
}
