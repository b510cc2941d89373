// Package model содержит доменные сущности системы комплектации заказов.
package model

import "time"

// OrderStatus описывает стадию жизненного цикла заказа.
type OrderStatus string

const (
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// LineItem описывает одну товарную позицию заказа.
// Позиция с Ordered == 0 считается добавленной сверх исходного заказа
// и может быть удалена оператором; исходные позиции удалять нельзя.
type LineItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Ordered     int    `json:"ordered"`
	Picked      int    `json:"picked"`
	Discount    string `json:"discount,omitempty"`
	TaxCode     string `json:"tax_code,omitempty"`
}

// IsExtra сообщает, была ли позиция добавлена сверх исходного заказа.
func (li LineItem) IsExtra() bool {
	return li.Ordered == 0
}

// Order описывает заказ на комплектацию.
// Поля TotalOrdered и TotalPicked всегда пересчитываются из позиций
// методом Recalculate и никогда не изменяются напрямую.
type Order struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	FileName    string      `json:"file_name,omitempty"`
	Operator    string      `json:"operator"`
	Items       []LineItem  `json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Status      OrderStatus `json:"status"`

	TotalOrdered int `json:"total_ordered"`
	TotalPicked  int `json:"total_picked"`
}

// Recalculate пересчитывает агрегатные количества заказа по позициям.
// Вызывается после любой мутации списка позиций.
func (o *Order) Recalculate() {
	ordered, picked := 0, 0
	for _, li := range o.Items {
		ordered += li.Ordered
		picked += li.Picked
	}
	o.TotalOrdered = ordered
	o.TotalPicked = picked
}

// Line возвращает указатель на позицию с указанным кодом товара.
func (o *Order) Line(code string) *LineItem {
	for i := range o.Items {
		if o.Items[i].Code == code {
			return &o.Items[i]
		}
	}
	return nil
}

// PickedLines возвращает позиции с ненулевым отобранным количеством.
func (o *Order) PickedLines() []LineItem {
	var res []LineItem
	for _, li := range o.Items {
		if li.Picked > 0 {
			res = append(res, li)
		}
	}
	return res
}

// Product описывает запись складского справочника.
// Справочник принадлежит исключительно хабу; количество может уходить
// в минус, поскольку фактический отбор способен превысить остаток.
type Product struct {
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Unit        string    `json:"unit"`
	Barcodes    []string  `json:"barcodes"`
	Quantity    int64     `json:"quantity"`
	PriceCents  int64     `json:"price_cents"`
	TaxCode     string    `json:"tax_code"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasBarcode проверяет принадлежность штрихкода товару.
func (p Product) HasBarcode(ean string) bool {
	for _, b := range p.Barcodes {
		if b == ean {
			return true
		}
	}
	return false
}

// AddBarcode добавляет штрихкод, отбрасывая пустые значения и дубликаты.
func (p *Product) AddBarcode(ean string) bool {
	if ean == "" || p.HasBarcode(ean) {
		return false
	}
	p.Barcodes = append(p.Barcodes, ean)
	return true
}

// ActivityLog описывает одну запись журнала действий оператора.
// Идентификатор записи используется хабом для отбрасывания повторов
// при доставке «как минимум один раз».
type ActivityLog struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Operator  string    `json:"operator"`
	Order     string    `json:"order,omitempty"`
	Product   string    `json:"product,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	DeviceID  string    `json:"device_id"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Типы записей журнала действий.
const (
	LogOrderCompleted   = "ORDER_COMPLETED"
	LogOrderSyncSuccess = "ORDER_SYNC_SUCCESS"
	LogOrderSyncFailed  = "ORDER_SYNC_FAILED"
	LogSyncAbandoned    = "SYNC_ABANDONED"
	LogItemPicked       = "ITEM_PICKED"
	LogSessionStarted   = "SESSION_STARTED"
)

// QueueKind определяет вид устойчивой очереди на мобильном устройстве.
type QueueKind string

const (
	KindActivityLog  QueueKind = "activity-log"
	KindOperation    QueueKind = "generic-operation"
	KindOfflineOrder QueueKind = "offline-order"
)

// OperationType определяет тип отложенной операции в очереди generic-operation.
type OperationType string

const (
	OpCompleteOrder  OperationType = "complete-order"
	OpUploadDocument OperationType = "upload-document"
	OpUploadLogs     OperationType = "upload-logs"
)

// SyncMode описывает режим связи мобильного устройства с хабом.
type SyncMode string

const (
	SyncModeOnline   SyncMode = "online"
	SyncModeOffline  SyncMode = "offline"
	SyncModeDegraded SyncMode = "degraded"
)

// SyncStatus — единственная на процесс запись состояния синхронизации.
type SyncStatus struct {
	IsSyncing         bool       `json:"is_syncing"`
	LastSync          *time.Time `json:"last_sync,omitempty"`
	PendingOperations int        `json:"pending_operations"`
	LastError         string     `json:"last_error,omitempty"`
	Mode              SyncMode   `json:"mode"`
}

// CompletionResult — ответ хаба на завершение заказа.
type CompletionResult struct {
	Success           bool   `json:"success"`
	UpdatesApplied    int    `json:"updates_applied"`
	LookupErrors      int    `json:"lookup_errors"`
	DocumentGenerated bool   `json:"document_generated"`
	FileMoved         bool   `json:"file_moved"`
	AlreadyProcessed  bool   `json:"already_processed,omitempty"`
	Error             string `json:"error,omitempty"`
}

// OrderFileInfo описывает файл заказа, доступный на хабе.
type OrderFileInfo struct {
	FileName string    `json:"file_name"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// MergeSummary — итог массовой сверки справочника с новым файлом.
type MergeSummary struct {
	NewProducts         int `json:"new_products"`
	QuantitiesUpdated   int `json:"quantities_updated"`
	PricesUpdated       int `json:"prices_updated"`
	BarcodesAdded       int `json:"barcodes_added"`
	DescriptionsUpdated int `json:"descriptions_updated"`
}
