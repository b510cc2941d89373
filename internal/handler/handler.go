// Package handler содержит HTTP-обработчики API хаба.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/picking-system/internal/csvx"
	"github.com/mmeshcher/picking-system/internal/model"
	"github.com/mmeshcher/picking-system/internal/service"
)

// Service описывает операции бизнес-логики, используемые обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	Inventory(ctx context.Context) ([]model.Product, error)
	CompleteOrder(ctx context.Context, order *model.Order) *model.CompletionResult
	RecordLogs(ctx context.Context, logs []model.ActivityLog) (int, error)
	StartSession(ctx context.Context, operator string) (string, error)
	PendingOrders(ctx context.Context) ([]model.OrderFileInfo, error)
	LoadOrder(ctx context.Context, fileName string) (*model.Order, error)
	SaveDocument(ctx context.Context, name string, data []byte) error
	MergeInventory(ctx context.Context, incoming []model.Product, confirm service.Confirmer) (*model.MergeSummary, error)
}

// Handler обрабатывает HTTP-запросы хаба.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("write response failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// Health отвечает на проверку живости процесса.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// SyncHealth — проба достижимости для мобильных агентов. Отвечает успехом
// только при доступной базе данных: агенту нет смысла начинать проход
// синхронизации против хаба с лежащим хранилищем.
func (h *Handler) SyncHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("database ping failed", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	products, err := h.service.Inventory(r.Context())
	if err != nil {
		h.logger.Error("list inventory failed", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"status":    "ok",
		"products":  len(products),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GetInventory отдаёт полный складской справочник.
func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Inventory(r.Context())
	if err != nil {
		h.logger.Error("list inventory failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"products": products,
	})
}

type completeOrderRequest struct {
	Order     model.Order `json:"order"`
	Timestamp time.Time   `json:"timestamp"`
}

// CompleteOrder принимает завершённый заказ от агента и проводит его.
// Ответ всегда несёт явный флаг success: транспортный 200 сам по себе
// подтверждением не является.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req completeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Order.ID == "" {
		h.writeError(w, http.StatusBadRequest, "order id is required")
		return
	}

	result := h.service.CompleteOrder(r.Context(), &req.Order)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	h.writeJSON(w, status, result)
}

type uploadLogsRequest struct {
	Logs      []model.ActivityLog `json:"logs"`
	Timestamp time.Time           `json:"timestamp"`
}

// UploadLogs принимает пакет записей журнала действий.
func (h *Handler) UploadLogs(w http.ResponseWriter, r *http.Request) {
	var req uploadLogsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.service.RecordLogs(r.Context(), req.Logs)
	if err != nil {
		h.logger.Error("record logs failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"saved":   saved,
	})
}

type uploadDocumentRequest struct {
	FileName  string    `json:"file_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UploadDocument сохраняет документ, сформированный на устройстве.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	var req uploadDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileName == "" {
		h.writeError(w, http.StatusBadRequest, "file name is required")
		return
	}

	if err := h.service.SaveDocument(r.Context(), req.FileName, []byte(req.Content)); err != nil {
		h.logger.Error("save document failed",
			zap.String("file", req.FileName), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type startSessionRequest struct {
	Operator  string    `json:"operator"`
	Timestamp time.Time `json:"timestamp"`
}

// StartSession регистрирует начало рабочей смены оператора.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Operator == "" {
		h.writeError(w, http.StatusBadRequest, "operator is required")
		return
	}

	id, err := h.service.StartSession(r.Context(), req.Operator)
	if err != nil {
		h.logger.Error("start session failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": id,
	})
}

// PendingOrders возвращает список файлов заказов, ожидающих комплектации.
func (h *Handler) PendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.PendingOrders(r.Context())
	if err != nil {
		h.logger.Error("list pending orders failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  orders,
	})
}

type loadOrderRequest struct {
	FileName string `json:"file_name"`
}

// LoadOrder читает файл заказа и возвращает заказ для комплектации.
func (h *Handler) LoadOrder(w http.ResponseWriter, r *http.Request) {
	var req loadOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileName == "" {
		h.writeError(w, http.StatusBadRequest, "file name is required")
		return
	}

	order, err := h.service.LoadOrder(r.Context(), req.FileName)
	if err != nil {
		if errors.Is(err, service.ErrOrderFileNotFound) {
			h.writeError(w, http.StatusNotFound, "order file not found")
			return
		}
		h.logger.Error("load order failed",
			zap.String("file", req.FileName), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   order,
	})
}

// ImportInventory принимает выгрузку справочника в теле запроса и
// сливает её с текущим справочником. Импорт необслуживаемый, поэтому
// все изменения подтверждаются автоматически.
func (h *Handler) ImportInventory(w http.ResponseWriter, r *http.Request) {
	products, err := csvx.ParseInventory(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid inventory file")
		return
	}

	summary, err := h.service.MergeInventory(r.Context(), products, service.AcceptAll{})
	if err != nil {
		h.logger.Error("merge inventory failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"summary": summary,
	})
}

// ExportInventory выгружает справочник файлом для учётной системы.
func (h *Handler) ExportInventory(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Inventory(r.Context())
	if err != nil {
		h.logger.Error("list inventory failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="inventory.csv"`)
	if err := csvx.WriteInventory(w, products); err != nil {
		h.logger.Error("write inventory export failed", zap.Error(err))
	}
}
