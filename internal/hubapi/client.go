// Package hubapi реализует HTTP-клиент хаба для мобильного агента.
package hubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/picking-system/internal/model"
)

// Client выполняет запросы к API хаба. Кратковременные сетевые сбои
// ретраятся на уровне транспорта; устойчивые отказы отдаются вызывающему,
// который решает судьбу операции через очередь.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
}

// NewClient создаёт клиент хаба.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = nil

	return &Client{
		http:    c,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Health проверяет достижимость хаба и готовность его хранилища.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Success bool `json:"success"`
	}
	if err := c.getJSON(ctx, "/api/sync/health", &body); err != nil {
		return err
	}
	if !body.Success {
		return fmt.Errorf("hub is not healthy")
	}
	return nil
}

// Inventory загружает полный складской справочник.
func (c *Client) Inventory(ctx context.Context) ([]model.Product, error) {
	var body struct {
		Success  bool            `json:"success"`
		Products []model.Product `json:"products"`
	}
	if err := c.getJSON(ctx, "/api/sync/inventory", &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("inventory request rejected")
	}
	return body.Products, nil
}

// CompleteOrder отправляет завершённый заказ на проводку.
// Подтверждением служит только явный success в теле ответа.
func (c *Client) CompleteOrder(ctx context.Context, order *model.Order) (*model.CompletionResult, error) {
	req := struct {
		Order     *model.Order `json:"order"`
		Timestamp time.Time    `json:"timestamp"`
	}{Order: order, Timestamp: time.Now()}

	var result model.CompletionResult
	if err := c.postJSON(ctx, "/api/sync/complete-order", req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return &result, fmt.Errorf("completion rejected: %s", result.Error)
	}

	return &result, nil
}

// UploadLogs отправляет пакет записей журнала действий.
func (c *Client) UploadLogs(ctx context.Context, logs []model.ActivityLog) error {
	req := struct {
		Logs      []model.ActivityLog `json:"logs"`
		Timestamp time.Time           `json:"timestamp"`
	}{Logs: logs, Timestamp: time.Now()}

	var body struct {
		Success bool `json:"success"`
	}
	if err := c.postJSON(ctx, "/api/sync/upload-logs", req, &body); err != nil {
		return err
	}
	if !body.Success {
		return fmt.Errorf("logs upload rejected")
	}
	return nil
}

// UploadDocument отправляет сформированный на устройстве документ.
func (c *Client) UploadDocument(ctx context.Context, fileName string, content []byte) error {
	req := struct {
		FileName  string    `json:"file_name"`
		Content   string    `json:"content"`
		Timestamp time.Time `json:"timestamp"`
	}{FileName: fileName, Content: string(content), Timestamp: time.Now()}

	var body struct {
		Success bool `json:"success"`
	}
	if err := c.postJSON(ctx, "/api/sync/upload-document", req, &body); err != nil {
		return err
	}
	if !body.Success {
		return fmt.Errorf("document upload rejected")
	}
	return nil
}

// StartSession регистрирует начало смены оператора на хабе.
func (c *Client) StartSession(ctx context.Context, operator string) (string, error) {
	req := struct {
		Operator  string    `json:"operator"`
		Timestamp time.Time `json:"timestamp"`
	}{Operator: operator, Timestamp: time.Now()}

	var body struct {
		Success   bool   `json:"success"`
		SessionID string `json:"session_id"`
	}
	if err := c.postJSON(ctx, "/api/sync/start-session", req, &body); err != nil {
		return "", err
	}
	if !body.Success {
		return "", fmt.Errorf("session rejected")
	}
	return body.SessionID, nil
}

// PendingOrders возвращает список файлов заказов, ожидающих комплектации.
func (c *Client) PendingOrders(ctx context.Context) ([]model.OrderFileInfo, error) {
	var body struct {
		Success bool                  `json:"success"`
		Orders  []model.OrderFileInfo `json:"orders"`
	}
	if err := c.getJSON(ctx, "/api/sync/pending-orders", &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("pending orders request rejected")
	}
	return body.Orders, nil
}

// LoadOrder запрашивает у хаба заказ из указанного файла.
func (c *Client) LoadOrder(ctx context.Context, fileName string) (*model.Order, error) {
	req := struct {
		FileName string `json:"file_name"`
	}{FileName: fileName}

	var body struct {
		Success bool         `json:"success"`
		Order   *model.Order `json:"order"`
	}
	if err := c.postJSON(ctx, "/api/orders/load", req, &body); err != nil {
		return nil, err
	}
	if !body.Success || body.Order == nil {
		return nil, fmt.Errorf("order load rejected")
	}
	return body.Order, nil
}
