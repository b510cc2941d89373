// Package service содержит бизнес-логику хаба: сверку остатков по
// завершённым заказам, массовое слияние справочника и работу с файлами
// заказов и отгрузочных документов.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/picking-system/internal/csvx"
	"github.com/mmeshcher/picking-system/internal/model"
	"github.com/mmeshcher/picking-system/internal/repository"
)

// Repository описывает операции хранилища, используемые сервисом.
type Repository interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProductByCode(ctx context.Context, code string) (*model.Product, error)
	GetProductByBarcode(ctx context.Context, ean string) (*model.Product, error)
	ApplyPicks(ctx context.Context, orderID, operator string, picks []model.LineItem) (applied, missing int, err error)
	InsertActivityLogs(ctx context.Context, logs []model.ActivityLog) (int, error)
	CreateSession(ctx context.Context, id, operator string, startedAt time.Time) error
	InsertProduct(ctx context.Context, p model.Product) error
	UpdateQuantityPrice(ctx context.Context, code string, quantity, priceCents int64) error
	AddProductBarcode(ctx context.Context, code, ean string) error
	UpdateDescription(ctx context.Context, code, description string) error
	Ping(ctx context.Context) error
}

// OrderFiles описывает файловое хранилище заказов и документов.
type OrderFiles interface {
	List() ([]model.OrderFileInfo, error)
	Load(fileName string) (*model.Order, error)
	Archive(fileName string) error
	SaveDocument(name string, data []byte) error
}

// Confirmer принимает решения по изменениям справочника, требующим
// подтверждения при массовом слиянии. Количества и цены применяются
// автоматически и через Confirmer не проходят.
type Confirmer interface {
	ConfirmNewProduct(p model.Product) bool
	ConfirmBarcode(code, ean string) bool
	ConfirmDescription(code, old, new string) bool
}

// AcceptAll — политика слияния, подтверждающая все изменения.
// Используется при необслуживаемом импорте.
type AcceptAll struct{}

func (AcceptAll) ConfirmNewProduct(model.Product) bool           { return true }
func (AcceptAll) ConfirmBarcode(string, string) bool             { return true }
func (AcceptAll) ConfirmDescription(string, string, string) bool { return true }

// Service реализует бизнес-логику хаба.
type Service struct {
	repo   Repository
	files  OrderFiles
	logger *zap.Logger
}

// NewService создаёт сервис хаба.
func NewService(repo Repository, files OrderFiles, logger *zap.Logger) *Service {
	return &Service{repo: repo, files: files, logger: logger}
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Inventory возвращает полный складской справочник.
func (s *Service) Inventory(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// CompleteOrder проводит завершённый заказ: списывает отобранные
// количества, формирует отгрузочный документ и убирает файл заказа из
// списка ожидающих. Списание атомарно и идемпотентно: повторная доставка
// того же заказа подтверждается успехом без изменения остатков.
// Ненайденные позиции не прерывают проводку — остальные списываются,
// а их число возвращается в lookup_errors.
func (s *Service) CompleteOrder(ctx context.Context, order *model.Order) *model.CompletionResult {
	result := &model.CompletionResult{}

	applied, missing, err := s.repo.ApplyPicks(ctx, order.ID, order.Operator, order.PickedLines())
	switch {
	case errors.Is(err, repository.ErrOrderAlreadyProcessed):
		s.logger.Info("order already processed, confirming replay",
			zap.String("order", order.ID))
		result.Success = true
		result.AlreadyProcessed = true
		return result
	case err != nil:
		s.logger.Error("apply picks failed",
			zap.String("order", order.ID), zap.Error(err))
		result.Error = "inventory update failed"
		return result
	}

	result.Success = true
	result.UpdatesApplied = applied
	result.LookupErrors = missing

	// Документ и перемещение файла не влияют на успех проводки:
	// остатки уже списаны, а повторная проводка невозможна.
	var buf bytes.Buffer
	if err := csvx.WriteShipmentDocument(&buf, order); err != nil {
		s.logger.Error("generate shipment document failed",
			zap.String("order", order.ID), zap.Error(err))
	} else {
		docName := fmt.Sprintf("DDT_%s_%s.csv", order.ID, time.Now().Format("20060102_150405"))
		if err := s.files.SaveDocument(docName, buf.Bytes()); err != nil {
			s.logger.Error("save shipment document failed",
				zap.String("order", order.ID), zap.Error(err))
		} else {
			result.DocumentGenerated = true
		}
	}

	if order.FileName != "" {
		if err := s.files.Archive(order.FileName); err != nil {
			s.logger.Warn("archive order file failed",
				zap.String("file", order.FileName), zap.Error(err))
		} else {
			result.FileMoved = true
		}
	}

	s.logger.Info("order completed",
		zap.String("order", order.ID),
		zap.String("operator", order.Operator),
		zap.Int("updates_applied", applied),
		zap.Int("lookup_errors", missing))

	return result
}

// MergeInventory сверяет справочник с новой выгрузкой. Строки выгрузки
// сопоставляются с товарами по коду, затем по штрихкодам. Количества и цены
// обновляются автоматически; новые товары, штрихкоды и изменённые
// описания проходят через политику подтверждения. Пустые входящие поля
// никогда не затирают существующие данные и подтверждения не запрашивают.
func (s *Service) MergeInventory(ctx context.Context, incoming []model.Product, confirm Confirmer) (*model.MergeSummary, error) {
	summary := &model.MergeSummary{}

	for _, in := range incoming {
		existing, err := s.repo.GetProductByCode(ctx, in.Code)
		if errors.Is(err, repository.ErrProductNotFound) {
			// Код не найден: товар мог сменить код, ищем по штрихкодам.
			existing, err = s.findByBarcodes(ctx, in.Barcodes)
		}
		if errors.Is(err, repository.ErrProductNotFound) {
			if !confirm.ConfirmNewProduct(in) {
				continue
			}
			if err := s.repo.InsertProduct(ctx, in); err != nil {
				return nil, fmt.Errorf("insert product %s: %w", in.Code, err)
			}
			summary.NewProducts++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup product %s: %w", in.Code, err)
		}

		price := existing.PriceCents
		if in.PriceCents != 0 {
			price = in.PriceCents
		}
		if in.Quantity != existing.Quantity || price != existing.PriceCents {
			if err := s.repo.UpdateQuantityPrice(ctx, existing.Code, in.Quantity, price); err != nil {
				return nil, fmt.Errorf("update product %s: %w", existing.Code, err)
			}
			if in.Quantity != existing.Quantity {
				summary.QuantitiesUpdated++
			}
			if price != existing.PriceCents {
				summary.PricesUpdated++
			}
		}

		for _, ean := range in.Barcodes {
			if ean == "" || existing.HasBarcode(ean) {
				continue
			}
			if !confirm.ConfirmBarcode(existing.Code, ean) {
				continue
			}
			if err := s.repo.AddProductBarcode(ctx, existing.Code, ean); err != nil {
				return nil, fmt.Errorf("add barcode %s to %s: %w", ean, existing.Code, err)
			}
			summary.BarcodesAdded++
		}

		if in.Description != "" && in.Description != existing.Description {
			if !confirm.ConfirmDescription(existing.Code, existing.Description, in.Description) {
				continue
			}
			if err := s.repo.UpdateDescription(ctx, existing.Code, in.Description); err != nil {
				return nil, fmt.Errorf("update description %s: %w", existing.Code, err)
			}
			summary.DescriptionsUpdated++
		}
	}

	s.logger.Info("inventory merge finished",
		zap.Int("new_products", summary.NewProducts),
		zap.Int("quantities_updated", summary.QuantitiesUpdated),
		zap.Int("prices_updated", summary.PricesUpdated),
		zap.Int("barcodes_added", summary.BarcodesAdded),
		zap.Int("descriptions_updated", summary.DescriptionsUpdated))

	return summary, nil
}

// findByBarcodes ищет товар по любому из штрихкодов выгрузки.
func (s *Service) findByBarcodes(ctx context.Context, barcodes []string) (*model.Product, error) {
	for _, ean := range barcodes {
		if ean == "" {
			continue
		}
		p, err := s.repo.GetProductByBarcode(ctx, ean)
		if errors.Is(err, repository.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, repository.ErrProductNotFound
}

// RecordLogs сохраняет пакет записей журнала действий операторов.
// Возвращает число фактически сохранённых записей; повторы отбрасываются.
func (s *Service) RecordLogs(ctx context.Context, logs []model.ActivityLog) (int, error) {
	inserted, err := s.repo.InsertActivityLogs(ctx, logs)
	if err != nil {
		return 0, fmt.Errorf("record logs: %w", err)
	}

	if inserted < len(logs) {
		s.logger.Info("duplicate activity logs skipped",
			zap.Int("received", len(logs)), zap.Int("inserted", inserted))
	}

	return inserted, nil
}

// StartSession регистрирует начало рабочей смены оператора и возвращает
// идентификатор сессии.
func (s *Service) StartSession(ctx context.Context, operator string) (string, error) {
	id := uuid.New().String()
	if err := s.repo.CreateSession(ctx, id, operator, time.Now()); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}

	s.logger.Info("session started",
		zap.String("operator", operator), zap.String("session", id))

	return id, nil
}

// PendingOrders возвращает список файлов заказов, ожидающих комплектации.
func (s *Service) PendingOrders(ctx context.Context) ([]model.OrderFileInfo, error) {
	return s.files.List()
}

// LoadOrder читает файл заказа и готовит заказ к комплектации.
func (s *Service) LoadOrder(ctx context.Context, fileName string) (*model.Order, error) {
	return s.files.Load(fileName)
}

// SaveDocument сохраняет документ, сформированный на устройстве.
func (s *Service) SaveDocument(ctx context.Context, name string, data []byte) error {
	return s.files.SaveDocument(name, data)
}
