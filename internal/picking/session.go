// Package picking реализует рабочую сессию комплектации заказа на
// мобильном устройстве: отбор позиций по коду и штрихкоду, добавление
// позиций сверх заказа и завершение заказа. Каждая мутация немедленно
// сохраняет рабочую копию заказа в устойчивое хранилище.
package picking

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/picking-system/internal/model"
)

var (
	// ErrAlreadyCompleted возвращается при повторном завершении заказа.
	ErrAlreadyCompleted = errors.New("order already completed")
	// ErrUnknownProduct возвращается для кода или штрихкода вне справочника.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrLineNotFound возвращается при обращении к отсутствующей позиции.
	ErrLineNotFound = errors.New("order line not found")
	// ErrNotExtra возвращается при попытке удалить исходную позицию заказа.
	ErrNotExtra = errors.New("only extra lines can be deleted")
	// ErrNegativeQuantity возвращается для отрицательного количества.
	ErrNegativeQuantity = errors.New("quantity cannot be negative")
)

// Saver сохраняет рабочую копию заказа.
type Saver interface {
	SaveWorkingOrder(o model.Order) error
}

// Session — сессия комплектации одного заказа.
type Session struct {
	order *model.Order
	saver Saver

	byCode    map[string]model.Product
	byBarcode map[string]string
}

// NewSession создаёт сессию над заказом с локальной копией справочника.
func NewSession(order *model.Order, products []model.Product, saver Saver) *Session {
	s := &Session{
		order:     order,
		saver:     saver,
		byCode:    make(map[string]model.Product, len(products)),
		byBarcode: make(map[string]string),
	}

	for _, p := range products {
		s.byCode[p.Code] = p
		for _, ean := range p.Barcodes {
			// Первый товар со штрихкодом побеждает при дублях в справочнике.
			if _, ok := s.byBarcode[ean]; !ok {
				s.byBarcode[ean] = p.Code
			}
		}
	}

	return s
}

// Order возвращает заказ сессии.
func (s *Session) Order() *model.Order {
	return s.order
}

func (s *Session) persist() error {
	if err := s.saver.SaveWorkingOrder(*s.order); err != nil {
		return fmt.Errorf("persist working order: %w", err)
	}
	return nil
}

// OnEnter сохраняет рабочую копию при входе в заказ: с этого момента
// заказ переживает аварийное завершение процесса.
func (s *Session) OnEnter() error {
	return s.persist()
}

// OnLeave сохраняет рабочую копию при выходе из заказа.
func (s *Session) OnLeave() error {
	return s.persist()
}

// Scan отбирает одну единицу товара по штрихкоду.
func (s *Session) Scan(ean string) error {
	code, ok := s.byBarcode[ean]
	if !ok {
		return ErrUnknownProduct
	}
	return s.Pick(code, 1)
}

// Pick увеличивает отобранное количество позиции. Если позиции с таким
// кодом в заказе нет, но товар есть в справочнике, добавляется позиция
// сверх заказа.
func (s *Session) Pick(code string, qty int) error {
	if s.order.Status == model.OrderStatusCompleted {
		return ErrAlreadyCompleted
	}
	if qty < 0 {
		return ErrNegativeQuantity
	}

	line := s.order.Line(code)
	if line == nil {
		p, ok := s.byCode[code]
		if !ok {
			return ErrUnknownProduct
		}
		s.order.Items = append(s.order.Items, model.LineItem{
			Code:        p.Code,
			Description: p.Description,
			PriceCents:  p.PriceCents,
			TaxCode:     p.TaxCode,
		})
		line = &s.order.Items[len(s.order.Items)-1]
	}

	line.Picked += qty
	s.order.Recalculate()

	return s.persist()
}

// SetPicked выставляет отобранное количество позиции напрямую.
func (s *Session) SetPicked(code string, qty int) error {
	if s.order.Status == model.OrderStatusCompleted {
		return ErrAlreadyCompleted
	}
	if qty < 0 {
		return ErrNegativeQuantity
	}

	line := s.order.Line(code)
	if line == nil {
		return ErrLineNotFound
	}

	line.Picked = qty
	s.order.Recalculate()

	return s.persist()
}

// DeleteLine удаляет позицию, добавленную сверх заказа.
// Исходные позиции заказа удалить нельзя.
func (s *Session) DeleteLine(code string) error {
	if s.order.Status == model.OrderStatusCompleted {
		return ErrAlreadyCompleted
	}

	for i := range s.order.Items {
		if s.order.Items[i].Code != code {
			continue
		}
		if !s.order.Items[i].IsExtra() {
			return ErrNotExtra
		}
		s.order.Items = append(s.order.Items[:i], s.order.Items[i+1:]...)
		s.order.Recalculate()
		return s.persist()
	}

	return ErrLineNotFound
}

// Complete завершает заказ. Заказ завершается ровно один раз; повторный
// вызов возвращает ErrAlreadyCompleted.
func (s *Session) Complete() error {
	if s.order.Status == model.OrderStatusCompleted {
		return ErrAlreadyCompleted
	}

	now := time.Now()
	s.order.Status = model.OrderStatusCompleted
	s.order.CompletedAt = &now
	s.order.Recalculate()

	return s.persist()
}
