// Package csvx читает и пишет табличные файлы обмена с управленческой
// системой: складской справочник, файлы заказов и отгрузочные документы.
// Файлы используют разделитель «;» и денежные значения с запятой в качестве
// десятичного знака, как их выгружает учётная система.
package csvx

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mmeshcher/picking-system/internal/model"
)

// ErrNoHeader возвращается для файла без строки заголовков.
var ErrNoHeader = errors.New("missing header row")

// Канонические имена колонок после нормализации заголовка.
const (
	colCode        = "code"
	colDescription = "description"
	colBarcodes    = "barcodes"
	colQuantity    = "quantity"
	colPrice       = "price"
	colTax         = "tax"
	colUnit        = "unit"
	colDiscount    = "discount"
)

// headerAliases сопоставляет заголовки выгрузок учётной системы каноническим
// именам. Сравнение ведётся по нормализованной форме (нижний регистр, без
// пробелов по краям).
var headerAliases = map[string]string{
	"cod.":              colCode,
	"cod":               colCode,
	"codice":            colCode,
	"descrizione":       colDescription,
	"desc.":             colDescription,
	"cod. a barre":      colBarcodes,
	"codice a barre":    colBarcodes,
	"barcode":           colBarcodes,
	"q.tà disponibile":  colQuantity,
	"q.ta disponibile":  colQuantity,
	"q.tà":              colQuantity,
	"q.ta":              colQuantity,
	"qta":               colQuantity,
	"listino 1 (ivato)": colPrice,
	"prezzo ivato":      colPrice,
	"prezzo":            colPrice,
	"cod. iva":          colTax,
	"iva":               colTax,
	"cod. udm":          colUnit,
	"u.m.":              colUnit,
	"um":                colUnit,
	"sconti":            colDiscount,
	"sconto":            colDiscount,
}

func normalizeHeader(raw []string) map[string]int {
	cols := make(map[string]int, len(raw))
	for i, h := range raw {
		key := strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := headerAliases[key]; ok {
			if _, seen := cols[canonical]; !seen {
				cols[canonical] = i
			}
		}
	}
	return cols
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// ParsePrice разбирает денежное значение с запятой в качестве десятичного
// знака ("1.234,56") и возвращает сумму в центах. Пустая строка — ноль.
func ParsePrice(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	s = strings.TrimPrefix(s, "€")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}

	cents := int64(v*100 + 0.5)
	if v < 0 {
		cents = int64(v*100 - 0.5)
	}
	return cents, nil
}

// FormatPrice форматирует сумму в центах с запятой в качестве
// десятичного знака.
func FormatPrice(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d,%02d", sign, cents/100, cents%100)
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	return cr
}

// ParseInventory читает выгрузку складского справочника.
// Строки без кода товара пропускаются; несколько штрихкодов в одной
// ячейке разделяются запятыми.
func ParseInventory(r io.Reader) ([]model.Product, error) {
	cr := newReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := normalizeHeader(header)
	if _, ok := cols[colCode]; !ok {
		return nil, ErrNoHeader
	}

	var products []model.Product
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		code := field(record, cols, colCode)
		if code == "" {
			continue
		}

		p := model.Product{
			Code:        code,
			Description: field(record, cols, colDescription),
			Unit:        field(record, cols, colUnit),
			TaxCode:     field(record, cols, colTax),
		}

		for _, ean := range strings.Split(field(record, cols, colBarcodes), ",") {
			p.AddBarcode(strings.TrimSpace(ean))
		}

		if qty := field(record, cols, colQuantity); qty != "" {
			q, err := ParsePrice(qty)
			if err != nil {
				return nil, fmt.Errorf("row %q: %w", code, err)
			}
			// Количества выгружаются в тех же дробных единицах; храним
			// целую часть.
			p.Quantity = q / 100
		}

		if price := field(record, cols, colPrice); price != "" {
			cents, err := ParsePrice(price)
			if err != nil {
				return nil, fmt.Errorf("row %q: %w", code, err)
			}
			p.PriceCents = cents
		}

		products = append(products, p)
	}

	return products, nil
}

// ParseOrder читает файл заказа и возвращает его позиции.
func ParseOrder(r io.Reader) ([]model.LineItem, error) {
	cr := newReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := normalizeHeader(header)
	if _, ok := cols[colCode]; !ok {
		return nil, ErrNoHeader
	}

	var items []model.LineItem
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		code := field(record, cols, colCode)
		if code == "" {
			continue
		}

		li := model.LineItem{
			Code:        code,
			Description: field(record, cols, colDescription),
			Discount:    field(record, cols, colDiscount),
			TaxCode:     field(record, cols, colTax),
		}

		if qty := field(record, cols, colQuantity); qty != "" {
			n, err := strconv.Atoi(strings.Split(qty, ",")[0])
			if err != nil {
				return nil, fmt.Errorf("row %q: parse quantity: %w", code, err)
			}
			li.Ordered = n
		}

		if price := field(record, cols, colPrice); price != "" {
			cents, err := ParsePrice(price)
			if err != nil {
				return nil, fmt.Errorf("row %q: %w", code, err)
			}
			li.PriceCents = cents
		}

		items = append(items, li)
	}

	return items, nil
}
