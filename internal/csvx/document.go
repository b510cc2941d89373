package csvx

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mmeshcher/picking-system/internal/model"
)

// WriteInventory выгружает складской справочник в формате, пригодном для
// обратного импорта в учётную систему.
func WriteInventory(w io.Writer, products []model.Product) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	header := []string{"Cod.", "Descrizione", "Cod. a barre", "Q.tà disponibile", "Listino 1 (ivato)", "Cod. Iva", "Cod. Udm"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, p := range products {
		record := []string{
			p.Code,
			p.Description,
			strings.Join(p.Barcodes, ","),
			strconv.FormatInt(p.Quantity, 10),
			FormatPrice(p.PriceCents),
			p.TaxCode,
			p.Unit,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteShipmentDocument формирует отгрузочный документ (DDT) по фактически
// отобранным позициям завершённого заказа. Раскладка колонок повторяет
// табличный шаблон, который учётная система принимает на вход.
func WriteShipmentDocument(w io.Writer, order *model.Order) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	header := []string{"Cod.", "Descrizione", "Q.tà", "Prezzo ivato", "U.m.", "Sconti", "Iva", "Mag.", "Importo ivato"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, li := range order.PickedLines() {
		total := li.PriceCents * int64(li.Picked)
		record := []string{
			li.Code,
			li.Description,
			strconv.Itoa(li.Picked),
			FormatPrice(li.PriceCents),
			"", // единица измерения берётся учётной системой из справочника
			li.Discount,
			li.TaxCode,
			"1",
			FormatPrice(total),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
