package csvx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mmeshcher/picking-system/internal/model"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0,00", 0},
		{"12,50", 1250},
		{"1.234,56", 123456},
		{"€ 3,99", 399},
		{"7", 700},
	}

	for _, tt := range tests {
		got, err := ParsePrice(tt.in)
		if err != nil {
			t.Fatalf("ParsePrice(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParsePrice(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	if _, err := ParsePrice("abc"); err == nil {
		t.Fatalf("expected error for invalid price")
	}
}

func TestParseInventory(t *testing.T) {
	src := strings.Join([]string{
		"Cod.;Descrizione;Cod. a barre;Q.tà disponibile;Listino 1 (ivato);Cod. Iva;Cod. Udm",
		"A001;Pasta di semola;8001,8002;120,00;1,49;22;PZ",
		";riga senza codice;;;;;",
		"B002;Olio extravergine;;12,00;8,90;4;LT",
	}, "\n")

	products, err := ParseInventory(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse inventory: %v", err)
	}

	if len(products) != 2 {
		t.Fatalf("products = %d, want 2", len(products))
	}

	p := products[0]
	if p.Code != "A001" || p.Quantity != 120 || p.PriceCents != 149 {
		t.Fatalf("unexpected product: %+v", p)
	}
	if len(p.Barcodes) != 2 || p.Barcodes[0] != "8001" {
		t.Fatalf("barcodes = %v", p.Barcodes)
	}
	if p.Unit != "PZ" || p.TaxCode != "22" {
		t.Fatalf("unit/tax = %s/%s", p.Unit, p.TaxCode)
	}
}

func TestParseInventory_NoHeader(t *testing.T) {
	if _, err := ParseInventory(strings.NewReader("")); err != ErrNoHeader {
		t.Fatalf("err = %v, want ErrNoHeader", err)
	}
	if _, err := ParseInventory(strings.NewReader("foo;bar\n1;2")); err != ErrNoHeader {
		t.Fatalf("err = %v, want ErrNoHeader", err)
	}
}

func TestParseOrder(t *testing.T) {
	src := strings.Join([]string{
		"Cod.;Descrizione;Q.tà;Prezzo ivato;Sconti",
		"A001;Pasta di semola;5;1,49;10%",
		"B002;Olio extravergine;2;8,90;",
	}, "\n")

	items, err := ParseOrder(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse order: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Ordered != 5 || items[0].PriceCents != 149 || items[0].Discount != "10%" {
		t.Fatalf("unexpected item: %+v", items[0])
	}
}

func TestWriteShipmentDocument_OnlyPickedLines(t *testing.T) {
	order := &model.Order{
		ID: "ord-1",
		Items: []model.LineItem{
			{Code: "A001", Description: "Pasta", Picked: 3, PriceCents: 149, TaxCode: "22"},
			{Code: "B002", Description: "Olio", Picked: 0, PriceCents: 890},
		},
	}

	var buf bytes.Buffer
	if err := WriteShipmentDocument(&buf, order); err != nil {
		t.Fatalf("write document: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header plus one record: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "A001") || !strings.Contains(lines[1], "4,47") {
		t.Fatalf("unexpected record: %s", lines[1])
	}
}

func TestWriteInventory_RoundTrip(t *testing.T) {
	products := []model.Product{
		{Code: "A001", Description: "Pasta", Barcodes: []string{"8001"}, Quantity: 120, PriceCents: 149, TaxCode: "22", Unit: "PZ"},
	}

	var buf bytes.Buffer
	if err := WriteInventory(&buf, products); err != nil {
		t.Fatalf("write inventory: %v", err)
	}

	parsed, err := ParseInventory(&buf)
	if err != nil {
		t.Fatalf("parse back: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Code != "A001" || parsed[0].PriceCents != 149 || parsed[0].Quantity != 120 {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}
