package model

import "testing"

func TestRecalculate_SumsLineItems(t *testing.T) {
	o := &Order{
		Items: []LineItem{
			{Code: "A", Ordered: 5, Picked: 3},
			{Code: "B", Ordered: 2, Picked: 2},
			{Code: "C", Ordered: 0, Picked: 4},
		},
	}

	o.Recalculate()

	if o.TotalOrdered != 7 {
		t.Fatalf("TotalOrdered = %d, want 7", o.TotalOrdered)
	}
	if o.TotalPicked != 9 {
		t.Fatalf("TotalPicked = %d, want 9", o.TotalPicked)
	}
}

func TestRecalculate_AfterMutation(t *testing.T) {
	o := &Order{
		Items: []LineItem{{Code: "A", Ordered: 5, Picked: 0}},
	}
	o.Recalculate()

	o.Items[0].Picked = 5
	o.Items = append(o.Items, LineItem{Code: "X", Ordered: 0, Picked: 2})
	o.Recalculate()

	if o.TotalOrdered != 5 || o.TotalPicked != 7 {
		t.Fatalf("totals = %d/%d, want 5/7", o.TotalOrdered, o.TotalPicked)
	}

	// Удаление добавленной позиции снова меняет агрегаты.
	o.Items = o.Items[:1]
	o.Recalculate()
	if o.TotalPicked != 5 {
		t.Fatalf("TotalPicked after delete = %d, want 5", o.TotalPicked)
	}
}

func TestLineItem_IsExtra(t *testing.T) {
	if !(LineItem{Ordered: 0, Picked: 1}).IsExtra() {
		t.Fatalf("line with ordered 0 must be extra")
	}
	if (LineItem{Ordered: 3}).IsExtra() {
		t.Fatalf("ordered line must not be extra")
	}
}

func TestProduct_AddBarcode(t *testing.T) {
	p := &Product{Code: "A", Barcodes: []string{"111"}}

	if !p.AddBarcode("222") {
		t.Fatalf("new barcode must be added")
	}
	if p.AddBarcode("222") {
		t.Fatalf("duplicate barcode must be rejected")
	}
	if p.AddBarcode("") {
		t.Fatalf("empty barcode must be rejected")
	}
	if len(p.Barcodes) != 2 {
		t.Fatalf("barcodes = %v, want 2 entries", p.Barcodes)
	}
}

func TestOrder_PickedLines(t *testing.T) {
	o := &Order{
		Items: []LineItem{
			{Code: "A", Picked: 2},
			{Code: "B", Picked: 0},
			{Code: "C", Picked: 1},
		},
	}

	lines := o.PickedLines()
	if len(lines) != 2 {
		t.Fatalf("picked lines = %d, want 2", len(lines))
	}
	if lines[0].Code != "A" || lines[1].Code != "C" {
		t.Fatalf("unexpected picked lines: %+v", lines)
	}
}
