package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseTransactionType(t *testing.T) {
	cases := []struct {
		raw  string
		want TransactionType
	}{
		{"Receive", TxReceive},
		{"administer", TxAdminister},
		{" WASTE ", TxWaste},
		{"move", TxMove},
		{"Check", TxCheck},
	}
	for _, tc := range cases {
		got, err := ParseTransactionType(tc.raw)
		if err != nil {
			t.Fatalf("ParseTransactionType(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseTransactionType(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}

	if _, err := ParseTransactionType("refund"); !errors.Is(err, ErrUnknownTransactionType) {
		t.Fatalf("expected ErrUnknownTransactionType, got %v", err)
	}
}

func TestTransactionApply(t *testing.T) {
	cases := []struct {
		tx      Transaction
		balance float64
		want    float64
	}{
		{Transaction{Type: TxReceive, Quantity: 100}, 50, 150},
		{Transaction{Type: TxAdminister, Quantity: 10}, 20, 10},
		{Transaction{Type: TxWaste, Quantity: 2}, 5, 3},
		{Transaction{Type: TxMove, Quantity: 4}, 9, 5},
		{Transaction{Type: TxCheck, Quantity: 3}, 5, 3},
		{Transaction{Type: TxCheck, Quantity: 0}, 7, 0},
	}
	for _, tc := range cases {
		if got := tc.tx.Apply(tc.balance); got != tc.want {
			t.Fatalf("%s(%g) applied to %g = %g, want %g", tc.tx.Type, tc.tx.Quantity, tc.balance, got, tc.want)
		}
	}
}

func TestStockItemValidate(t *testing.T) {
	valid := StockItem{ID: "morphine-10", Name: "Morphine Sulphate", Strength: "10mg/ml", Unit: "ml", Class: ClassControlled}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	malformed := []StockItem{
		{Name: "No ID", Class: ClassStandard},
		{ID: "no-name", Class: ClassStandard},
		{ID: "bad-class", Name: "Bad Class", Class: "Schedule2"},
		{ID: "negative", Name: "Negative", Class: ClassStandard, CurrentBalance: -1},
	}
	for _, item := range malformed {
		if err := item.Validate(); !errors.Is(err, ErrMalformedItem) {
			t.Fatalf("expected ErrMalformedItem for %+v, got %v", item, err)
		}
	}
}

func TestStockItemLowStock(t *testing.T) {
	item := StockItem{ID: "diazepam", Name: "Diazepam", Class: ClassControlled, CurrentBalance: 5, MinLevel: 5}
	if !item.LowStock() {
		t.Fatalf("balance at min level should report low stock")
	}
	item.CurrentBalance = 6
	if item.LowStock() {
		t.Fatalf("balance above min level should not report low stock")
	}
	item.MinLevel = 0
	item.CurrentBalance = 0
	if item.LowStock() {
		t.Fatalf("items without a min level never report low stock")
	}
}

func TestWitnessAssertionSingleUse(t *testing.T) {
	assertion := NewWitnessAssertion("w1", "Jordan Reeves", time.Now())

	if err := assertion.Consume(); err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if err := assertion.Consume(); !errors.Is(err, ErrAssertionSpent) {
		t.Fatalf("expected ErrAssertionSpent on reuse, got %v", err)
	}

	var nilAssertion *WitnessAssertion
	if err := nilAssertion.Consume(); !errors.Is(err, ErrAssertionSpent) {
		t.Fatalf("expected ErrAssertionSpent for nil assertion, got %v", err)
	}
}

func TestGradeOrdering(t *testing.T) {
	if !GradeParamedic.AtLeast(GradeParamedic) {
		t.Fatalf("grade must be at least itself")
	}
	if GradeTechnician.AtLeast(GradeParamedic) {
		t.Fatalf("technician ranks below paramedic")
	}
	if !GradeConsultantParamedic.AtLeast(GradeParamedic) {
		t.Fatalf("consultant ranks above paramedic")
	}
	if Grade("Visitor").AtLeast(GradeStudent) {
		t.Fatalf("unknown grades rank below every known grade")
	}
}
