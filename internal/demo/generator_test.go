package demo

import (
	"reflect"
	"testing"
	"time"
)

func TestGeneratorDeterministicForSeed(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewGenerator(42, start, 90).Generate(50)
	b := NewGenerator(42, start, 90).Generate(50)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different sales")
	}
	if reflect.DeepEqual(a, NewGenerator(43, start, 90).Generate(50)) {
		t.Fatal("different seeds produced identical sales")
	}
}

func TestGeneratorRecordsAreConsistent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * 24 * time.Hour)
	sales := NewGenerator(7, start, 10).Generate(500)

	withDiscount := 0
	for i, sale := range sales {
		if sale.OrderID != int64(i+1) {
			t.Fatalf("OrderID = %d, want %d", sale.OrderID, i+1)
		}
		if sale.OrderedAt.Before(start) || !sale.OrderedAt.Before(end) {
			t.Fatalf("OrderedAt = %s outside window", sale.OrderedAt)
		}
		if sale.Units < 1 || sale.UnitPrice <= 0 || sale.Revenue <= 0 {
			t.Fatalf("sale %d has non-positive amounts: %+v", i, sale)
		}
		gross := float64(sale.Units) * sale.UnitPrice
		if sale.Discount == nil {
			if sale.Revenue != round2(gross) {
				t.Fatalf("sale %d revenue = %v, want %v", i, sale.Revenue, round2(gross))
			}
			continue
		}
		withDiscount++
		if sale.Revenue >= gross {
			t.Fatalf("sale %d discount not applied: %+v", i, sale)
		}
	}
	if withDiscount == 0 || withDiscount == len(sales) {
		t.Fatalf("discount count = %d, want a mix of null and non-null", withDiscount)
	}
}
