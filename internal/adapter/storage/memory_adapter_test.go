package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

func TestMemoryStock_NeverNegative(t *testing.T) {
	ctx := context.Background()
	stock := NewMemoryStock()
	stock.SetStock(ctx, "Rice", 20)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if n, _ := stock.DecrementStock(ctx, "Rice", 1); n == 1 {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 20 {
		t.Errorf("expected 20 successes, got %d", successCount.Load())
	}
	level, _ := stock.Level(ctx, "Rice")
	if level != 0 {
		t.Errorf("expected stock 0, got %d", level)
	}

	level, _ = stock.IncrementStock(ctx, "Rice", 50)
	if level != 50 {
		t.Errorf("expected stock 50, got %d", level)
	}
}

func TestMemoryStock_ClampsOversizedSale(t *testing.T) {
	ctx := context.Background()
	stock := NewMemoryStock()
	stock.SetStock(ctx, "Rice", 3)

	if taken, _ := stock.DecrementStock(ctx, "Rice", 5); taken != 3 {
		t.Errorf("expected 3 units taken, got %d", taken)
	}
	if level, _ := stock.Level(ctx, "Rice"); level != 0 {
		t.Errorf("expected stock 0, got %d", level)
	}
	if taken, _ := stock.DecrementStock(ctx, "Rice", 1); taken != 0 {
		t.Errorf("expected nothing taken from empty stock, got %d", taken)
	}
}

func TestMemoryCache_InvoiceExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.SaveInvoice(ctx, domain.Invoice{InvoiceID: "inv-1", Quantity: 50}, time.Minute)

	got, _ := cache.GetInvoice(ctx, "inv-1")
	if got == nil || got.Quantity != 50 {
		t.Fatalf("unexpected invoice: %+v", got)
	}

	now = now.Add(2 * time.Minute)
	got, _ = cache.GetInvoice(ctx, "inv-1")
	if got != nil {
		t.Error("expected invoice to expire")
	}

	got, _ = cache.GetInvoice(ctx, "inv-unknown")
	if got != nil {
		t.Error("expected nil for unknown invoice")
	}
}

func TestMemoryCache_ClaimProof(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	if ok, _ := cache.ClaimProof(ctx, "0xABC"); !ok {
		t.Fatal("expected first claim to succeed")
	}
	if ok, _ := cache.ClaimProof(ctx, "0xABC"); ok {
		t.Error("expected second claim to fail")
	}
	cache.ReleaseProof(ctx, "0xABC")
	if ok, _ := cache.ClaimProof(ctx, "0xABC"); !ok {
		t.Error("expected claim after release to succeed")
	}
}

func TestMemoryLedger_AppendOnly(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	if err := ledger.AppendOrder(ctx, testOrder("o-1", "0xA")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	// A reused proof is a second order; only the order id is unique.
	if err := ledger.AppendOrder(ctx, testOrder("o-2", "0xA")); err != nil {
		t.Fatalf("append with reused proof failed: %v", err)
	}
	if err := ledger.AppendOrder(ctx, testOrder("o-1", "0xB")); !errors.Is(err, domain.ErrDuplicateOrder) {
		t.Errorf("expected ErrDuplicateOrder, got: %v", err)
	}

	orders, _ := ledger.ListOrders(ctx)
	if len(orders) != 2 || orders[0].ID != "o-1" || orders[1].ID != "o-2" {
		t.Errorf("unexpected orders: %+v", orders)
	}

	orders[0].ID = "mutated"
	again, _ := ledger.ListOrders(ctx)
	if again[0].ID != "o-1" {
		t.Error("ListOrders must return a copy")
	}
}
