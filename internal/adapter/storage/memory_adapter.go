package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

// MemoryStock keeps stock levels in process. Used when REDIS_ADDR is unset.
type MemoryStock struct {
	mu     sync.Mutex
	levels map[string]int
}

func NewMemoryStock() *MemoryStock {
	return &MemoryStock{levels: make(map[string]int)}
}

func (m *MemoryStock) DecrementStock(_ context.Context, item string, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	taken := min(m.levels[item], quantity)
	if taken <= 0 {
		return 0, nil
	}
	m.levels[item] -= taken
	return taken, nil
}

func (m *MemoryStock) IncrementStock(_ context.Context, item string, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levels[item] += quantity
	return m.levels[item], nil
}

func (m *MemoryStock) Level(_ context.Context, item string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[item], nil
}

func (m *MemoryStock) SetStock(_ context.Context, item string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[item] = quantity
	return nil
}

type memoryInvoice struct {
	invoice domain.Invoice
	expires time.Time
}

// MemoryCache holds invoices and spent proofs in process.
type MemoryCache struct {
	mu       sync.Mutex
	invoices map[string]memoryInvoice
	proofs   map[string]struct{}
	now      func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		invoices: make(map[string]memoryInvoice),
		proofs:   make(map[string]struct{}),
		now:      time.Now,
	}
}

func (m *MemoryCache) SaveInvoice(_ context.Context, inv domain.Invoice, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.invoices[inv.InvoiceID] = memoryInvoice{invoice: inv, expires: expires}
	return nil
}

func (m *MemoryCache) GetInvoice(_ context.Context, invoiceID string) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.invoices[invoiceID]
	if !ok {
		return nil, nil
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		delete(m.invoices, invoiceID)
		return nil, nil
	}
	inv := entry.invoice
	return &inv, nil
}

func (m *MemoryCache) ClaimProof(_ context.Context, proof string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, spent := m.proofs[proof]; spent {
		return false, nil
	}
	m.proofs[proof] = struct{}{}
	return true, nil
}

func (m *MemoryCache) ReleaseProof(_ context.Context, proof string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.proofs, proof)
	return nil
}

// MemoryLedger is an append-only order list. Lost on restart.
type MemoryLedger struct {
	mu     sync.RWMutex
	orders []domain.Order
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) AppendOrder(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.ID == order.ID {
			return domain.ErrDuplicateOrder
		}
	}
	m.orders = append(m.orders, order)
	return nil
}

func (m *MemoryLedger) ListOrders(_ context.Context) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Order, len(m.orders))
	copy(out, m.orders)
	return out, nil
}
