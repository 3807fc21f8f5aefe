package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/restock-agent/internal/adapter/storage"
	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/core/service"
	"github.com/rl1809/restock-agent/internal/port"
)

const (
	itemID        = "stress-rice"
	initialStock  = 20
	totalSales    = 50
	totalInvoices = 50
	totalPayments = 25
	wallet        = "0x1111111111111111111111111111111111111111"
)

type stores struct {
	stock port.StockRepository
	cache port.CacheRepository
}

func main() {
	redisAddr := flag.String("redis", os.Getenv("REDIS_ADDR"), "redis address; empty runs in memory")
	flag.Parse()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	s, cleanup, err := open(ctx, *redisAddr)
	if err != nil {
		logger.Error("open stores", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	ok := sales(ctx, s.stock)
	ok = exchange(ctx, s.cache, logger) && ok

	if !ok {
		os.Exit(1)
	}
}

func open(ctx context.Context, addr string) (stores, func(), error) {
	if addr == "" {
		fmt.Println("backend: memory")
		return stores{stock: storage.NewMemoryStock(), cache: storage.NewMemoryCache()}, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return stores{}, nil, fmt.Errorf("connect redis: %w", err)
	}
	rdb.Del(ctx, "stock:"+itemID)
	if keys, err := rdb.Keys(ctx, "proof:0xstress-*").Result(); err == nil && len(keys) > 0 {
		rdb.Del(ctx, keys...)
	}

	fmt.Println("backend: redis", addr)
	adapter := storage.NewRedisAdapter(rdb, time.Hour)
	return stores{stock: adapter, cache: adapter}, func() { rdb.Close() }, nil
}

// sales races totalSales single-unit sales against initialStock units.
func sales(ctx context.Context, stock port.StockRepository) bool {
	if err := stock.SetStock(ctx, itemID, initialStock); err != nil {
		fmt.Println("FAIL: set stock:", err)
		return false
	}

	var sold, refused atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < totalSales; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if n, err := stock.DecrementStock(ctx, itemID, 1); err == nil && n == 1 {
				sold.Add(1)
			} else {
				refused.Add(1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	level, _ := stock.Level(ctx, itemID)

	fmt.Println("========== SALES ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Sales Attempted:  %d\n", totalSales)
	fmt.Printf("Sold:             %d\n", sold.Load())
	fmt.Printf("Refused:          %d\n", refused.Load())
	fmt.Printf("Final Stock:      %d\n", level)
	fmt.Printf("Duration:         %v\n", elapsed)

	if sold.Load() == initialStock && level == 0 {
		fmt.Println("PASS: stock depleted to 0 without going negative")
		return true
	}
	fmt.Printf("FAIL: expected %d sold and stock 0\n", initialStock)
	return false
}

// exchange issues invoices concurrently, then submits every proof twice at
// once with the replay guard on. Exactly one submission per proof may be
// recorded.
func exchange(ctx context.Context, cache port.CacheRepository, logger *slog.Logger) bool {
	ledger := storage.NewMemoryLedger()
	svc := service.NewLedgerService(cache, ledger, service.LedgerConfig{
		Destination:          wallet,
		Chain:                "Base Sepolia",
		Pricing:              service.DefaultPricing(),
		RejectReplayedProofs: true,
	}, service.WithLogger(logger))

	req := domain.OrderRequest{Item: itemID, Quantity: 50}

	var issued atomic.Int32
	var wg sync.WaitGroup
	invoices := make([]domain.Invoice, totalInvoices)
	for i := range invoices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := svc.IssueInvoice(ctx, req)
			if err == nil {
				invoices[i] = inv
				issued.Add(1)
			}
		}()
	}
	wg.Wait()

	var recorded, replays, other atomic.Int32
	run := fmt.Sprintf("0xstress-%d", time.Now().UnixNano())
	for i := 0; i < totalPayments; i++ {
		proof := fmt.Sprintf("%s-%d", run, i)
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Fulfill(ctx, req, proof, invoices[i].InvoiceID)
				switch {
				case err == nil:
					recorded.Add(1)
				case errors.Is(err, domain.ErrDuplicateProof):
					replays.Add(1)
				default:
					other.Add(1)
				}
			}()
		}
	}
	wg.Wait()

	summary, _ := svc.Summary(ctx)

	fmt.Println("========== PAYMENT EXCHANGE ==========")
	fmt.Printf("Invoices Issued:  %d/%d\n", issued.Load(), totalInvoices)
	fmt.Printf("Proofs Submitted: %d\n", totalPayments*2)
	fmt.Printf("Orders Recorded:  %d\n", recorded.Load())
	fmt.Printf("Replays Refused:  %d\n", replays.Load())
	fmt.Printf("Other Errors:     %d\n", other.Load())
	fmt.Printf("Ledger Revenue:   %s ETH\n", summary.TotalRevenue.String())

	if issued.Load() == totalInvoices && recorded.Load() == totalPayments &&
		replays.Load() == totalPayments && len(summary.Orders) == totalPayments {
		fmt.Println("PASS: one order per proof")
		return true
	}
	fmt.Printf("FAIL: expected %d orders and %d replays\n", totalPayments, totalPayments)
	return false
}
