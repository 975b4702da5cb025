package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/product"
)

type mockProductRepo struct {
	mu       sync.Mutex
	byID     map[string]*product.Product
	deltaErr error
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

func (m *mockProductRepo) FindByID(_ context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepo) ApplyStockDelta(_ context.Context, id string, delta, minStock int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deltaErr != nil {
		return false, m.deltaErr
	}
	p, ok := m.byID[id]
	if !ok || p.Stock < minStock {
		return false, nil
	}
	p.Stock += delta
	return true, nil
}

func widget(stock int) product.Product {
	return product.Product{ID: "p1", SellerID: "s1", Title: "Widget", Price: decimal.NewFromInt(10), Stock: stock}
}

func TestLedger_Lookup(t *testing.T) {
	deletedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	gone := widget(5)
	gone.ID = "gone"
	gone.DeletedAt = &deletedAt

	l := New(newProductRepo(widget(5), gone))
	ctx := context.Background()

	p, err := l.Lookup(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", p.Title)

	var unavailable *ProductUnavailableError
	_, err = l.Lookup(ctx, "missing")
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "missing", unavailable.ProductID)

	_, err = l.Lookup(ctx, "gone")
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "gone", unavailable.ProductID)
}

func TestLedger_Reserve(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		qty       int
		wantStock int
		wantShort bool
	}{
		{name: "exact stock", stock: 2, qty: 2, wantStock: 0},
		{name: "partial", stock: 5, qty: 3, wantStock: 2},
		{name: "short by one", stock: 2, qty: 3, wantStock: 2, wantShort: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newProductRepo(widget(tt.stock))
			err := New(repo).Reserve(context.Background(), "p1", tt.qty)

			if tt.wantShort {
				var short *InsufficientStockError
				require.ErrorAs(t, err, &short)
				assert.Equal(t, tt.qty, short.Requested)
				assert.Equal(t, tt.stock, short.Available)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStock, repo.byID["p1"].Stock)
		})
	}
}

func TestLedger_ReserveMissingProduct(t *testing.T) {
	err := New(newProductRepo()).Reserve(context.Background(), "nope", 1)

	var unavailable *ProductUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestLedger_ReserveRejectsNonPositive(t *testing.T) {
	repo := newProductRepo(widget(3))
	require.Error(t, New(repo).Reserve(context.Background(), "p1", 0))
	assert.Equal(t, 3, repo.byID["p1"].Stock)
}

func TestLedger_ReserveStorageError(t *testing.T) {
	repo := newProductRepo(widget(3))
	repo.deltaErr = errors.New("connection reset")

	err := New(repo).Reserve(context.Background(), "p1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve stock for p1")
}

func TestLedger_ReleaseRestoresSoftDeleted(t *testing.T) {
	deletedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := widget(0)
	p.DeletedAt = &deletedAt
	repo := newProductRepo(p)

	require.NoError(t, New(repo).Release(context.Background(), "p1", 4))
	assert.Equal(t, 4, repo.byID["p1"].Stock)
}

func TestLedger_ReleaseMissingProduct(t *testing.T) {
	err := New(newProductRepo()).Release(context.Background(), "p1", 1)

	var unavailable *ProductUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestLedger_ConcurrentReserveNeverNegative(t *testing.T) {
	repo := newProductRepo(widget(10))
	l := New(repo)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Reserve(context.Background(), "p1", 1); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	assert.Equal(t, 0, repo.byID["p1"].Stock)
}
