// Package memory is an in-process implementation of every repository and of
// order.Transactor. Transactions are serialized by a single mutex and run
// against a copy of the data that replaces the live copy only on success.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/review"
)

var (
	_ order.Transactor        = (*Store)(nil)
	_ order.Reader            = (*Store)(nil)
	_ review.PurchaseVerifier = (*Store)(nil)
	_ auth.Repository         = (*Store)(nil)
	_ review.Repository       = (*Reviews)(nil)
	_ review.ProductFinder    = (*Products)(nil)
)

type usageKey struct {
	userID   string
	couponID string
}

type reviewKey struct {
	userID    string
	productID string
}

type state struct {
	products map[string]product.Product
	coupons  map[string]coupon.Coupon
	usages   map[usageKey]struct{}
	orders   map[string]*order.Order
	reviews  map[reviewKey]review.Review
}

func newState() *state {
	return &state{
		products: make(map[string]product.Product),
		coupons:  make(map[string]coupon.Coupon),
		usages:   make(map[usageKey]struct{}),
		orders:   make(map[string]*order.Order),
		reviews:  make(map[reviewKey]review.Review),
	}
}

// clone copies every map. Orders are deep-copied because transactions
// mutate them; the other values are plain structs.
func (s *state) clone() *state {
	c := &state{
		products: make(map[string]product.Product, len(s.products)),
		coupons:  make(map[string]coupon.Coupon, len(s.coupons)),
		usages:   make(map[usageKey]struct{}, len(s.usages)),
		orders:   make(map[string]*order.Order, len(s.orders)),
		reviews:  make(map[reviewKey]review.Review, len(s.reviews)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.coupons {
		c.coupons[k] = v
	}
	for k := range s.usages {
		c.usages[k] = struct{}{}
	}
	for k, v := range s.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	return c
}

func copyOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = append([]order.Item(nil), o.Items...)
	c.Coupons = append([]order.AppliedCoupon(nil), o.Coupons...)
	return &c
}

// Store holds all data in memory.
type Store struct {
	mu   sync.Mutex
	data *state
	keys map[string]auth.APIKeyInfo

	// conflicts is the number of upcoming transactions to abort with
	// order.ErrConflict after fn succeeds.
	conflicts int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		data: newState(),
		keys: make(map[string]auth.APIKeyInfo),
	}
}

// WithinTx implements order.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r order.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.data.clone()
	if err := fn(ctx, snap.repositories()); err != nil {
		return err
	}
	if s.conflicts > 0 {
		s.conflicts--
		return errors.Wrap(order.ErrConflict, "injected")
	}
	s.data = snap
	return nil
}

// InjectConflicts makes the next n transactions fail with order.ErrConflict
// after their work is done, discarding it.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

func (s *state) repositories() order.Repositories {
	return order.Repositories{
		Products: productRepo{s},
		Coupons:  couponRepo{s},
		Usages:   usageRepo{s},
		Orders:   orderRepo{s},
	}
}

// view runs fn against the live data under the store lock.
func (s *Store) view(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	_ = s.view(func(st *state) error {
		st.products[p.ID] = p
		return nil
	})
}

// PutCoupon inserts or replaces a coupon. The code is normalized.
func (s *Store) PutCoupon(c coupon.Coupon) {
	c.Code = coupon.NormalizeCode(c.Code)
	_ = s.view(func(st *state) error {
		st.coupons[c.ID] = c
		return nil
	})
}

// PutAPIKey registers an API key by its hash.
func (s *Store) PutAPIKey(k auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.KeyHash] = k
}

// UpsertProduct implements catalog.Sink.
func (s *Store) UpsertProduct(_ context.Context, p product.Product) error {
	s.PutProduct(p)
	return nil
}

// UpsertCoupon implements catalog.Sink.
func (s *Store) UpsertCoupon(_ context.Context, c coupon.Coupon) error {
	s.PutCoupon(c)
	return nil
}

// UpsertAPIKey implements catalog.Sink.
func (s *Store) UpsertAPIKey(_ context.Context, k auth.APIKeyInfo) error {
	s.PutAPIKey(k)
	return nil
}

// Product returns a copy of the stored product.
func (s *Store) Product(id string) (product.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.products[id]
	return p, ok
}

// UsageExists reports whether a usage row exists.
func (s *Store) UsageExists(userID, couponID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data.usages[usageKey{userID, couponID}]
	return ok
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.orders)
}

// Products returns a product repository that reads the live data outside
// of any transaction.
func (s *Store) Products() *Products {
	return &Products{s: s}
}

// Products is the non-transactional product view.
type Products struct {
	s *Store
}

func (p *Products) FindByID(ctx context.Context, id string) (out *product.Product, err error) {
	err = p.s.view(func(st *state) error {
		out, err = productRepo{st}.FindByID(ctx, id)
		return err
	})
	return out, err
}

// Get implements order.Reader.
func (s *Store) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return copyOrder(o), nil
}

// List implements order.Reader.
func (s *Store) List(_ context.Context, filter order.ListFilter, page order.Page) ([]order.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []order.Order
	for _, o := range s.data.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		summary := *o
		summary.Items, summary.Coupons = nil, nil
		matched = append(matched, summary)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.Size, total)
	return matched[start:end], total, nil
}

// HasPurchased implements review.PurchaseVerifier.
func (s *Store) HasPurchased(_ context.Context, userID, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.data.orders {
		if o.UserID != userID || !purchased(o.Status) {
			continue
		}
		for _, it := range o.Items {
			if it.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func purchased(st order.Status) bool {
	switch st {
	case order.StatusPaid, order.StatusShipped, order.StatusDelivered:
		return true
	default:
		return false
	}
}

// Reviews returns the review repository.
func (s *Store) Reviews() *Reviews {
	return &Reviews{s: s}
}

// Reviews implements review.Repository.
type Reviews struct {
	s *Store
}

func (r *Reviews) Create(_ context.Context, rv *review.Review) error {
	return r.s.view(func(st *state) error {
		k := reviewKey{rv.UserID, rv.ProductID}
		if _, ok := st.reviews[k]; ok {
			return review.ErrAlreadyReviewed
		}
		st.reviews[k] = *rv
		return nil
	})
}

// FindByHash implements auth.Repository.
func (s *Store) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &k, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

type productRepo struct{ st *state }

func (r productRepo) FindByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r productRepo) ApplyStockDelta(_ context.Context, id string, delta, minStock int) (bool, error) {
	p, ok := r.st.products[id]
	if !ok || p.Stock < minStock {
		return false, nil
	}
	p.Stock += delta
	r.st.products[id] = p
	return true, nil
}

type couponRepo struct{ st *state }

func (r couponRepo) FindActiveByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range r.st.coupons {
		if c.Code == code && c.IsActive {
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r couponRepo) CountUsages(_ context.Context, couponID string) (int, error) {
	n := 0
	for k := range r.st.usages {
		if k.couponID == couponID {
			n++
		}
	}
	return n, nil
}

type usageRepo struct{ st *state }

func (r usageRepo) Exists(_ context.Context, userID, couponID string) (bool, error) {
	_, ok := r.st.usages[usageKey{userID, couponID}]
	return ok, nil
}

func (r usageRepo) Insert(_ context.Context, userID, couponID string) error {
	k := usageKey{userID, couponID}
	if _, ok := r.st.usages[k]; ok {
		return errors.Errorf("usage of coupon %s by %s already recorded", couponID, userID)
	}
	r.st.usages[k] = struct{}{}
	return nil
}

func (r usageRepo) Delete(_ context.Context, userID, couponID string) error {
	delete(r.st.usages, usageKey{userID, couponID})
	return nil
}

type orderRepo struct{ st *state }

func (r orderRepo) Create(_ context.Context, o *order.Order) error {
	if _, ok := r.st.orders[o.ID]; ok {
		return errors.Errorf("order %s already exists", o.ID)
	}
	r.st.orders[o.ID] = copyOrder(o)
	return nil
}

func (r orderRepo) FindByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return copyOrder(o), nil
}

func (r orderRepo) UpdateStatus(_ context.Context, id string, status order.Status, at time.Time) error {
	o, ok := r.st.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = at
	return nil
}
