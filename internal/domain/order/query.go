package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

// Listing page bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the number of rows preceding the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

func (s *Service) getVisible(ctx context.Context, who auth.Requester, id string) (*Order, error) {
	o, err := s.reader.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "order %s", id)
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !who.CanAccess(o.UserID) {
		return nil, auth.ErrForbidden
	}
	return o, nil
}

// GetOrder returns an order with its items and coupons. Customers only see
// their own orders.
func (s *Service) GetOrder(ctx context.Context, who auth.Requester, id string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.GetOrder")
	defer func() { endSpan(span, rerr) }()

	return s.getVisible(ctx, who, id)
}

// ListOrders returns a page of orders, newest first. Customers are always
// restricted to their own orders; admins may filter by any user or none.
// Customer listings go through the list cache.
func (s *Service) ListOrders(ctx context.Context, who auth.Requester, filter ListFilter, page Page) (_ *ListResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.ListOrders")
	defer func() { endSpan(span, rerr) }()

	if filter.Status != "" {
		if _, err := ParseStatus(string(filter.Status)); err != nil {
			return nil, err
		}
	}
	if !who.IsAdmin() {
		filter.UserID = who.UserID
	}
	page = page.normalize()

	cacheable := !who.IsAdmin()
	key := fmt.Sprintf("%s:%d:%d", filter.Status, page.Number, page.Size)
	var version ListVersion
	if cacheable {
		res, v, ok, err := s.cache.GetUserOrders(ctx, filter.UserID, key)
		switch {
		case err != nil:
			zctx.From(ctx).Warn("Order list cache read failed", zap.Error(err))
			cacheable = false
		case ok:
			return res, nil
		}
		version = v
	}

	orders, total, err := s.reader.List(ctx, filter, page)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	res := &ListResult{
		Orders: orders,
		Page: PageInfo{
			Number:     page.Number,
			Size:       page.Size,
			TotalItems: total,
			TotalPages: (total + page.Size - 1) / page.Size,
		},
	}

	if cacheable {
		if err := s.cache.SetUserOrders(ctx, filter.UserID, key, version, res); err != nil {
			zctx.From(ctx).Warn("Order list cache write failed", zap.Error(err))
		}
	}
	return res, nil
}
