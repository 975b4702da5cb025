package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/review"
)

var (
	_ order.Repository        = (*OrderRepository)(nil)
	_ order.Reader            = (*OrderReader)(nil)
	_ review.PurchaseVerifier = (*OrderReader)(nil)
)

const orderColumns = `id, user_id, subtotal, discount, total,
	shipping_full_name, shipping_address, shipping_city, shipping_postal_code,
	shipping_country, shipping_phone, status, created_at, updated_at`

const (
	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	insertOrderItemSQL = `INSERT INTO order_items
		(order_id, position, product_id, seller_id, product_title, quantity, price_at_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderCouponSQL = `INSERT INTO order_coupons
		(order_id, position, coupon_id, code, discount_amount)
		VALUES ($1, $2, $3, $4, $5)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listOrderItemsSQL = `SELECT order_id, product_id, seller_id, product_title, quantity, price_at_order
		FROM order_items WHERE order_id = $1 ORDER BY position`

	listOrderCouponsSQL = `SELECT order_id, coupon_id, code, discount_amount
		FROM order_coupons WHERE order_id = $1 ORDER BY position`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`

	hasPurchasedSQL = `SELECT EXISTS (
		SELECT 1 FROM orders o JOIN order_items i ON i.order_id = o.id
		WHERE o.user_id = $1 AND i.product_id = $2
			AND o.status IN ('paid', 'shipped', 'delivered'))`
)

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Subtotal, &o.Discount, &o.Total,
		&o.Shipping.FullName, &o.Shipping.Address, &o.Shipping.City, &o.Shipping.PostalCode,
		&o.Shipping.Country, &o.Shipping.Phone, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	return &o, nil
}

func loadOrder(ctx context.Context, q querier, sql, id string) (*order.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	rows, err := q.Query(ctx, listOrderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of order %q", id)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.OrderID, &it.ProductID, &it.SellerID, &it.ProductTitle, &it.Quantity, &it.PriceAtOrder)
		return it, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan items of order %q", id)
	}

	rows, err = q.Query(ctx, listOrderCouponsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "list coupons of order %q", id)
	}
	o.Coupons, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.AppliedCoupon, error) {
		var c order.AppliedCoupon
		err := row.Scan(&c.OrderID, &c.CouponID, &c.Code, &c.DiscountAmount)
		return c, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan coupons of order %q", id)
	}

	return o, nil
}

// OrderRepository implements order.Repository inside a transaction.
type OrderRepository struct {
	q querier
}

// Create inserts the order header, items and coupons in one batch.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(insertOrderSQL,
		o.ID, o.UserID, o.Subtotal, o.Discount, o.Total,
		o.Shipping.FullName, o.Shipping.Address, o.Shipping.City, o.Shipping.PostalCode,
		o.Shipping.Country, o.Shipping.Phone, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	for i, it := range o.Items {
		b.Queue(insertOrderItemSQL, o.ID, i, it.ProductID, it.SellerID, it.ProductTitle, it.Quantity, it.PriceAtOrder)
	}
	for i, c := range o.Coupons {
		b.Queue(insertOrderCouponSQL, o.ID, i, c.CouponID, c.Code, c.DiscountAmount)
	}

	if err := r.q.SendBatch(ctx, b).Close(); err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

// FindByID loads the order and locks its row until the transaction ends.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	return loadOrder(ctx, r.q, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, at time.Time) error {
	tag, err := r.q.Exec(ctx, updateOrderStatusSQL, id, string(status), at)
	if err != nil {
		return errors.Wrapf(err, "update status of order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// OrderReader serves order queries outside transactions.
type OrderReader struct {
	q querier
}

func (r *OrderReader) Get(ctx context.Context, id string) (*order.Order, error) {
	return loadOrder(ctx, r.q, getOrderSQL, id)
}

// List returns order headers newest first and the total number of matches.
func (r *OrderReader) List(ctx context.Context, filter order.ListFilter, page order.Page) ([]order.Order, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.q.QueryRow(ctx, "SELECT count(*) FROM orders"+cond, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	args = append(args, page.Size, page.Offset())
	sql := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		orderColumns, cond, len(args)-1, len(args))

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return order.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan orders")
	}
	return orders, int(total), nil
}

// HasPurchased reports whether userID has a paid, shipped or delivered order
// containing productID.
func (r *OrderReader) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	var ok bool
	if err := r.q.QueryRow(ctx, hasPurchasedSQL, userID, productID).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "check purchase")
	}
	return ok, nil
}
