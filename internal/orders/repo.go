package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-shop-orders.git/internal/catalog"
)

const orderColumns = `id, user_id, total_amount, status,
	ship_city, ship_street, ship_building, ship_phone, created_at, updated_at`

type Repo struct {
	DB      *pgxpool.Pool
	Catalog *catalog.Repo
}

// PlaceOrderTx reserves stock and persists the order in one transaction:
// every product locked, every line checked, every decrement guarded, then a
// single commit. Any failure rolls the whole call back.
func (r *Repo) PlaceOrderTx(ctx context.Context, userID string, items []ItemInput, addr Address) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// lock rows in product-id order so overlapping orders cannot deadlock
	required := map[string]int{}
	pids := make([]string, 0, len(items))
	for _, it := range items {
		if _, seen := required[it.ProductID]; !seen {
			pids = append(pids, it.ProductID)
		}
		required[it.ProductID] += it.Quantity
	}
	sort.Strings(pids)

	products := make(map[string]catalog.Product, len(pids))
	var shortages []StockShortage
	for _, pid := range pids {
		p, err := r.Catalog.LockForUpdate(ctx, tx, pid)
		if errors.Is(err, catalog.ErrNotFound) {
			return Order{}, fmt.Errorf("product %s: %w", pid, catalog.ErrNotFound)
		}
		if err != nil {
			return Order{}, err
		}
		products[pid] = p
		if p.Quantity < required[pid] {
			shortages = append(shortages, StockShortage{
				ProductID: pid, Requested: required[pid], Available: p.Quantity,
			})
		}
	}
	if len(shortages) > 0 {
		return Order{}, &InsufficientStockError{Shortages: shortages} // rollback via defer
	}

	for _, pid := range pids {
		ok, err := r.Catalog.DecrementStock(ctx, tx, pid, required[pid])
		if err != nil {
			return Order{}, err
		}
		if !ok {
			// quantity guard refused despite the row lock; roll everything back
			return Order{}, &InsufficientStockError{Shortages: []StockShortage{{
				ProductID: pid, Requested: required[pid], Available: products[pid].Quantity,
			}}}
		}
	}

	order := Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		ShippingAddress: addr,
		Status:          StatusOrdered,
		TotalAmount:     decimal.Zero,
	}
	// duplicate lines for one product collapse into a single line item
	seen := map[string]bool{}
	for _, it := range items {
		if seen[it.ProductID] {
			continue
		}
		seen[it.ProductID] = true
		p := products[it.ProductID]
		qty := required[it.ProductID]
		order.Items = append(order.Items, OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			Price:     p.Price,
			Quantity:  qty,
		})
		order.TotalAmount = order.TotalAmount.Add(p.Price.Mul(decimal.NewFromInt(int64(qty))))
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, total_amount, status, ship_city, ship_street, ship_building, ship_phone)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		order.ID, order.UserID, order.TotalAmount, order.Status,
		addr.City, addr.Street, addr.Building, addr.ContactPhoneNumber)
	if err := row.Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return Order{}, err
	}
	for _, it := range order.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, image, price, quantity)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			order.ID, it.ProductID, it.Name, it.Image, it.Price, it.Quantity); err != nil {
			return Order{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if err := r.attachItems(ctx, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListOrders returns orders newest-first. Empty userID means all orders.
func (r *Repo) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	args := []any{}
	if userID != "" {
		q = `SELECT ` + orderColumns + ` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`
		args = append(args, userID)
	}
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*Order, len(out))
	for i := range out {
		refs[i] = &out[i]
	}
	if err := r.attachItems(ctx, refs); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus overwrites the order status. With strict enabled the current
// status is re-read under lock and the transition graph enforced.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, status Status, strict bool) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if strict && current != status && !CanTransition(current, status) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	row := tx.QueryRow(ctx, `
		UPDATE orders SET status=$2, updated_at=now() WHERE id=$1
		RETURNING `+orderColumns, orderID, status)
	o, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	if err := r.attachItems(ctx, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) attachItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[string]*Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, name, image, price, quantity
		FROM order_items WHERE order_id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var oid string
		var it OrderItem
		if err := rows.Scan(&oid, &it.ProductID, &it.Name, &it.Image, &it.Price, &it.Quantity); err != nil {
			return err
		}
		if o := byID[oid]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status,
		&o.ShippingAddress.City, &o.ShippingAddress.Street, &o.ShippingAddress.Building,
		&o.ShippingAddress.ContactPhoneNumber, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}
