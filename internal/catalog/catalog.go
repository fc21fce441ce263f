// Package catalog resolves the bookable services, products and packages.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned for unknown item ids.
	ErrNotFound = errors.New("catalog: item not found")
	// ErrOutOfStock is returned when a product has no stock left.
	ErrOutOfStock = errors.New("catalog: out of stock")
	// ErrInvalidKind is returned for an unknown item kind.
	ErrInvalidKind = errors.New("catalog: invalid item kind")
)

// Kind distinguishes the three bookable item families.
type Kind string

const (
	KindService Kind = "service"
	KindProduct Kind = "product"
	KindPackage Kind = "package"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindService || k == KindProduct || k == KindPackage
}

// Ref points at exactly one catalog item.
type Ref struct {
	Kind Kind      `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// Item is the booking-relevant view of a catalog entry.
type Item struct {
	Ref
	Name string `json:"name"`
	// Stock is only meaningful for products.
	Stock int `json:"stock,omitempty"`
}

// Catalog resolves item references.
type Catalog interface {
	Lookup(ctx context.Context, ref Ref) (*Item, error)
}

// Querier is satisfied by pgxpool.Pool, pgx.Tx and pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCatalog reads the services, products and packages tables.
type PostgresCatalog struct {
	db Querier
}

// NewPostgresCatalog wraps a pool.
func NewPostgresCatalog(db Querier) *PostgresCatalog {
	if db == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresCatalog{db: db}
}

// Lookup loads the item named by ref.
func (c *PostgresCatalog) Lookup(ctx context.Context, ref Ref) (*Item, error) {
	var query string
	switch ref.Kind {
	case KindService:
		query = `SELECT service_name, 0 FROM services WHERE id = $1`
	case KindProduct:
		query = `SELECT product_name, stock FROM products WHERE id = $1`
	case KindPackage:
		query = `SELECT package_name, 0 FROM packages WHERE id = $1`
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, ref.Kind)
	}
	item := Item{Ref: ref}
	err := c.db.QueryRow(ctx, query, ref.ID).Scan(&item.Name, &item.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: lookup %s: %w", ref.Kind, err)
	}
	return &item, nil
}

// DecrementStock removes one unit of a product using q, which should be the
// booking transaction. The conditional update makes concurrent bookings of
// the last unit race-free.
func DecrementStock(ctx context.Context, q Querier, productID uuid.UUID) (int, error) {
	var remaining int
	err := q.QueryRow(ctx, `
		UPDATE products
		SET stock = stock - 1, updated_at = now()
		WHERE id = $1 AND stock > 0
		RETURNING stock
	`, productID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrOutOfStock
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: decrement stock: %w", err)
	}
	return remaining, nil
}

// RestoreStock returns one unit of a product, used when a pre-order is cancelled.
func RestoreStock(ctx context.Context, q Querier, productID uuid.UUID) error {
	ct, err := q.Exec(ctx, `UPDATE products SET stock = stock + 1, updated_at = now() WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("catalog: restore stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryCatalog is an in-process catalog with mutable product stock.
type MemoryCatalog struct {
	mu    sync.Mutex
	items map[Ref]Item
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{items: make(map[Ref]Item)}
}

// Put adds an item, assigning an id when missing.
func (m *MemoryCatalog) Put(item Item) Item {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	m.mu.Lock()
	m.items[item.Ref] = item
	m.mu.Unlock()
	return item
}

func (m *MemoryCatalog) Lookup(ctx context.Context, ref Ref) (*Item, error) {
	if !ref.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, ref.Kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

// DecrementStock mirrors the package-level function for in-memory stores.
func (m *MemoryCatalog) DecrementStock(productID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := Ref{Kind: KindProduct, ID: productID}
	item, ok := m.items[ref]
	if !ok || item.Stock <= 0 {
		return 0, ErrOutOfStock
	}
	item.Stock--
	m.items[ref] = item
	return item.Stock, nil
}

// RestoreStock mirrors the package-level function for in-memory stores.
func (m *MemoryCatalog) RestoreStock(productID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := Ref{Kind: KindProduct, ID: productID}
	item, ok := m.items[ref]
	if !ok {
		return ErrNotFound
	}
	item.Stock++
	m.items[ref] = item
	return nil
}
