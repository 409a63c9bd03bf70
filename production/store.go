package production

import (
	"context"

	"github.com/warp/fulfillment-engine/generic"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================
// Every method joins the transaction carried in ctx (see generic.Transactor).

type OrderStore interface {
	CreateOrder(ctx context.Context, o *Order) error

	// GetOrder loads the order with its invoice history. Returns ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (*Order, error)

	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)

	// UpdateOrder writes the mutable fields when the stored version equals
	// o.Version, then bumps o.Version. Returns ErrConcurrentUpdate otherwise.
	UpdateOrder(ctx context.Context, o *Order) error

	DeleteOrder(ctx context.Context, id string) error

	// NextSequence atomically increments and returns the named counter.
	NextSequence(ctx context.Context, name string) (int, error)

	// SetSequence moves a counter so the next value is value+1.
	SetSequence(ctx context.Context, name string, value int) error
}

type InvoiceStore interface {
	// AppendInvoice inserts a record. (order, sequence) is unique.
	AppendInvoice(ctx context.Context, inv InvoiceRecord) error

	GetInvoice(ctx context.Context, id string) (*InvoiceRecord, error)
}

type ArchiveStore interface {
	// CreateArchive inserts a snapshot. At most one archive exists per order.
	CreateArchive(ctx context.Context, a ArchivedOrder) error

	GetArchive(ctx context.Context, id string) (*ArchivedOrder, error)
	GetArchiveByOrder(ctx context.Context, orderID string) (*ArchivedOrder, error)
	ListArchives(ctx context.Context) ([]ArchivedOrder, error)
}

// Store is everything production needs from persistence.
type Store interface {
	OrderStore
	InvoiceStore
	ArchiveStore
	generic.Store
}
