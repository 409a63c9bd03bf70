/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the engine with one SQLite
  database. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  generic.Store:    Counters, movements, approvals, transactions
  production.Store: Orders, invoices, archives, sequences
  staffing.Store:   Employees, leave requests, timesheets, payslips

TRANSACTIONS:
  RunInTx stores the *sql.Tx in the context. Every method resolves its
  executor through conn(ctx), so a call made with a transaction context
  joins that transaction. Transactions begin IMMEDIATE (write lock up
  front), and the pool holds a single connection: SQLite has one writer
  anyway, and ":memory:" databases exist per connection.

  Never call a Store method with a context that does not carry the open
  transaction while that transaction is running on the same goroutine:
  the second call would wait for the only connection forever.

ATOMIC COUNTERS:
  on_hand is stored as a scaled integer (thousandths) so the guard is one
  exact conditional update:

    UPDATE resources SET on_hand = on_hand - ? WHERE id = ? AND on_hand >= ?

KEY CONSTRAINTS:
  - idx_movements_allocation_key: one allocation per (owner, purpose)
  - invoices UNIQUE(order_id, sequence) and UNIQUE(invoice_number)
  - idx_invoices_token: one invoice per (order, idempotency token)
  - archives UNIQUE(original_order_id): one archive per order
  - payslips UNIQUE(timesheet_id): one payslip per timesheet

USAGE:
  store, err := sqlite.New("./data/fulfillment.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Engine interfaces
  - production/store.go, staffing/store.go: Domain interfaces
  - generic/store/memory.go: In-memory implementation for engine tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/fulfillment-engine/generic"
	"github.com/warp/fulfillment-engine/production"
	"github.com/warp/fulfillment-engine/staffing"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ generic.Store    = (*Store)(nil)
	_ production.Store = (*Store)(nil)
	_ staffing.Store   = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the database schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	-- Guarded counters: stock on hand and leave balances
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		resource_type TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL,
		on_hand INTEGER NOT NULL CHECK (on_hand >= 0),
		reorder_level INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	-- Append-only audit of every counter change
	CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL REFERENCES resources(id),
		mv_type TEXT NOT NULL,
		alloc_owner TEXT NOT NULL DEFAULT '',
		alloc_purpose TEXT NOT NULL DEFAULT '',
		delta INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		unit TEXT NOT NULL,
		released BOOLEAN NOT NULL DEFAULT FALSE,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_resource
		ON movements(resource_id);
	CREATE INDEX IF NOT EXISTS idx_movements_owner
		ON movements(alloc_owner) WHERE mv_type = 'allocation';

	-- CRITICAL: a resource is decremented at most once per allocation key
	CREATE UNIQUE INDEX IF NOT EXISTS idx_movements_allocation_key
		ON movements(alloc_owner, alloc_purpose) WHERE mv_type = 'allocation';

	-- One-shot approvals (leave, timesheet, invoice)
	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		decided_by TEXT,
		decided_at TEXT,
		reason TEXT,
		token TEXT,
		created_at TEXT NOT NULL
	);

	-- Named counters (invoice numbers, client order numbers)
	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	-- Live orders
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		client_id TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		current_stage TEXT NOT NULL,
		status TEXT NOT NULL,
		items_json TEXT NOT NULL,
		materials_json TEXT NOT NULL,
		base_invoice_number TEXT,
		job_sequence INTEGER NOT NULL DEFAULT 0,
		stage_history_json TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_orders_stage
		ON orders(current_stage, job_sequence);
	CREATE INDEX IF NOT EXISTS idx_orders_client
		ON orders(client_id);

	-- Invoices (append-only, outlive the live order)
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		invoice_number TEXT NOT NULL UNIQUE,
		sequence INTEGER NOT NULL,
		invoice_type TEXT NOT NULL,
		lines_json TEXT NOT NULL,
		quantity_invoiced INTEGER NOT NULL,
		subtotal TEXT NOT NULL,
		gst TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		idempotency_token TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(order_id, sequence)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_token
		ON invoices(order_id, idempotency_token) WHERE idempotency_token IS NOT NULL;

	-- Archives of cleared orders
	CREATE TABLE IF NOT EXISTS archives (
		id TEXT PRIMARY KEY,
		original_order_id TEXT NOT NULL UNIQUE,
		snapshot_json TEXT NOT NULL,
		archived_at TEXT NOT NULL,
		archived_by TEXT
	);

	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		hourly_rate TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		balance_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_employee
		ON leave_requests(employee_id);

	CREATE TABLE IF NOT EXISTS timesheets (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		week_start TEXT NOT NULL,
		hours TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payslips (
		id TEXT PRIMARY KEY,
		timesheet_id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		hours TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		gross TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payslips_employee
		ON payslips(employee_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONS (generic.Transactor)
// =============================================================================

type txKey struct{}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunInTx executes fn within a database transaction carried in ctx.
// A context that already carries a transaction joins it.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, sqlTx)); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) conn(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// =============================================================================
// RESOURCE STORE (generic.ResourceStore)
// =============================================================================

func (s *Store) SaveResource(ctx context.Context, r generic.Resource) error {
	onHand, err := toScaled(r.OnHand)
	if err != nil {
		return err
	}
	reorder, err := toScaled(r.ReorderLevel)
	if err != nil {
		return err
	}
	if onHand < 0 {
		return fmt.Errorf("%w: on hand must not be negative", generic.ErrInvalidAmount)
	}
	resourceType := ""
	if r.Type != nil {
		resourceType = r.Type.ResourceID()
	}

	query := `
		INSERT INTO resources (id, resource_type, name, owner_id, unit, on_hand, reorder_level, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			resource_type = excluded.resource_type,
			name = excluded.name,
			owner_id = excluded.owner_id,
			reorder_level = excluded.reorder_level,
			updated_at = excluded.updated_at
	`
	_, err = s.conn(ctx).ExecContext(ctx, query,
		r.ID, resourceType, r.Name, string(r.OwnerID), string(r.OnHand.Unit),
		onHand, reorder, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", err)
	}
	return nil
}

const resourceColumns = `id, resource_type, name, owner_id, unit, on_hand, reorder_level, updated_at`

func (s *Store) GetResource(ctx context.Context, id generic.ResourceID) (*generic.Resource, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrResourceNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListResources(ctx context.Context) ([]generic.Resource, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var result []generic.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (generic.Resource, error) {
	var r generic.Resource
	var resourceType, ownerID, unit, updatedAt string
	var onHand, reorder int64
	if err := row.Scan(&r.ID, &resourceType, &r.Name, &ownerID, &unit, &onHand, &reorder, &updatedAt); err != nil {
		return generic.Resource{}, err
	}
	r.Type = generic.GetOrCreateResource(resourceType)
	r.OwnerID = generic.EntityID(ownerID)
	r.OnHand = fromScaled(onHand, unit)
	r.ReorderLevel = fromScaled(reorder, unit)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

// Decrement is the guarded check-and-decrement. The key is checked before
// the update so a duplicate never touches on_hand, even inside a caller's
// transaction that goes on to commit.
func (s *Store) Decrement(ctx context.Context, id generic.ResourceID, amount generic.Amount, key generic.AllocationKey, reason string) (generic.Movement, error) {
	scaled, err := toScaled(amount)
	if err != nil {
		return generic.Movement{}, err
	}

	var mv generic.Movement
	err = s.RunInTx(ctx, func(ctx context.Context) error {
		q := s.conn(ctx)

		var existing int
		if err := q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM movements
			WHERE mv_type = 'allocation' AND alloc_owner = ? AND alloc_purpose = ?`,
			key.OwnerID, key.Purpose,
		).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return generic.ErrDuplicateAllocation
		}

		now := s.timestamp()
		res, err := q.ExecContext(ctx, `
			UPDATE resources SET on_hand = on_hand - ?, updated_at = ?
			WHERE id = ? AND on_hand >= ?`,
			scaled, now, id, scaled,
		)
		if err != nil {
			return fmt.Errorf("failed to decrement %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			r, err := s.GetResource(ctx, id)
			if err != nil {
				return err
			}
			return &generic.InsufficientStockError{ResourceID: id, Available: r.OnHand, Requested: amount}
		}

		remaining, err := s.onHand(ctx, id)
		if err != nil {
			return err
		}
		mv = generic.Movement{
			ID:         generic.MovementID(uuid.NewString()),
			ResourceID: id,
			Type:       generic.MovementAllocation,
			Key:        key,
			Delta:      amount.Neg(),
			Remaining:  remaining,
			Reason:     reason,
			CreatedAt:  parseTime(now),
		}
		return s.insertMovement(ctx, mv)
	})
	if err != nil {
		return generic.Movement{}, err
	}
	return mv, nil
}

func (s *Store) Release(ctx context.Context, key generic.AllocationKey, reason string) (generic.Movement, error) {
	var mv generic.Movement
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		alloc, err := s.GetAllocation(ctx, key)
		if err != nil {
			return err
		}
		if alloc.Released {
			return fmt.Errorf("%w: %s", generic.ErrAlreadyReleased, key)
		}

		q := s.conn(ctx)
		res, err := q.ExecContext(ctx, `UPDATE movements SET released = TRUE WHERE id = ? AND released = FALSE`, alloc.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", generic.ErrAlreadyReleased, key)
		}

		credit := alloc.Delta.Neg()
		scaled, err := toScaled(credit)
		if err != nil {
			return err
		}
		now := s.timestamp()
		if _, err := q.ExecContext(ctx, `UPDATE resources SET on_hand = on_hand + ?, updated_at = ? WHERE id = ?`,
			scaled, now, alloc.ResourceID); err != nil {
			return fmt.Errorf("failed to release %s: %w", key, err)
		}

		remaining, err := s.onHand(ctx, alloc.ResourceID)
		if err != nil {
			return err
		}
		mv = generic.Movement{
			ID:         generic.MovementID(uuid.NewString()),
			ResourceID: alloc.ResourceID,
			Type:       generic.MovementRelease,
			Key:        key,
			Delta:      credit,
			Remaining:  remaining,
			Reason:     reason,
			CreatedAt:  parseTime(now),
		}
		return s.insertMovement(ctx, mv)
	})
	if err != nil {
		return generic.Movement{}, err
	}
	return mv, nil
}

func (s *Store) Restock(ctx context.Context, id generic.ResourceID, amount generic.Amount, reason string) (generic.Movement, error) {
	scaled, err := toScaled(amount)
	if err != nil {
		return generic.Movement{}, err
	}

	var mv generic.Movement
	err = s.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.GetResource(ctx, id)
		if err != nil {
			return err
		}
		if r.OnHand.Unit != amount.Unit {
			return fmt.Errorf("%w: %s is tracked in %s", generic.ErrInvalidAmount, id, r.OnHand.Unit)
		}

		now := s.timestamp()
		if _, err := s.conn(ctx).ExecContext(ctx, `UPDATE resources SET on_hand = on_hand + ?, updated_at = ? WHERE id = ?`,
			scaled, now, id); err != nil {
			return fmt.Errorf("failed to restock %s: %w", id, err)
		}
		remaining, err := s.onHand(ctx, id)
		if err != nil {
			return err
		}
		mv = generic.Movement{
			ID:         generic.MovementID(uuid.NewString()),
			ResourceID: id,
			Type:       generic.MovementRestock,
			Delta:      amount,
			Remaining:  remaining,
			Reason:     reason,
			CreatedAt:  parseTime(now),
		}
		return s.insertMovement(ctx, mv)
	})
	if err != nil {
		return generic.Movement{}, err
	}
	return mv, nil
}

const movementColumns = `id, resource_id, mv_type, alloc_owner, alloc_purpose, delta, remaining, unit, released, reason, created_at`

func (s *Store) GetAllocation(ctx context.Context, key generic.AllocationKey) (*generic.Movement, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE mv_type = 'allocation' AND alloc_owner = ? AND alloc_purpose = ?`,
		key.OwnerID, key.Purpose,
	)
	mv, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrAllocationNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return &mv, nil
}

func (s *Store) AllocationsByOwner(ctx context.Context, ownerID string) ([]generic.Movement, error) {
	return s.queryMovements(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE mv_type = 'allocation' AND alloc_owner = ?
		ORDER BY rowid`, ownerID)
}

func (s *Store) Movements(ctx context.Context, id generic.ResourceID) ([]generic.Movement, error) {
	if _, err := s.GetResource(ctx, id); err != nil {
		return nil, err
	}
	return s.queryMovements(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE resource_id = ?
		ORDER BY rowid`, id)
}

func (s *Store) queryMovements(ctx context.Context, query string, args ...any) ([]generic.Movement, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var result []generic.Movement
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, mv)
	}
	return result, rows.Err()
}

func scanMovement(row scanner) (generic.Movement, error) {
	var mv generic.Movement
	var mvType, unit, createdAt string
	var reason sql.NullString
	var delta, remaining int64
	if err := row.Scan(&mv.ID, &mv.ResourceID, &mvType, &mv.Key.OwnerID, &mv.Key.Purpose,
		&delta, &remaining, &unit, &mv.Released, &reason, &createdAt); err != nil {
		return generic.Movement{}, err
	}
	mv.Type = generic.MovementType(mvType)
	mv.Delta = fromScaled(delta, unit)
	mv.Remaining = fromScaled(remaining, unit)
	mv.Reason = reason.String
	mv.CreatedAt = parseTime(createdAt)
	return mv, nil
}

func (s *Store) insertMovement(ctx context.Context, mv generic.Movement) error {
	delta, err := toScaled(mv.Delta)
	if err != nil {
		return err
	}
	remaining, err := toScaled(mv.Remaining)
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO movements (`+movementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.ResourceID, mv.Type, mv.Key.OwnerID, mv.Key.Purpose,
		delta, remaining, string(mv.Delta.Unit), mv.Released, nullString(mv.Reason),
		mv.CreatedAt.Format(time.RFC3339Nano),
	)
	if isUniqueConstraintError(err) {
		return generic.ErrDuplicateAllocation
	}
	if err != nil {
		return fmt.Errorf("failed to insert movement: %w", err)
	}
	return nil
}

func (s *Store) onHand(ctx context.Context, id generic.ResourceID) (generic.Amount, error) {
	var v int64
	var unit string
	err := s.conn(ctx).QueryRowContext(ctx, `SELECT on_hand, unit FROM resources WHERE id = ?`, id).Scan(&v, &unit)
	if err != nil {
		return generic.Amount{}, err
	}
	return fromScaled(v, unit), nil
}

// =============================================================================
// APPROVAL STORE (generic.ApprovalStore)
// =============================================================================

func (s *Store) CreateApproval(ctx context.Context, a generic.Approval) error {
	if a.Status == "" {
		a.Status = generic.ApprovalPending
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO approvals (id, kind, status, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.Kind, a.Status, a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: approval %s", generic.ErrDuplicateRecord, a.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

func (s *Store) GetApproval(ctx context.Context, id generic.EntityID) (*generic.Approval, error) {
	var a generic.Approval
	var kind, status, createdAt string
	var decidedBy, decidedAt, reason, token sql.NullString
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, kind, status, decided_by, decided_at, reason, token, created_at
		FROM approvals WHERE id = ?`, id,
	).Scan(&a.ID, &kind, &status, &decidedBy, &decidedAt, &reason, &token, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrApprovalNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	a.Kind = generic.ApprovalKind(kind)
	a.Status = generic.ApprovalStatus(status)
	a.DecidedBy = decidedBy.String
	a.Reason = reason.String
	a.Token = token.String
	a.CreatedAt = parseTime(createdAt)
	if decidedAt.Valid {
		t := parseTime(decidedAt.String)
		a.DecidedAt = &t
	}
	return &a, nil
}

// DecideApproval flips a pending approval with one conditional update.
func (s *Store) DecideApproval(ctx context.Context, id generic.EntityID, d generic.Decision, at time.Time) (*generic.Approval, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE approvals SET status = ?, decided_by = ?, decided_at = ?, reason = ?, token = ?
		WHERE id = ? AND status = 'pending'`,
		d.Status, nullString(d.Actor), at.UTC().Format(time.RFC3339Nano), nullString(d.Reason), nullString(d.Token), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to decide approval: %w", err)
	}

	a, err := s.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return a, &generic.AlreadyAppliedError{EntityID: id, Current: a.Status}
	}
	return a, nil
}

// =============================================================================
// ORDER STORE (production.OrderStore)
// =============================================================================

func (s *Store) CreateOrder(ctx context.Context, o *production.Order) error {
	if o.Version == 0 {
		o.Version = 1
	}
	items, materials, history, err := marshalOrderJSON(o)
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO orders (id, order_number, client_id, client_name, current_stage, status,
			items_json, materials_json, base_invoice_number, job_sequence, stage_history_json,
			notes, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OrderNumber, o.ClientID, o.ClientName, o.CurrentStage, o.Status,
		items, materials, nullString(o.BaseInvoiceNumber), o.JobSequence, history,
		nullString(o.Notes), o.CreatedAt.UTC().Format(time.RFC3339Nano),
		o.UpdatedAt.UTC().Format(time.RFC3339Nano), o.Version,
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: order %s", generic.ErrDuplicateRecord, o.OrderNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

const orderColumns = `id, order_number, client_id, client_name, current_stage, status,
	items_json, materials_json, base_invoice_number, job_sequence, stage_history_json,
	notes, created_at, updated_at, version`

func (s *Store) GetOrder(ctx context.Context, id string) (*production.Order, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", production.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if o.InvoiceHistory, err = s.listInvoices(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, filter production.OrderFilter) ([]production.Order, error) {
	var where []string
	var args []any
	if filter.Stage != "" {
		where = append(where, "current_stage = ?")
		args = append(args, filter.Stage)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY current_stage, job_sequence, created_at"

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	var orders []production.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// invoices are loaded after the cursor is closed: the pool has one connection
	for i := range orders {
		if orders[i].InvoiceHistory, err = s.listInvoices(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func scanOrder(row scanner) (production.Order, error) {
	var o production.Order
	var stage, status, items, materials, history, createdAt, updatedAt string
	var base, notes sql.NullString
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.ClientID, &o.ClientName, &stage, &status,
		&items, &materials, &base, &o.JobSequence, &history, &notes, &createdAt, &updatedAt, &o.Version); err != nil {
		return production.Order{}, err
	}
	o.CurrentStage = production.Stage(stage)
	o.Status = production.OrderStatus(status)
	o.BaseInvoiceNumber = base.String
	o.Notes = notes.String
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return production.Order{}, fmt.Errorf("failed to decode items of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal([]byte(materials), &o.Materials); err != nil {
		return production.Order{}, fmt.Errorf("failed to decode materials of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal([]byte(history), &o.StageHistory); err != nil {
		return production.Order{}, fmt.Errorf("failed to decode stage history of %s: %w", o.ID, err)
	}
	return o, nil
}

func marshalOrderJSON(o *production.Order) (items, materials, history string, err error) {
	b, err := json.Marshal(o.Items)
	if err != nil {
		return "", "", "", err
	}
	items = string(b)
	if b, err = json.Marshal(o.Materials); err != nil {
		return "", "", "", err
	}
	materials = string(b)
	if b, err = json.Marshal(o.StageHistory); err != nil {
		return "", "", "", err
	}
	return items, materials, string(b), nil
}

// UpdateOrder writes the mutable fields under an optimistic version check.
// Items are immutable and never rewritten.
func (s *Store) UpdateOrder(ctx context.Context, o *production.Order) error {
	_, _, history, err := marshalOrderJSON(o)
	if err != nil {
		return err
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE orders SET current_stage = ?, status = ?, base_invoice_number = ?, job_sequence = ?,
			stage_history_json = ?, notes = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		o.CurrentStage, o.Status, nullString(o.BaseInvoiceNumber), o.JobSequence,
		history, nullString(o.Notes), o.UpdatedAt.UTC().Format(time.RFC3339Nano),
		o.ID, o.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := s.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE id = ?`, o.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", production.ErrOrderNotFound, o.ID)
		}
		return fmt.Errorf("%w: %s", production.ErrConcurrentUpdate, o.OrderNumber)
	}
	o.Version++
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", production.ErrOrderNotFound, id)
	}
	return nil
}

func (s *Store) NextSequence(ctx context.Context, name string) (int, error) {
	var value int
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		q := s.conn(ctx)
		if _, err := q.ExecContext(ctx, `
			INSERT INTO sequences (name, value) VALUES (?, 1)
			ON CONFLICT(name) DO UPDATE SET value = value + 1`, name); err != nil {
			return fmt.Errorf("failed to advance sequence %s: %w", name, err)
		}
		return q.QueryRowContext(ctx, `SELECT value FROM sequences WHERE name = ?`, name).Scan(&value)
	})
	return value, err
}

func (s *Store) SetSequence(ctx context.Context, name string, value int) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("failed to set sequence %s: %w", name, err)
	}
	return nil
}

// =============================================================================
// INVOICE STORE (production.InvoiceStore)
// =============================================================================

const invoiceColumns = `id, order_id, invoice_number, sequence, invoice_type, lines_json,
	quantity_invoiced, subtotal, gst, total_amount, idempotency_token, created_by, created_at`

func (s *Store) AppendInvoice(ctx context.Context, inv production.InvoiceRecord) error {
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.OrderID, inv.InvoiceNumber, inv.Sequence, inv.Type, string(lines),
		inv.QuantityInvoiced, inv.Subtotal.String(), inv.GST.String(), inv.TotalAmount.String(),
		nullString(inv.IdempotencyToken), nullString(inv.CreatedBy),
		inv.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: invoice %s", generic.ErrDuplicateRecord, inv.InvoiceNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to append invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*production.InvoiceRecord, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", production.ErrInvoiceNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) listInvoices(ctx context.Context, orderID string) ([]production.InvoiceRecord, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE order_id = ? ORDER BY sequence`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var result []production.InvoiceRecord
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func scanInvoice(row scanner) (production.InvoiceRecord, error) {
	var inv production.InvoiceRecord
	var invType, lines, subtotal, gst, total, createdAt string
	var token, createdBy sql.NullString
	if err := row.Scan(&inv.ID, &inv.OrderID, &inv.InvoiceNumber, &inv.Sequence, &invType, &lines,
		&inv.QuantityInvoiced, &subtotal, &gst, &total, &token, &createdBy, &createdAt); err != nil {
		return production.InvoiceRecord{}, err
	}
	inv.Type = production.InvoiceType(invType)
	inv.Subtotal = generic.MustParseDecimal(subtotal)
	inv.GST = generic.MustParseDecimal(gst)
	inv.TotalAmount = generic.MustParseDecimal(total)
	inv.IdempotencyToken = token.String
	inv.CreatedBy = createdBy.String
	inv.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(lines), &inv.Lines); err != nil {
		return production.InvoiceRecord{}, fmt.Errorf("failed to decode lines of %s: %w", inv.ID, err)
	}
	return inv, nil
}

// =============================================================================
// ARCHIVE STORE (production.ArchiveStore)
// =============================================================================

func (s *Store) CreateArchive(ctx context.Context, a production.ArchivedOrder) error {
	snapshot, err := json.Marshal(a.Order)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO archives (id, original_order_id, snapshot_json, archived_at, archived_by)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.OriginalOrderID, string(snapshot), a.ArchivedAt.UTC().Format(time.RFC3339Nano), nullString(a.ArchivedBy),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: archive for order %s", generic.ErrDuplicateRecord, a.OriginalOrderID)
	}
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return nil
}

const archiveColumns = `id, original_order_id, snapshot_json, archived_at, archived_by`

func (s *Store) GetArchive(ctx context.Context, id string) (*production.ArchivedOrder, error) {
	return s.getArchive(ctx, `SELECT `+archiveColumns+` FROM archives WHERE id = ?`, id)
}

func (s *Store) GetArchiveByOrder(ctx context.Context, orderID string) (*production.ArchivedOrder, error) {
	return s.getArchive(ctx, `SELECT `+archiveColumns+` FROM archives WHERE original_order_id = ?`, orderID)
}

func (s *Store) getArchive(ctx context.Context, query, arg string) (*production.ArchivedOrder, error) {
	a, err := scanArchive(s.conn(ctx).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", production.ErrArchiveNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListArchives(ctx context.Context) ([]production.ArchivedOrder, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+archiveColumns+` FROM archives ORDER BY archived_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query archives: %w", err)
	}
	defer rows.Close()

	var result []production.ArchivedOrder
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanArchive(row scanner) (production.ArchivedOrder, error) {
	var a production.ArchivedOrder
	var snapshot, archivedAt string
	var archivedBy sql.NullString
	if err := row.Scan(&a.ID, &a.OriginalOrderID, &snapshot, &archivedAt, &archivedBy); err != nil {
		return production.ArchivedOrder{}, err
	}
	if err := json.Unmarshal([]byte(snapshot), &a.Order); err != nil {
		return production.ArchivedOrder{}, fmt.Errorf("failed to decode snapshot %s: %w", a.ID, err)
	}
	a.ArchivedAt = parseTime(archivedAt)
	a.ArchivedBy = archivedBy.String
	return a, nil
}

// =============================================================================
// STAFFING STORE (staffing.Store)
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e staffing.Employee) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO employees (id, name, email, hourly_rate, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			hourly_rate = excluded.hourly_rate`,
		e.ID, e.Name, nullString(e.Email), e.HourlyRate.String(), e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

const employeeColumns = `id, name, email, hourly_rate, created_at`

func (s *Store) GetEmployee(ctx context.Context, id string) (*staffing.Employee, error) {
	e, err := scanEmployee(s.conn(ctx).QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", staffing.ErrEmployeeNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]staffing.Employee, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var result []staffing.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanEmployee(row scanner) (staffing.Employee, error) {
	var e staffing.Employee
	var email sql.NullString
	var rate, createdAt string
	if err := row.Scan(&e.ID, &e.Name, &email, &rate, &createdAt); err != nil {
		return staffing.Employee{}, err
	}
	e.Email = email.String
	e.HourlyRate = generic.MustParseDecimal(rate)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

func (s *Store) CreateLeave(ctx context.Context, l staffing.LeaveRequest) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO leave_requests (id, employee_id, balance_id, start_date, end_date, days, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.EmployeeID, l.BalanceID, l.Start.Format(time.DateOnly), l.End.Format(time.DateOnly),
		l.Days.String(), nullString(l.Reason), l.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	return nil
}

const leaveColumns = `id, employee_id, balance_id, start_date, end_date, days, reason, created_at`

func (s *Store) GetLeave(ctx context.Context, id string) (*staffing.LeaveRequest, error) {
	l, err := scanLeave(s.conn(ctx).QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leave_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", staffing.ErrLeaveNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) ListLeave(ctx context.Context, employeeID string) ([]staffing.LeaveRequest, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+leaveColumns+` FROM leave_requests WHERE employee_id = ? ORDER BY start_date`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var result []staffing.LeaveRequest
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func scanLeave(row scanner) (staffing.LeaveRequest, error) {
	var l staffing.LeaveRequest
	var start, end, days, createdAt string
	var reason sql.NullString
	if err := row.Scan(&l.ID, &l.EmployeeID, &l.BalanceID, &start, &end, &days, &reason, &createdAt); err != nil {
		return staffing.LeaveRequest{}, err
	}
	l.Start, _ = time.Parse(time.DateOnly, start)
	l.End, _ = time.Parse(time.DateOnly, end)
	l.Days = generic.MustParseDecimal(days)
	l.Reason = reason.String
	l.CreatedAt = parseTime(createdAt)
	return l, nil
}

func (s *Store) CreateTimesheet(ctx context.Context, ts staffing.Timesheet) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO timesheets (id, employee_id, week_start, hours, hourly_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts.ID, ts.EmployeeID, ts.WeekStart.Format(time.DateOnly), ts.Hours.String(),
		ts.HourlyRate.String(), ts.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create timesheet: %w", err)
	}
	return nil
}

func (s *Store) GetTimesheet(ctx context.Context, id string) (*staffing.Timesheet, error) {
	var ts staffing.Timesheet
	var weekStart, hours, rate, createdAt string
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, employee_id, week_start, hours, hourly_rate, created_at
		FROM timesheets WHERE id = ?`, id,
	).Scan(&ts.ID, &ts.EmployeeID, &weekStart, &hours, &rate, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", staffing.ErrTimesheetNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	ts.WeekStart, _ = time.Parse(time.DateOnly, weekStart)
	ts.Hours = generic.MustParseDecimal(hours)
	ts.HourlyRate = generic.MustParseDecimal(rate)
	ts.CreatedAt = parseTime(createdAt)
	return &ts, nil
}

func (s *Store) CreatePayslip(ctx context.Context, p staffing.Payslip) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO payslips (id, timesheet_id, employee_id, hours, hourly_rate, gross, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TimesheetID, p.EmployeeID, p.Hours.String(), p.HourlyRate.String(),
		p.Gross.String(), p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: payslip for timesheet %s", generic.ErrDuplicateRecord, p.TimesheetID)
	}
	if err != nil {
		return fmt.Errorf("failed to create payslip: %w", err)
	}
	return nil
}

func (s *Store) ListPayslips(ctx context.Context, employeeID string) ([]staffing.Payslip, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, timesheet_id, employee_id, hours, hourly_rate, gross, created_at
		FROM payslips WHERE employee_id = ? ORDER BY created_at`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payslips: %w", err)
	}
	defer rows.Close()

	var result []staffing.Payslip
	for rows.Next() {
		var p staffing.Payslip
		var hours, rate, gross, createdAt string
		if err := rows.Scan(&p.ID, &p.TimesheetID, &p.EmployeeID, &hours, &rate, &gross, &createdAt); err != nil {
			return nil, err
		}
		p.Hours = generic.MustParseDecimal(hours)
		p.HourlyRate = generic.MustParseDecimal(rate)
		p.Gross = generic.MustParseDecimal(gross)
		p.CreatedAt = parseTime(createdAt)
		result = append(result, p)
	}
	return result, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		tables := []string{
			"movements", "resources", "approvals", "sequences", "invoices", "orders",
			"archives", "payslips", "timesheets", "leave_requests", "employees",
		}
		for _, table := range tables {
			if _, err := s.conn(ctx).ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
}

// Helper functions

// quantityScale is the number of decimal places kept for counters.
const quantityScale = 3

func toScaled(a generic.Amount) (int64, error) {
	v := a.Value.Shift(quantityScale)
	if !v.Equal(v.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", generic.ErrInvalidAmount, a, quantityScale)
	}
	return v.IntPart(), nil
}

func fromScaled(v int64, unit string) generic.Amount {
	return generic.Amount{Value: decimal.New(v, -quantityScale), Unit: generic.Unit(unit)}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
