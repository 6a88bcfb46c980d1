/*
Package sqlite provides a SQLite-backed implementation of shop.Store.

PURPOSE:
  Implements all shop persistence interfaces using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  work_orders:     Repair jobs with their payment snapshot
  line_items:      Priced lines per order
  service_batches: Rounds of billable work
  batch_items:     Items with per-item work-unit status
  assignments:     Units of work given to workers
  worker_shares:   Computed splits per assignment
  workers:         Default percentage and earnings balances
  debts:           Receivables per order
  debt_payments:   Append-only payment history

ATOMICITY:
  - CompleteWorkOrder and CompareAndSetOrderStatus are single
    conditional UPDATEs; RowsAffected decides who won a race.
  - The at-most-one-active-debt invariant is backed by a partial
    unique index on debts(work_order_id) WHERE status != 'paid'.
  - Earnings increments and the period reset run under the store
    mutex within one transaction: money lives as decimal TEXT, so
    the arithmetic happens in Go, serialized per store.

MONEY:
  All amounts are stored as decimal strings and parsed with
  shopspring/decimal. No floats touch the database.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, one
  writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/garage.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  svc := shop.NewService(store)

SEE ALSO:
  - shop/store.go: Interface definitions and atomicity contract
  - shop/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/garage-engine/engine"
	"github.com/warp/garage-engine/shop"
)

// Store implements shop.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serializes writes anyway, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS work_orders (
		id TEXT PRIMARY KEY,
		vehicle TEXT NOT NULL,
		owner_name TEXT NOT NULL,
		owner_phone TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		status TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS line_items (
		work_order_id TEXT NOT NULL REFERENCES work_orders(id),
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		category TEXT NOT NULL,
		PRIMARY KEY (work_order_id, position)
	);

	CREATE TABLE IF NOT EXISTS service_batches (
		id TEXT PRIMARY KEY,
		work_order_id TEXT NOT NULL REFERENCES work_orders(id),
		paid_amount TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_batches_order
		ON service_batches(work_order_id);

	CREATE TABLE IF NOT EXISTS batch_items (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL REFERENCES service_batches(id),
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		rejection_reason TEXT NOT NULL DEFAULT '',
		completed_at TEXT,
		reviewed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_items_batch
		ON batch_items(batch_id, position);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		work_order_id TEXT NOT NULL REFERENCES work_orders(id),
		item_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		payment TEXT NOT NULL,
		status TEXT NOT NULL,
		rejection_reason TEXT NOT NULL DEFAULT '',
		share_mode TEXT NOT NULL,
		completed_at TEXT,
		reviewed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_order
		ON assignments(work_order_id);

	CREATE TABLE IF NOT EXISTS worker_shares (
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		position INTEGER NOT NULL,
		worker_id TEXT NOT NULL,
		percentage TEXT NOT NULL,
		allocated TEXT NOT NULL,
		earning TEXT NOT NULL,
		owner_share TEXT NOT NULL,
		PRIMARY KEY (assignment_id, position)
	);

	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		percentage TEXT NOT NULL,
		earnings TEXT NOT NULL,
		total_earnings TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS debts (
		id TEXT PRIMARY KEY,
		work_order_id TEXT NOT NULL REFERENCES work_orders(id),
		amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one non-paid debt per work order.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_debt
		ON debts(work_order_id) WHERE status != 'paid';

	CREATE TABLE IF NOT EXISTS debt_payments (
		debt_id TEXT NOT NULL REFERENCES debts(id),
		position INTEGER NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (debt_id, position)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func parseMoney(s string) engine.Money { return engine.MustParseMoney(s) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// WORK ORDERS
// =============================================================================

func (s *Store) GetWorkOrder(ctx context.Context, id engine.WorkOrderID) (*shop.WorkOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vehicle, owner_name, owner_phone, paid_amount,
		       payment_status, status, deleted, created_at, updated_at
		FROM work_orders WHERE id = ?`, string(id))

	o, err := scanWorkOrder(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "work order", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}

	o.LineItems, err = s.loadLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func scanWorkOrder(row *sql.Row) (*shop.WorkOrder, error) {
	var o shop.WorkOrder
	var id, paid, created, updated string
	var deleted int
	err := row.Scan(&id, &o.Vehicle, &o.OwnerName, &o.OwnerPhone, &paid,
		&o.PaymentStatus, &o.Status, &deleted, &created, &updated)
	if err != nil {
		return nil, err
	}
	o.ID = engine.WorkOrderID(id)
	o.PaidAmount = parseMoney(paid)
	o.Deleted = deleted != 0
	o.CreatedAt = parseTime(created)
	o.UpdatedAt = parseTime(updated)
	return &o, nil
}

func (s *Store) loadLineItems(ctx context.Context, id engine.WorkOrderID) ([]shop.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, price, quantity, category
		FROM line_items WHERE work_order_id = ? ORDER BY position`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []shop.LineItem
	for rows.Next() {
		var li shop.LineItem
		var price string
		if err := rows.Scan(&li.Name, &price, &li.Quantity, &li.Category); err != nil {
			return nil, err
		}
		li.Price = parseMoney(price)
		items = append(items, li)
	}
	return items, rows.Err()
}

func (s *Store) SaveWorkOrder(ctx context.Context, o *shop.WorkOrder) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO work_orders
				(id, vehicle, owner_name, owner_phone, paid_amount,
				 payment_status, status, deleted, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				vehicle = excluded.vehicle,
				owner_name = excluded.owner_name,
				owner_phone = excluded.owner_phone,
				paid_amount = excluded.paid_amount,
				payment_status = excluded.payment_status,
				status = excluded.status,
				deleted = excluded.deleted,
				updated_at = excluded.updated_at`,
			string(o.ID), o.Vehicle, o.OwnerName, o.OwnerPhone,
			o.PaidAmount.String(), string(o.PaymentStatus), string(o.Status),
			boolToInt(o.Deleted), formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM line_items WHERE work_order_id = ?`, string(o.ID)); err != nil {
			return err
		}
		for i, li := range o.LineItems {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO line_items (work_order_id, position, name, price, quantity, category)
				VALUES (?, ?, ?, ?, ?, ?)`,
				string(o.ID), i, li.Name, li.Price.String(), li.Quantity, string(li.Category))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListWorkOrders(ctx context.Context, includeDeleted bool) ([]*shop.WorkOrder, error) {
	query := `SELECT id FROM work_orders`
	if !includeDeleted {
		query += ` WHERE deleted = 0`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []engine.WorkOrderID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, engine.WorkOrderID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orders := make([]*shop.WorkOrder, 0, len(ids))
	for _, id := range ids {
		o, err := s.GetWorkOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// CompleteWorkOrder is a single conditional UPDATE: the row decides who
// wins a race, not the caller's stale read.
func (s *Store) CompleteWorkOrder(ctx context.Context, id engine.WorkOrderID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE work_orders SET status = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		string(shop.OrderCompleted), formatTime(time.Now()),
		string(id), string(shop.OrderCompleted), string(shop.OrderDelivered))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish a lost race from a missing order.
		if _, err := s.GetWorkOrder(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) CompareAndSetOrderStatus(ctx context.Context, id engine.WorkOrderID, from, to shop.OrderStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE work_orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), formatTime(time.Now()), string(id), string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.GetWorkOrder(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

const assignmentColumns = `id, work_order_id, item_id, title, description,
	payment, status, rejection_reason, share_mode, completed_at, reviewed_at,
	created_at, updated_at`

func (s *Store) GetAssignment(ctx context.Context, id engine.AssignmentID) (*shop.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments, err := s.collectAssignments(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, &engine.NotFoundError{Kind: "assignment", ID: string(id)}
	}
	return assignments[0], nil
}

func (s *Store) AssignmentsByWorkOrder(ctx context.Context, orderID engine.WorkOrderID) ([]*shop.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE work_order_id = ? ORDER BY created_at`,
		string(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectAssignments(ctx, rows)
}

func (s *Store) collectAssignments(ctx context.Context, rows *sql.Rows) ([]*shop.Assignment, error) {
	var assignments []*shop.Assignment
	for rows.Next() {
		var a shop.Assignment
		var id, orderID, itemID, payment, created, updated string
		var completedAt, reviewedAt sql.NullString
		err := rows.Scan(&id, &orderID, &itemID, &a.Title, &a.Description,
			&payment, &a.Status, &a.RejectionReason, &a.Mode,
			&completedAt, &reviewedAt, &created, &updated)
		if err != nil {
			return nil, err
		}
		a.ID = engine.AssignmentID(id)
		a.WorkOrderID = engine.WorkOrderID(orderID)
		a.ItemID = engine.ItemID(itemID)
		a.Payment = parseMoney(payment)
		a.CompletedAt = parseTimePtr(completedAt)
		a.ReviewedAt = parseTimePtr(reviewedAt)
		a.CreatedAt = parseTime(created)
		a.UpdatedAt = parseTime(updated)
		assignments = append(assignments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range assignments {
		shares, err := s.loadShares(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		mode := a.Mode
		a.SetShares(shares)
		a.Mode = mode // keep the stored variant tag
	}
	return assignments, nil
}

func (s *Store) loadShares(ctx context.Context, id engine.AssignmentID) ([]shop.WorkerShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_id, percentage, allocated, earning, owner_share
		FROM worker_shares WHERE assignment_id = ? ORDER BY position`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shares []shop.WorkerShare
	for rows.Next() {
		var sh shop.WorkerShare
		var workerID, pct, allocated, earning, ownerShare string
		if err := rows.Scan(&workerID, &pct, &allocated, &earning, &ownerShare); err != nil {
			return nil, err
		}
		sh.WorkerID = engine.WorkerID(workerID)
		sh.Percentage = parseMoney(pct).Value
		sh.Allocated = parseMoney(allocated)
		sh.Earning = parseMoney(earning)
		sh.OwnerShare = parseMoney(ownerShare)
		shares = append(shares, sh)
	}
	return shares, rows.Err()
}

func (s *Store) SaveAssignment(ctx context.Context, a *shop.Assignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assignments
				(id, work_order_id, item_id, title, description, payment,
				 status, rejection_reason, share_mode, completed_at,
				 reviewed_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				payment = excluded.payment,
				status = excluded.status,
				rejection_reason = excluded.rejection_reason,
				share_mode = excluded.share_mode,
				completed_at = excluded.completed_at,
				reviewed_at = excluded.reviewed_at,
				updated_at = excluded.updated_at`,
			string(a.ID), string(a.WorkOrderID), string(a.ItemID),
			a.Title, a.Description, a.Payment.String(),
			string(a.Status), a.RejectionReason, string(a.Mode),
			formatTimePtr(a.CompletedAt), formatTimePtr(a.ReviewedAt),
			formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM worker_shares WHERE assignment_id = ?`, string(a.ID)); err != nil {
			return err
		}
		for i, sh := range a.Shares() {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO worker_shares
					(assignment_id, position, worker_id, percentage,
					 allocated, earning, owner_share)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				string(a.ID), i, string(sh.WorkerID), sh.Percentage.String(),
				sh.Allocated.String(), sh.Earning.String(), sh.OwnerShare.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// BATCHES
// =============================================================================

func (s *Store) GetBatch(ctx context.Context, id engine.BatchID) (*shop.ServiceBatch, error) {
	b, err := s.getBatchRow(ctx, `
		SELECT id, work_order_id, paid_amount, payment_status, status,
		       created_at, updated_at
		FROM service_batches WHERE id = ?`, string(id))
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "batch", ID: string(id)}
	}
	return b, err
}

func (s *Store) getBatchRow(ctx context.Context, query string, args ...any) (*shop.ServiceBatch, error) {
	var b shop.ServiceBatch
	var id, orderID, paid, created, updated string
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&id, &orderID, &paid, &b.PaymentStatus, &b.Status, &created, &updated)
	if err != nil {
		return nil, err
	}
	b.ID = engine.BatchID(id)
	b.WorkOrderID = engine.WorkOrderID(orderID)
	b.PaidAmount = parseMoney(paid)
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)

	b.Items, err = s.loadBatchItems(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) loadBatchItems(ctx context.Context, id engine.BatchID) ([]shop.BatchItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, quantity, category, status,
		       rejection_reason, completed_at, reviewed_at
		FROM batch_items WHERE batch_id = ? ORDER BY position`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []shop.BatchItem
	for rows.Next() {
		var it shop.BatchItem
		var itemID, price string
		var completedAt, reviewedAt sql.NullString
		err := rows.Scan(&itemID, &it.Name, &price, &it.Quantity, &it.Category,
			&it.Status, &it.RejectionReason, &completedAt, &reviewedAt)
		if err != nil {
			return nil, err
		}
		it.ID = engine.ItemID(itemID)
		it.Price = parseMoney(price)
		it.CompletedAt = parseTimePtr(completedAt)
		it.ReviewedAt = parseTimePtr(reviewedAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) SaveBatch(ctx context.Context, b *shop.ServiceBatch) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO service_batches
				(id, work_order_id, paid_amount, payment_status, status,
				 created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				paid_amount = excluded.paid_amount,
				payment_status = excluded.payment_status,
				status = excluded.status,
				updated_at = excluded.updated_at`,
			string(b.ID), string(b.WorkOrderID), b.PaidAmount.String(),
			string(b.PaymentStatus), string(b.Status),
			formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM batch_items WHERE batch_id = ?`, string(b.ID)); err != nil {
			return err
		}
		for i, it := range b.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO batch_items
					(id, batch_id, position, name, price, quantity, category,
					 status, rejection_reason, completed_at, reviewed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				string(it.ID), string(b.ID), i, it.Name, it.Price.String(),
				it.Quantity, string(it.Category), string(it.Status),
				it.RejectionReason, formatTimePtr(it.CompletedAt),
				formatTimePtr(it.ReviewedAt))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) BatchesByWorkOrder(ctx context.Context, orderID engine.WorkOrderID) ([]*shop.ServiceBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM service_batches WHERE work_order_id = ? ORDER BY created_at`,
		string(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []engine.BatchID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, engine.BatchID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	batches := make([]*shop.ServiceBatch, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (s *Store) ActiveBatchByWorkOrder(ctx context.Context, orderID engine.WorkOrderID) (*shop.ServiceBatch, error) {
	b, err := s.getBatchRow(ctx, `
		SELECT id, work_order_id, paid_amount, payment_status, status,
		       created_at, updated_at
		FROM service_batches
		WHERE work_order_id = ? AND status != ?
		ORDER BY created_at DESC LIMIT 1`,
		string(orderID), string(shop.BatchDelivered))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *Store) BatchByItem(ctx context.Context, itemID engine.ItemID) (*shop.ServiceBatch, error) {
	var batchID string
	err := s.db.QueryRowContext(ctx,
		`SELECT batch_id FROM batch_items WHERE id = ?`, string(itemID)).Scan(&batchID)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "item", ID: string(itemID)}
	}
	if err != nil {
		return nil, err
	}
	return s.GetBatch(ctx, engine.BatchID(batchID))
}

// =============================================================================
// WORKERS
// =============================================================================

func (s *Store) GetWorker(ctx context.Context, id engine.WorkerID) (*shop.Worker, error) {
	var w shop.Worker
	var workerID, pct, earnings, total, created string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, percentage, earnings, total_earnings, created_at
		FROM workers WHERE id = ?`, string(id)).
		Scan(&workerID, &w.Name, &pct, &earnings, &total, &created)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "worker", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	w.ID = engine.WorkerID(workerID)
	w.Percentage = parseMoney(pct).Value
	w.Earnings = parseMoney(earnings)
	w.TotalEarnings = parseMoney(total)
	w.CreatedAt = parseTime(created)
	return &w, nil
}

func (s *Store) SaveWorker(ctx context.Context, w *shop.Worker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (id, name, percentage, earnings, total_earnings, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			percentage = excluded.percentage,
			earnings = excluded.earnings,
			total_earnings = excluded.total_earnings`,
		string(w.ID), w.Name, w.Percentage.String(),
		w.Earnings.String(), w.TotalEarnings.String(), formatTime(w.CreatedAt))
	return err
}

func (s *Store) ListWorkers(ctx context.Context) ([]*shop.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM workers ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []engine.WorkerID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, engine.WorkerID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	workers := make([]*shop.Worker, 0, len(ids))
	for _, id := range ids {
		w, err := s.GetWorker(ctx, id)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// AddWorkerEarnings increments under the store mutex: money is decimal
// TEXT in the database, so the addition happens in Go inside one
// transaction.
func (s *Store) AddWorkerEarnings(ctx context.Context, id engine.WorkerID, delta engine.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var earnings string
		err := tx.QueryRowContext(ctx,
			`SELECT earnings FROM workers WHERE id = ?`, string(id)).Scan(&earnings)
		if err == sql.ErrNoRows {
			return &engine.NotFoundError{Kind: "worker", ID: string(id)}
		}
		if err != nil {
			return err
		}
		next := parseMoney(earnings).Add(delta)
		_, err = tx.ExecContext(ctx,
			`UPDATE workers SET earnings = ? WHERE id = ?`, next.String(), string(id))
		return err
	})
}

// ResetWorkerPeriod folds earnings into total_earnings and zeroes
// earnings in one transaction, so no increment lands between the read
// and the zero.
func (s *Store) ResetWorkerPeriod(ctx context.Context, id engine.WorkerID) (engine.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var folded engine.Money
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var earnings, total string
		err := tx.QueryRowContext(ctx,
			`SELECT earnings, total_earnings FROM workers WHERE id = ?`, string(id)).
			Scan(&earnings, &total)
		if err == sql.ErrNoRows {
			return &engine.NotFoundError{Kind: "worker", ID: string(id)}
		}
		if err != nil {
			return err
		}
		folded = parseMoney(earnings)
		next := parseMoney(total).Add(folded)
		_, err = tx.ExecContext(ctx, `
			UPDATE workers SET earnings = ?, total_earnings = ? WHERE id = ?`,
			engine.Zero().String(), next.String(), string(id))
		return err
	})
	if err != nil {
		return engine.Zero(), err
	}
	return folded, nil
}

// =============================================================================
// DEBTS
// =============================================================================

func (s *Store) GetDebt(ctx context.Context, id engine.DebtID) (*shop.Debt, error) {
	d, err := s.getDebtRow(ctx, `
		SELECT id, work_order_id, amount, paid_amount, status, created_at, updated_at
		FROM debts WHERE id = ?`, string(id))
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "debt", ID: string(id)}
	}
	return d, err
}

func (s *Store) getDebtRow(ctx context.Context, query string, args ...any) (*shop.Debt, error) {
	var d shop.Debt
	var id, orderID, amount, paid, created, updated string
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&id, &orderID, &amount, &paid, &d.Status, &created, &updated)
	if err != nil {
		return nil, err
	}
	d.ID = engine.DebtID(id)
	d.WorkOrderID = engine.WorkOrderID(orderID)
	d.Amount = parseMoney(amount)
	d.PaidAmount = parseMoney(paid)
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseTime(updated)

	d.Payments, err = s.loadDebtPayments(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) loadDebtPayments(ctx context.Context, id engine.DebtID) ([]shop.DebtPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT amount, paid_at, method, notes
		FROM debt_payments WHERE debt_id = ? ORDER BY position`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []shop.DebtPayment
	for rows.Next() {
		var p shop.DebtPayment
		var amount, paidAt string
		if err := rows.Scan(&amount, &paidAt, &p.Method, &p.Notes); err != nil {
			return nil, err
		}
		p.Amount = parseMoney(amount)
		p.Date = parseTime(paidAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) SaveDebt(ctx context.Context, d *shop.Debt) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO debts
				(id, work_order_id, amount, paid_amount, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				amount = excluded.amount,
				paid_amount = excluded.paid_amount,
				status = excluded.status,
				updated_at = excluded.updated_at`,
			string(d.ID), string(d.WorkOrderID), d.Amount.String(),
			d.PaidAmount.String(), string(d.Status),
			formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
		if err != nil {
			return err
		}

		// History is append-only at the domain level; rewriting the rows
		// here just mirrors the struct.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM debt_payments WHERE debt_id = ?`, string(d.ID)); err != nil {
			return err
		}
		for i, p := range d.Payments {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO debt_payments (debt_id, position, amount, paid_at, method, notes)
				VALUES (?, ?, ?, ?, ?, ?)`,
				string(d.ID), i, p.Amount.String(), formatTime(p.Date), p.Method, p.Notes)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) DebtsByWorkOrder(ctx context.Context, orderID engine.WorkOrderID) ([]*shop.Debt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM debts WHERE work_order_id = ? ORDER BY created_at`, string(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []engine.DebtID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, engine.DebtID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debts := make([]*shop.Debt, 0, len(ids))
	for _, id := range ids {
		d, err := s.GetDebt(ctx, id)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, nil
}

func (s *Store) ActiveDebtByWorkOrder(ctx context.Context, orderID engine.WorkOrderID) (*shop.Debt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM debts WHERE work_order_id = ? AND status != ?`,
		string(orderID), string(engine.PaymentPaid))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []engine.DebtID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, engine.DebtID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(ids) {
	case 0:
		return nil, nil
	case 1:
		return s.GetDebt(ctx, ids[0])
	}
	return nil, &engine.DuplicateActiveDebtError{WorkOrderID: orderID, Count: len(ids)}
}

// Reset drops all rows. Dev tooling only.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"debt_payments", "debts", "worker_shares", "assignments",
		"batch_items", "service_batches", "line_items", "work_orders", "workers",
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return err
			}
		}
		return nil
	})
}
