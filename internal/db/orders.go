package db

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botanicashop/botanica/internal/models"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrPaymentIntentAlreadySet = errors.New("payment intent already set for order")
)

// orderNumberAttempts bounds the retry-on-conflict loop around order number
// generation. The unique index is the authority; the generator only has to be
// unlikely to collide.
const orderNumberAttempts = 3

// querier is the slice of pgxpool.Pool the order store uses. Tests substitute
// a hand-rolled implementation to drive the transaction and CAS paths.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type OrderStore struct {
	pool querier
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create persists the order and its items in one transaction. A duplicate
// order number regenerates and retries; partial persistence is never
// observable.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	if len(order.Items) == 0 {
		return fmt.Errorf("order must have at least one item")
	}

	var lastErr error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = GenerateOrderNumber(time.Now())
		err := s.createOnce(ctx, order)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err, "orders_order_number_key") {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("failed to allocate a unique order number after %d attempts: %w", orderNumberAttempts, lastErr)
}

func (s *OrderStore) createOnce(ctx context.Context, order *models.Order) error {
	shippingJSON, err := marshalAddress(order.ShippingAddress)
	if err != nil {
		return err
	}
	billingJSON, err := marshalAddress(order.BillingAddress)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (
			order_number, user_id, customer_email, customer_name,
			subtotal, shipping_cost, tax_amount, total, currency,
			status, payment_status, shipping_address, billing_address
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`,
		order.OrderNumber, order.UserID, order.CustomerEmail, order.CustomerName,
		order.Subtotal, order.ShippingCost, order.TaxAmount, order.Total, order.Currency,
		string(order.Status), string(order.PaymentStatus), shippingJSON, billingJSON,
	)
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&order.ID, &createdAt); err != nil {
		return err
	}
	order.CreatedAt = createdAt.Time

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		itemRow := tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			item.OrderID, item.ProductID, item.Name, item.Quantity, item.UnitPrice,
		)
		if err := itemRow.Scan(&item.ID); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// Delete is the compensating action for a failed payment-authorization open.
// Items cascade with the order row.
func (s *OrderStore) Delete(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.scanOrder(s.pool.QueryRow(ctx, selectOrderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := s.scanOrder(s.pool.QueryRow(ctx, selectOrderColumns+` FROM orders WHERE order_number = $1`, orderNumber))
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, selectOrderColumns+`
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := s.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, order := range orders {
		if err := s.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// SetPaymentIntent records the processor's authorization id. It may be set at
// most once; a second attempt is a bug state, not a supported path.
func (s *OrderStore) SetPaymentIntent(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders SET payment_intent_id = $2
		WHERE id = $1 AND payment_intent_id IS NULL`,
		orderID, paymentIntentID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		var existing pgtype.Text
		if scanErr := s.pool.QueryRow(ctx, `SELECT payment_intent_id FROM orders WHERE id = $1`, orderID).Scan(&existing); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return scanErr
		}
		return fmt.Errorf("%w: %s", ErrPaymentIntentAlreadySet, existing.String)
	}
	return nil
}

// MarkConfirmed moves pending/pending to confirmed/paid. The compare-and-swap
// WHERE clause makes the transition safe under concurrent and replayed
// webhook deliveries: applied=false with a nil error means the order was
// already confirmed and no side effects should fire again.
func (s *OrderStore) MarkConfirmed(ctx context.Context, orderID uuid.UUID, paymentMethod string) (bool, error) {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, payment_method = $4, confirmed_at = NOW()
		WHERE id = $1 AND status = 'pending' AND payment_status = 'pending'`,
		orderID, string(models.StatusConfirmed), string(models.PaymentPaid), paymentMethod)
	if err != nil {
		return false, err
	}
	if cmdTag.RowsAffected() == 1 {
		return true, nil
	}
	return s.resolveNoopTransition(ctx, orderID, models.StatusConfirmed, models.PaymentPaid)
}

// MarkCancelledFailed moves pending/pending to cancelled/failed on a failed
// or cancelled authorization. Same replay semantics as MarkConfirmed.
func (s *OrderStore) MarkCancelledFailed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, cancelled_at = NOW()
		WHERE id = $1 AND status = 'pending' AND payment_status = 'pending'`,
		orderID, string(models.StatusCancelled), string(models.PaymentFailed))
	if err != nil {
		return false, err
	}
	if cmdTag.RowsAffected() == 1 {
		return true, nil
	}
	return s.resolveNoopTransition(ctx, orderID, models.StatusCancelled, models.PaymentFailed)
}

// Cancel is the explicit customer/admin cancellation. It only touches status;
// the payment side is reconciled independently.
func (s *OrderStore) Cancel(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $2, cancelled_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')`,
		orderID, string(models.StatusCancelled))
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/confirmed", ErrInvalidStatusTransition)
	}
	return nil
}

// resolveNoopTransition decides whether a zero-row CAS update was a replay
// (already in the target state, fine) or an illegal transition.
func (s *OrderStore) resolveNoopTransition(ctx context.Context, orderID uuid.UUID, wantStatus models.OrderStatus, wantPayment models.PaymentStatus) (bool, error) {
	var status, paymentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status, payment_status FROM orders WHERE id = $1`, orderID).
		Scan(&status, &paymentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrOrderNotFound
	}
	if err != nil {
		return false, err
	}
	if models.OrderStatus(status) == wantStatus && models.PaymentStatus(paymentStatus) == wantPayment {
		return false, nil
	}
	return false, fmt.Errorf("%w: order is %s/%s", ErrInvalidStatusTransition, status, paymentStatus)
}

const selectOrderColumns = `
	SELECT id, order_number, user_id, customer_email, customer_name,
	       subtotal, shipping_cost, tax_amount, total, currency,
	       status, payment_status, payment_intent_id, payment_method,
	       shipping_address, billing_address, created_at, confirmed_at, cancelled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *OrderStore) scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order           models.Order
		status          string
		paymentStatus   string
		paymentIntentID pgtype.Text
		paymentMethod   pgtype.Text
		shippingJSON    []byte
		billingJSON     []byte
		createdAt       pgtype.Timestamptz
		confirmedAt     pgtype.Timestamptz
		cancelledAt     pgtype.Timestamptz
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.CustomerEmail, &order.CustomerName,
		&order.Subtotal, &order.ShippingCost, &order.TaxAmount, &order.Total, &order.Currency,
		&status, &paymentStatus, &paymentIntentID, &paymentMethod,
		&shippingJSON, &billingJSON, &createdAt, &confirmedAt, &cancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatus(status)
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	if paymentIntentID.Valid {
		order.PaymentIntentID = paymentIntentID.String
	}
	if paymentMethod.Valid {
		order.PaymentMethod = paymentMethod.String
	}
	order.CreatedAt = createdAt.Time
	if confirmedAt.Valid {
		order.ConfirmedAt = confirmedAt.Time
	}
	if cancelledAt.Valid {
		order.CancelledAt = cancelledAt.Time
	}

	if order.ShippingAddress, err = unmarshalAddress(shippingJSON); err != nil {
		return nil, err
	}
	if order.BillingAddress, err = unmarshalAddress(billingJSON); err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *OrderStore) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, product_id, name, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY id`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	order.Items = order.Items[:0]
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func marshalAddress(addr *models.Address) ([]byte, error) {
	if addr == nil {
		return nil, nil
	}
	payload, err := json.Marshal(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode address: %w", err)
	}
	return payload, nil
}

func unmarshalAddress(payload []byte) (*models.Address, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var addr models.Address
	if err := json.Unmarshal(payload, &addr); err != nil {
		return nil, fmt.Errorf("failed to decode address: %w", err)
	}
	return &addr, nil
}

const orderNumberAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ23456789"

// GenerateOrderNumber builds the human-facing order number: a date component
// for support staff plus a random suffix. Uniqueness is enforced by the
// database, not by this function.
func GenerateOrderNumber(now time.Time) string {
	suffix := make([]byte, 6)
	random := make([]byte, 6)
	_, _ = rand.Read(random)
	for i, b := range random {
		suffix[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}
