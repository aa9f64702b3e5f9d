package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eventpass/internal/services/ledger"
	"eventpass/internal/status"
	"eventpass/models"
)

// fakeStore is an in-memory Store with the same uniqueness guarantees the
// real collections enforce through indexes.
type fakeStore struct {
	mu      sync.Mutex
	seq     int
	events  map[string]*models.Event
	users   map[string]*models.User
	orders  map[string]*models.Order
	tickets map[string]*models.Ticket
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:  map[string]*models.Event{},
		users:   map[string]*models.User{},
		orders:  map[string]*models.Order{},
		tickets: map[string]*models.Ticket{},
	}
}

func (f *fakeStore) addEvent(e *models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[e.ID] = e
}

func (f *fakeStore) addUser(u *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%04d", prefix, f.seq)
}

func (f *fakeStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, fmt.Errorf("event: %w", status.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", status.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order: %w", status.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, o *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.orders {
		if o.TxHash != "" && existing.TxHash == o.TxHash {
			return fmt.Errorf("CreateOrder: %w", status.ErrConflict)
		}
		if existing.EventID == o.EventID && existing.BuyerID == o.BuyerID {
			return fmt.Errorf("CreateOrder: %w", status.ErrConflict)
		}
	}
	o.ID = f.nextID("order")
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	f.orders[o.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateOrderTxHash(ctx context.Context, orderID, txHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order: %w", status.ErrNotFound)
	}
	for _, existing := range f.orders {
		if existing.ID != orderID && txHash != "" && existing.TxHash == txHash {
			return fmt.Errorf("UpdateOrderTxHash: %w", status.ErrConflict)
		}
	}
	o.TxHash = txHash
	o.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) MarkOrderPaid(ctx context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, fmt.Errorf("order: %w", status.ErrNotFound)
	}
	if o.Status != models.OrderStatusPendingVerification {
		return false, nil
	}
	o.Status = models.OrderStatusPaid
	o.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeStore) FindOrderByTxHash(ctx context.Context, txHash string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if txHash != "" && o.TxHash == txHash {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindOrderForBuyer(ctx context.Context, eventID, buyerID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.EventID == eventID && o.BuyerID == buyerID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListPendingOrders(ctx context.Context) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Order
	for _, o := range f.orders {
		if o.Status == models.OrderStatusPendingVerification {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tickets {
		if existing.Code == t.Code || existing.OrderID == t.OrderID ||
			(existing.EventID == t.EventID && existing.BuyerID == t.BuyerID) {
			return fmt.Errorf("CreateTicket: %w", status.ErrTicketExists)
		}
	}
	t.ID = f.nextID("ticket")
	t.CreatedAt = time.Now()
	cp := *t
	f.tickets[t.ID] = &cp
	return nil
}

func (f *fakeStore) FindTicketByOrder(ctx context.Context, orderID string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.OrderID == orderID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindTicketForBuyer(ctx context.Context, eventID, buyerID string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.EventID == eventID && t.BuyerID == buyerID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.Code == code {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SetCheckedIn(ctx context.Context, ticketID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket: %w", status.ErrNotFound)
	}
	t.CheckedInAt = &at
	return nil
}

func (f *fakeStore) ticketCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets)
}

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// fakeOracle returns a fixed minimum amount.
type fakeOracle struct {
	amount int64
	err    error
}

func (f *fakeOracle) MinimumRequiredAmount(ctx context.Context, priceMinorUnits int, currency string) (int64, error) {
	return f.amount, f.err
}

// fakeLedger delegates verification to a test-provided func and records the
// minimum amount it was asked to check.
type fakeLedger struct {
	mu         sync.Mutex
	verify     func(txHash string, minAmount int64) bool
	lastMin    int64
	resolveErr error
}

func (f *fakeLedger) ResolveRecipientCondition(address string) (ledger.LockScript, error) {
	if f.resolveErr != nil {
		return ledger.LockScript{}, f.resolveErr
	}
	return ledger.LockScript{CodeHash: "0xabc", HashType: "type", Args: "0x" + address}, nil
}

func (f *fakeLedger) VerifyPayment(ctx context.Context, txHash string, recipient ledger.LockScript, minAmount int64) bool {
	f.mu.Lock()
	f.lastMin = minAmount
	f.mu.Unlock()
	if f.verify == nil {
		return false
	}
	return f.verify(txHash, minAmount)
}

func (f *fakeLedger) lastMinAmount() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMin
}
