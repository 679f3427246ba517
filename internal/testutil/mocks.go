package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mashughuli/escrow/internal/domain/errand"
	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/domain/message"
	"github.com/mashughuli/escrow/internal/domain/notification"
	"github.com/mashughuli/escrow/internal/domain/user"
)

// --- Transaction Repository Mock ---

// MockTransactionRepository is an in-memory escrow.TransactionRepository.
// Reads return copies so domain mutations only land via Update, the way
// a real store behaves.
type MockTransactionRepository struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*escrow.Transaction

	CreateFunc                func(ctx context.Context, t *escrow.Transaction) error
	GetPendingByReferenceFunc func(ctx context.Context, reference string) (*escrow.Transaction, error)
	UpdateFunc                func(ctx context.Context, t *escrow.Transaction) error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{transactions: make(map[uuid.UUID]*escrow.Transaction)}
}

func (m *MockTransactionRepository) Add(t *escrow.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.transactions[t.ID] = &cp
}

func (m *MockTransactionRepository) Create(ctx context.Context, t *escrow.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.Add(t)
	return nil
}

func (m *MockTransactionRepository) GetPendingByReference(ctx context.Context, reference string) (*escrow.Transaction, error) {
	if m.GetPendingByReferenceFunc != nil {
		return m.GetPendingByReferenceFunc(ctx, reference)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.Reference == reference && t.Status == escrow.StatusPending {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrTransactionNotFound
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTransactionRepository) Update(ctx context.Context, t *escrow.Transaction) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[t.ID]; !ok {
		return domainErrors.ErrTransactionNotFound
	}
	cp := *t
	m.transactions[t.ID] = &cp
	return nil
}

// Stored returns the stored state of a transaction for assertions.
func (m *MockTransactionRepository) Stored(id uuid.UUID) *escrow.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions[id]
}

// --- Payout Repository Mock ---

type MockPayoutRepository struct {
	mu      sync.Mutex
	payouts map[uuid.UUID]*escrow.Payout

	CreateFunc func(ctx context.Context, p *escrow.Payout) error
	UpdateFunc func(ctx context.Context, p *escrow.Payout) error
}

func NewMockPayoutRepository() *MockPayoutRepository {
	return &MockPayoutRepository{payouts: make(map[uuid.UUID]*escrow.Payout)}
}

func (m *MockPayoutRepository) Add(p *escrow.Payout) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payouts[p.ID] = &cp
}

func (m *MockPayoutRepository) Create(ctx context.Context, p *escrow.Payout) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.Add(p)
	return nil
}

func (m *MockPayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok {
		return nil, domainErrors.ErrPayoutNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPayoutRepository) GetPendingByErrand(ctx context.Context, errandID uuid.UUID) (*escrow.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payouts {
		if p.ErrandID == errandID && p.Status == escrow.PayoutPending {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrPayoutNotFound
}

func (m *MockPayoutRepository) Update(ctx context.Context, p *escrow.Payout) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payouts[p.ID]; !ok {
		return domainErrors.ErrPayoutNotFound
	}
	cp := *p
	m.payouts[p.ID] = &cp
	return nil
}

// All returns every stored payout.
func (m *MockPayoutRepository) All() []*escrow.Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*escrow.Payout, 0, len(m.payouts))
	for _, p := range m.payouts {
		out = append(out, p)
	}
	return out
}

// --- Errand Repository Mock ---

type MockErrandRepository struct {
	mu      sync.Mutex
	errands map[uuid.UUID]*errand.Errand
	bids    map[uuid.UUID]*errand.Bid

	UpdateFunc    func(ctx context.Context, e *errand.Errand) error
	UpdateBidFunc func(ctx context.Context, b *errand.Bid) error
}

func NewMockErrandRepository() *MockErrandRepository {
	return &MockErrandRepository{
		errands: make(map[uuid.UUID]*errand.Errand),
		bids:    make(map[uuid.UUID]*errand.Bid),
	}
}

func (m *MockErrandRepository) AddErrand(e *errand.Errand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.errands[e.ID] = &cp
}

func (m *MockErrandRepository) AddBid(b *errand.Bid) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bids[b.ID] = &cp
}

func (m *MockErrandRepository) GetByID(ctx context.Context, id uuid.UUID) (*errand.Errand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.errands[id]
	if !ok {
		return nil, domainErrors.ErrErrandNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockErrandRepository) Update(ctx context.Context, e *errand.Errand) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.errands[e.ID]; !ok {
		return domainErrors.ErrErrandNotFound
	}
	cp := *e
	m.errands[e.ID] = &cp
	return nil
}

func (m *MockErrandRepository) GetBidByID(ctx context.Context, id uuid.UUID) (*errand.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[id]
	if !ok {
		return nil, domainErrors.ErrBidNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MockErrandRepository) ListBids(ctx context.Context, errandID uuid.UUID) ([]*errand.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*errand.Bid
	for _, b := range m.bids {
		if b.ErrandID == errandID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockErrandRepository) UpdateBid(ctx context.Context, b *errand.Bid) error {
	if m.UpdateBidFunc != nil {
		return m.UpdateBidFunc(ctx, b)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bids[b.ID]; !ok {
		return domainErrors.ErrBidNotFound
	}
	cp := *b
	m.bids[b.ID] = &cp
	return nil
}

// StoredErrand returns the stored state of an errand for assertions.
func (m *MockErrandRepository) StoredErrand(id uuid.UUID) *errand.Errand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errands[id]
}

// StoredBid returns the stored state of a bid for assertions.
func (m *MockErrandRepository) StoredBid(id uuid.UUID) *errand.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bids[id]
}

// --- Notification Repository Mock ---

type MockNotificationRepository struct {
	mu            sync.Mutex
	Notifications []*notification.Notification

	CreateBatchFunc func(ctx context.Context, batch []*notification.Notification) error
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{}
}

func (m *MockNotificationRepository) CreateBatch(ctx context.Context, batch []*notification.Notification) error {
	if m.CreateBatchFunc != nil {
		return m.CreateBatchFunc(ctx, batch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, batch...)
	return nil
}

func (m *MockNotificationRepository) List(ctx context.Context, userID uuid.UUID, f notification.ListFilter) (*notification.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := &notification.ListResult{Notifications: []*notification.Notification{}}
	for _, n := range m.Notifications {
		if n.UserID != userID {
			continue
		}
		result.Total++
		if !n.Read {
			result.Unread++
		}
		if f.OnlyUnread && n.Read {
			continue
		}
		result.Notifications = append(result.Notifications, n)
	}
	return result, nil
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.Notifications {
		if n.ID == id && n.UserID == userID {
			n.Read = true
			return n, nil
		}
	}
	return nil, domainErrors.ErrNotificationNotFound
}

func (m *MockNotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.Notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			count++
		}
	}
	return count, nil
}

// ForUser returns the stored notifications addressed to a user.
func (m *MockNotificationRepository) ForUser(userID uuid.UUID) []*notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.Notification
	for _, n := range m.Notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// --- Message Repository Mock ---

type MockMessageRepository struct {
	mu       sync.Mutex
	Messages []*message.Message

	CreateFunc  func(ctx context.Context, msg *message.Message) error
	HistoryFunc func(ctx context.Context, userA, userB uuid.UUID, limit int) ([]*message.Message, error)
}

func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{}
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *message.Message) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	return nil
}

func (m *MockMessageRepository) History(ctx context.Context, userA, userB uuid.UUID, limit int) ([]*message.Message, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, userA, userB, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*message.Message
	for _, msg := range m.Messages {
		between := (msg.SenderID == userA && msg.RecipientID == userB) ||
			(msg.SenderID == userB && msg.RecipientID == userA)
		if between {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MockMessageRepository) MarkConversationRead(ctx context.Context, recipientID, senderID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, msg := range m.Messages {
		if msg.RecipientID == recipientID && msg.SenderID == senderID && !msg.Read {
			msg.Read = true
			msg.Status = message.StatusRead
			count++
		}
	}
	return count, nil
}

// --- User Repository Mock ---

type MockUserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[uuid.UUID]*user.User)}
}

func (m *MockUserRepository) AddUser(u *user.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domainErrors.ErrUserNotFound
	}
	return u, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs the function directly. It does not emulate
// rollback; tests that exercise abort paths arrange their writes so the
// abort happens before any mutation.
type MockTransactionManager struct {
	mu    sync.Mutex
	Calls int

	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outcome Publisher Mock ---

// PublishedOutcome is one captured publish.
type PublishedOutcome struct {
	Topic   string
	Payload []byte
}

// MockPublisher captures settlement outcome publishes.
type MockPublisher struct {
	mu       sync.Mutex
	Outcomes []PublishedOutcome

	RelayFunc func(ctx context.Context, topic string, payload []byte) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Relay(ctx context.Context, topic string, payload []byte) error {
	if m.RelayFunc != nil {
		return m.RelayFunc(ctx, topic, payload)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcomes = append(m.Outcomes, PublishedOutcome{Topic: topic, Payload: payload})
	return nil
}

// Published returns the captured outcomes.
func (m *MockPublisher) Published() []PublishedOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedOutcome(nil), m.Outcomes...)
}
