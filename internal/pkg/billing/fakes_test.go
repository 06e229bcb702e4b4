package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/pitlane-app/pitlane/app/models"
)

const testWebhookSecret = "whsec_test_secret"

// memStore is an in-memory EntitlementStore with failure switches.
type memStore struct {
	mu       sync.Mutex
	states   map[uint]*models.EntitlementState
	requests []models.RefundRequest

	atomicErr error
	directErr error
	getErr    error
	saveErr   error
	auditErr  error

	atomicCalls int
	directCalls int
}

func newMemStore() *memStore {
	return &memStore{states: map[uint]*models.EntitlementState{}}
}

func (m *memStore) GetState(_ context.Context, userID uint) (*models.EntitlementState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.states[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) state(userID uint) *models.EntitlementState {
	s, ok := m.states[userID]
	if !ok {
		s = &models.EntitlementState{UserID: userID}
		m.states[userID] = s
	}
	return s
}

func (m *memStore) AtomicGrantPremium(_ context.Context, userID uint, customerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.atomicCalls++
	if m.atomicErr != nil {
		return false, m.atomicErr
	}
	s := m.state(userID)
	if s.IsPremium {
		return false, nil
	}
	now := time.Now()
	s.IsPremium = true
	s.PremiumGrantedAt = &now
	if customerID != "" {
		s.ProviderCustomerID = &customerID
	}
	return true, nil
}

func (m *memStore) DirectGrantPremium(_ context.Context, userID uint, customerID string, grantedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directCalls++
	if m.directErr != nil {
		return m.directErr
	}
	s := m.state(userID)
	s.IsPremium = true
	s.PremiumGrantedAt = &grantedAt
	if customerID != "" {
		s.ProviderCustomerID = &customerID
	}
	return nil
}

func (m *memStore) SaveSlotCount(_ context.Context, userID uint, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state(userID).PurchasedSlotCount = count
	return nil
}

func (m *memStore) RecordRefundRequest(_ context.Context, req *models.RefundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auditErr != nil {
		return m.auditErr
	}
	m.requests = append(m.requests, *req)
	return nil
}

func (m *memStore) RefundRequestIDs(_ context.Context, userID uint) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auditErr != nil {
		return nil, m.auditErr
	}
	out := map[string]struct{}{}
	for _, r := range m.requests {
		if r.UserID == userID {
			out[r.ProviderRefundID] = struct{}{}
		}
	}
	return out, nil
}

// fakeProvider keeps sessions and refunds in memory. CreateRefund appends to
// the refund list so follow-up reads see the new balance.
type fakeProvider struct {
	mu       sync.Mutex
	sessions []CheckoutSession
	refunds  map[string][]Refund

	listErr         error
	customerListErr error
	getErr          error
	refundListErr   map[string]error
	createErr       error

	listCalls   []string
	createCalls []RefundParams
	seq         int
}

func newFakeProvider(sessions ...CheckoutSession) *fakeProvider {
	return &fakeProvider{
		sessions:      sessions,
		refunds:       map[string][]Refund{},
		refundListErr: map[string]error{},
	}
}

func (f *fakeProvider) ListCheckoutSessions(_ context.Context, customerID string, limit int64) ([]CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, customerID)
	if customerID != "" && f.customerListErr != nil {
		return nil, f.customerListErr
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []CheckoutSession
	for _, s := range f.sessions {
		if customerID == "" || s.CustomerID == customerID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeProvider) GetCheckoutSession(_ context.Context, sessionID string) (CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return CheckoutSession{}, f.getErr
	}
	for _, s := range f.sessions {
		if s.ID == sessionID {
			return s, nil
		}
	}
	return CheckoutSession{}, &ProviderError{StatusCode: 404, Code: "resource_missing", Message: "No such checkout.session"}
}

func (f *fakeProvider) ListRefunds(_ context.Context, paymentIntentID string) ([]Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.refundListErr[paymentIntentID]; err != nil {
		return nil, err
	}
	return append([]Refund(nil), f.refunds[paymentIntentID]...), nil
}

func (f *fakeProvider) CreateRefund(_ context.Context, p RefundParams) (Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, p)
	if f.createErr != nil {
		return Refund{}, f.createErr
	}
	f.seq++
	r := Refund{
		ID:              fmt.Sprintf("re_%d", f.seq),
		PaymentIntentID: p.PaymentIntentID,
		Amount:          p.Amount,
		Currency:        "eur",
		Status:          "succeeded",
		Reason:          string(p.Reason),
		CreatedAt:       time.Now().UTC(),
	}
	f.refunds[p.PaymentIntentID] = append(f.refunds[p.PaymentIntentID], r)
	return r, nil
}

// recordingNotifier collects notifications sent from background goroutines.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingNotifier) last() Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

func paidSession(id string, userID uint, amount int64, created time.Time) CheckoutSession {
	return CheckoutSession{
		ID:              id,
		PaymentIntentID: "pi_" + id,
		CustomerID:      "cus_1",
		Amount:          amount,
		Currency:        "eur",
		PaymentStatus:   PaymentStatusPaid,
		Metadata: map[string]string{
			MetadataUserID:       fmt.Sprint(userID),
			MetadataPurchaseType: string(PurchaseKindPremium),
		},
		CreatedAt: created,
	}
}

// signedEvent builds a Stripe-signed event envelope around object.
func signedEvent(t *testing.T, id, eventType string, object interface{}) ([]byte, string) {
	t.Helper()
	obj, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal object: %v", err)
	}
	body := fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":%s}}`,
		id, eventType, time.Now().Unix(), obj)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func mustEvent(t *testing.T, eventType string, object interface{}) Event {
	t.Helper()
	body, header := signedEvent(t, "evt_"+eventType, eventType, object)
	evt, err := VerifyEvent(body, header, testWebhookSecret)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return evt
}

var errBoom = errors.New("boom")
