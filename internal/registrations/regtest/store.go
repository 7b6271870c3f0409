// Package regtest provides an in-memory registration store for tests.
package regtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/internal/registrations"
)

// Store is an in-memory registration store with the same state rules as the
// Postgres repository. Methods hand out copies.
type Store struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*models.Registration
	fails map[string]error
	// Writes counts successful mutations per method.
	Writes map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		rows:   map[uuid.UUID]*models.Registration{},
		fails:  map[string]error{},
		Writes: map[string]int{},
	}
}

// FailNext makes the next call of method return err.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[method] = err
}

func (s *Store) fail(method string) error {
	err := s.fails[method]
	delete(s.fails, method)
	return err
}

// Put stores reg as-is, filling ID and timestamps when empty.
func (s *Store) Put(reg *models.Registration) *models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	if reg.PaymentStatus == "" {
		reg.PaymentStatus = models.PaymentStatusPending
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now()
		reg.UpdatedAt = reg.CreatedAt
	}
	cp := *reg
	s.rows[reg.ID] = &cp
	return reg
}

// All returns every stored registration.
func (s *Store) All() []*models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Registration, 0, len(s.rows))
	for _, r := range s.rows {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns a copy of a registration or nil.
func (s *Store) Get(id uuid.UUID) *models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		cp := *r
		return &cp
	}
	return nil
}

func (s *Store) find(match func(*models.Registration) bool) (*models.Registration, error) {
	var found *models.Registration
	for _, r := range s.rows {
		if match(r) && (found == nil || r.CreatedAt.After(found.CreatedAt)) {
			found = r
		}
	}
	if found == nil {
		return nil, registrations.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *Store) Create(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Create"); err != nil {
		return err
	}
	reg.ID = uuid.New()
	reg.PaymentStatus = models.PaymentStatusPending
	reg.CreatedAt = time.Now()
	reg.UpdatedAt = reg.CreatedAt
	cp := *reg
	s.rows[reg.ID] = &cp
	s.Writes["Create"]++
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetByID"); err != nil {
		return nil, err
	}
	return s.find(func(r *models.Registration) bool { return r.ID == id })
}

func (s *Store) GetByCheckoutSessionID(_ context.Context, sessionID string) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetByCheckoutSessionID"); err != nil {
		return nil, err
	}
	return s.find(func(r *models.Registration) bool {
		return r.CheckoutSessionID != nil && *r.CheckoutSessionID == sessionID
	})
}

func (s *Store) GetByPaymentIntentID(_ context.Context, paymentIntentID string) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetByPaymentIntentID"); err != nil {
		return nil, err
	}
	return s.find(func(r *models.Registration) bool {
		return r.PaymentIntentID != nil && *r.PaymentIntentID == paymentIntentID
	})
}

func (s *Store) GetByEventAndEmail(_ context.Context, eventID uuid.UUID, email string) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetByEventAndEmail"); err != nil {
		return nil, err
	}
	return s.find(func(r *models.Registration) bool {
		return r.EventID == eventID && strings.EqualFold(r.Email, email)
	})
}

func (s *Store) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListByUser"); err != nil {
		return nil, err
	}
	var out []*models.Registration
	for _, r := range s.rows {
		if r.AuthUserID != nil && *r.AuthUserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetCheckoutSession(_ context.Context, id uuid.UUID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetCheckoutSession"); err != nil {
		return err
	}
	r, ok := s.rows[id]
	if !ok {
		return registrations.ErrNotFound
	}
	r.CheckoutSessionID = &sessionID
	r.UpdatedAt = time.Now()
	s.Writes["SetCheckoutSession"]++
	return nil
}

func (s *Store) MarkPaid(_ context.Context, id uuid.UUID, u registrations.PaidUpdate) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkPaid"); err != nil {
		return nil, err
	}
	r, ok := s.rows[id]
	if !ok {
		return nil, registrations.ErrNotFound
	}
	if err := registrations.Transition(r.PaymentStatus, models.PaymentStatusPaid); err != nil {
		return nil, err
	}
	if u.CheckoutSessionID != "" {
		sid := u.CheckoutSessionID
		r.CheckoutSessionID = &sid
	}
	pi, amount, paidAt := u.PaymentIntentID, u.AmountPaid, u.PaidAt
	r.PaymentIntentID = &pi
	r.AmountPaid = &amount
	r.PaidAt = &paidAt
	r.PaymentStatus = models.PaymentStatusPaid
	r.PaymentError = nil
	r.UpdatedAt = time.Now()
	s.Writes["MarkPaid"]++
	cp := *r
	return &cp, nil
}

func (s *Store) MarkFailed(_ context.Context, id uuid.UUID, u registrations.FailedUpdate) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkFailed"); err != nil {
		return nil, err
	}
	r, ok := s.rows[id]
	if !ok {
		return nil, registrations.ErrNotFound
	}
	if err := registrations.Transition(r.PaymentStatus, models.PaymentStatusFailed); err != nil {
		return nil, err
	}
	if u.PaymentIntentID != "" {
		pi := u.PaymentIntentID
		r.PaymentIntentID = &pi
	}
	msg := u.Error
	r.PaymentError = &msg
	r.PaymentStatus = models.PaymentStatusFailed
	r.UpdatedAt = time.Now()
	s.Writes["MarkFailed"]++
	cp := *r
	return &cp, nil
}

func (s *Store) InsertPaid(_ context.Context, reg *models.Registration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertPaid"); err != nil {
		return false, err
	}
	for _, r := range s.rows {
		if r.CheckoutSessionID != nil && reg.CheckoutSessionID != nil && *r.CheckoutSessionID == *reg.CheckoutSessionID {
			*reg = *r
			return false, nil
		}
	}
	reg.ID = uuid.New()
	reg.PaymentStatus = models.PaymentStatusPaid
	reg.CreatedAt = time.Now()
	reg.UpdatedAt = reg.CreatedAt
	cp := *reg
	s.rows[reg.ID] = &cp
	s.Writes["InsertPaid"]++
	return true, nil
}

func (s *Store) SetEmailSent(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetEmailSent"); err != nil {
		return false, err
	}
	r, ok := s.rows[id]
	if !ok {
		return false, registrations.ErrNotFound
	}
	if r.EmailSent {
		return false, nil
	}
	r.EmailSent = true
	s.Writes["SetEmailSent"]++
	return true, nil
}

func (s *Store) LinkByEmail(_ context.Context, userID uuid.UUID, email string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("LinkByEmail"); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range s.rows {
		if r.AuthUserID == nil && strings.EqualFold(r.Email, email) {
			uid := userID
			r.AuthUserID = &uid
			n++
		}
	}
	return n, nil
}
