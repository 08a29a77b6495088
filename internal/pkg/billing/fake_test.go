package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PayLedger/app/models"
)

// fakeRepo is an in-memory Repository and UserDirectory. It enforces the same unique
// keys as the database schema.
type fakeRepo struct {
	mu     sync.Mutex
	plans  map[uint]models.Plan
	subs   map[uint]models.Subscription
	users  map[uint]models.User
	events map[string]models.BillingWebhookEvent

	nextID uint
	tick   time.Time

	// beforeCreateSubscription runs (unlocked) before each insert.
	beforeCreateSubscription func(sub *models.Subscription)
	// afterFindPending runs (unlocked) after a pending row was read.
	afterFindPending func()
	markPaidErr      error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		plans:  map[uint]models.Plan{},
		subs:   map[uint]models.Subscription{},
		users:  map[uint]models.User{},
		events: map[string]models.BillingWebhookEvent{},
		tick:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeRepo) id() uint {
	r.nextID++
	return r.nextID
}

func (r *fakeRepo) stamp() time.Time {
	r.tick = r.tick.Add(time.Second)
	return r.tick
}

func (r *fakeRepo) addUser(name string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := models.User{ID: r.id(), Name: name, Email: name + "@example.com", Role: models.ROLE_USER, Status: models.STATUS_ACTIVE}
	r.users[u.ID] = u
	return &u
}

func (r *fakeRepo) addPlan(p models.Plan) *models.Plan {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	if p.IntervalCount == 0 {
		p.IntervalCount = 1
	}
	if p.Currency == "" {
		p.Currency = "usd"
	}
	r.plans[p.ID] = p
	return &p
}

func (r *fakeRepo) user(id uint) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

func (r *fakeRepo) sub(id uint) models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id]
}

func (r *fakeRepo) pendingCount(userID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.subs {
		if s.UserID == userID && s.PaymentStatus == models.PaymentStatusPending {
			n++
		}
	}
	return n
}

func (r *fakeRepo) GetByID(id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *fakeRepo) CreatePlan(_ context.Context, plan *models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan.ID = r.id()
	plan.CreatedAt = r.stamp()
	r.plans[plan.ID] = *plan
	return nil
}

func (r *fakeRepo) GetPlan(_ context.Context, id uint) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (r *fakeRepo) ListPlans(_ context.Context) ([]models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Plan, 0, len(r.plans))
	for _, p := range r.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeRepo) SavePlan(_ context.Context, plan *models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[plan.ID] = *plan
	return nil
}

func (r *fakeRepo) DeletePlan(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[id]; !ok {
		return fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	delete(r.plans, id)
	return nil
}

func (r *fakeRepo) FindPendingSubscription(_ context.Context, userID uint) (*models.Subscription, error) {
	sub, err := r.findPending(userID)
	if err == nil && r.afterFindPending != nil {
		r.afterFindPending()
	}
	return sub, err
}

func (r *fakeRepo) findPending(userID uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.UserID == userID && s.PaymentStatus == models.PaymentStatusPending {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("pending subscription: %w", ErrNotFound)
}

// checkUnique must be called with mu held.
func (r *fakeRepo) checkUnique(sub *models.Subscription) error {
	for _, s := range r.subs {
		if s.ID == sub.ID {
			continue
		}
		if s.StripePaymentID == sub.StripePaymentID {
			return fmt.Errorf("subscription: %w", ErrConflict)
		}
		if s.PendingUserID != nil && sub.PendingUserID != nil && *s.PendingUserID == *sub.PendingUserID {
			return fmt.Errorf("subscription: %w", ErrConflict)
		}
	}
	return nil
}

func (r *fakeRepo) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	if r.beforeCreateSubscription != nil {
		r.beforeCreateSubscription(sub)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.SyncPendingOwner()
	if err := r.checkUnique(sub); err != nil {
		return err
	}
	sub.ID = r.id()
	sub.CreatedAt = r.stamp()
	r.subs[sub.ID] = *sub
	return nil
}

func (r *fakeRepo) SaveSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.SyncPendingOwner()
	if err := r.checkUnique(sub); err != nil {
		return err
	}
	r.subs[sub.ID] = *sub
	return nil
}

func (r *fakeRepo) UpdatePendingSubscription(_ context.Context, sub *models.Subscription) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.subs[sub.ID]
	if !ok || cur.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	cur.PlanID = sub.PlanID
	cur.StartDate = sub.StartDate
	cur.EndDate = sub.EndDate
	cur.Amount = sub.Amount
	cur.StripePaymentID = sub.StripePaymentID
	cur.Description = sub.Description
	r.subs[sub.ID] = cur
	return true, nil
}

// expand must be called with mu held.
func (r *fakeRepo) expand(s models.Subscription) models.Subscription {
	if u, ok := r.users[s.UserID]; ok {
		s.User = &u
	}
	if p, ok := r.plans[s.PlanID]; ok {
		s.Plan = &p
	}
	return s
}

func (r *fakeRepo) GetSubscription(_ context.Context, id uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	s = r.expand(s)
	return &s, nil
}

func (r *fakeRepo) sorted() []models.Subscription {
	out := make([]models.Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, r.expand(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *fakeRepo) GetLatestSubscription(_ context.Context, userID uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sorted() {
		if s.UserID == userID {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("subscription of user %d: %w", userID, ErrNotFound)
}

func (r *fakeRepo) GetSubscriptionByPaymentID(_ context.Context, paymentID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.StripePaymentID == paymentID {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("subscription for payment %s: %w", paymentID, ErrNotFound)
}

func (r *fakeRepo) ListSubscriptions(_ context.Context) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(), nil
}

func (r *fakeRepo) DeleteSubscription(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	delete(r.subs, id)
	return nil
}

func (r *fakeRepo) MarkPaid(_ context.Context, subID, userID uint, start time.Time, end *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markPaidErr != nil {
		return r.markPaidErr
	}
	s, ok := r.subs[subID]
	if !ok {
		return fmt.Errorf("subscription %d: %w", subID, ErrNotFound)
	}
	apply, err := checkTransition(s.PaymentStatus, models.PaymentStatusPaid)
	if err != nil || !apply {
		return err
	}
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	s.PaymentStatus = models.PaymentStatusPaid
	s.StartDate = start
	s.EndDate = end
	s.SyncPendingOwner()
	r.subs[subID] = s

	u.IsSubscribed = true
	u.PlanExpiration = end
	r.users[userID] = u
	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, subID uint, end time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[subID]
	if !ok {
		return fmt.Errorf("subscription %d: %w", subID, ErrNotFound)
	}
	apply, err := checkTransition(s.PaymentStatus, models.PaymentStatusFailed)
	if err != nil || !apply {
		return err
	}
	s.PaymentStatus = models.PaymentStatusFailed
	s.EndDate = &end
	s.SyncPendingOwner()
	r.subs[subID] = s
	return nil
}

func (r *fakeRepo) CompletePendingLifetime(_ context.Context, userID, planID uint, paymentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return 0, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	var moved int64
	for id, s := range r.subs {
		if s.UserID != userID || s.PlanID != planID || s.PaymentStatus != models.PaymentStatusPending {
			continue
		}
		s.PaymentStatus = models.PaymentStatusPaid
		s.StripePaymentID = paymentID
		s.EndDate = nil
		s.SyncPendingOwner()
		r.subs[id] = s
		moved++
	}
	u.IsSubscribed = true
	u.PlanExpiration = nil
	r.users[userID] = u
	return moved, nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		return false, &stored, nil
	}
	event.ID = r.id()
	r.events[key] = *event
	stored := *event
	return true, &stored, nil
}

func (r *fakeRepo) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.events {
		if e.ID != id {
			continue
		}
		now := time.Now()
		e.ProcessedAt = &now
		e.ProcessingError = processingError
		e.Attempts++
		r.events[key] = e
		return nil
	}
	return fmt.Errorf("webhook event %d: %w", id, ErrNotFound)
}

func (r *fakeRepo) event(provider, eventID string) (models.BillingWebhookEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[provider+"/"+eventID]
	return e, ok
}

// fakeProcessor records calls and lets tests inject failures per operation.
type fakeProcessor struct {
	mu sync.Mutex

	products map[string]bool
	prices   map[string]PriceInput
	active   map[string]bool
	intents  []PaymentIntentInput
	seq      int

	CreateProductErr     error
	CreatePriceErr       error
	DeactivatePriceErr   error
	DeactivateProductErr error
	CreateIntentErr      error

	ParsedEvent *PaymentEvent
	ParseErr    error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		products: map[string]bool{},
		prices:   map[string]PriceInput{},
		active:   map[string]bool{},
	}
}

func (p *fakeProcessor) next(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%d", prefix, p.seq)
}

func (p *fakeProcessor) CreateProduct(_ context.Context, in ProductInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateProductErr != nil {
		return "", p.CreateProductErr
	}
	id := p.next("prod")
	p.products[id] = in.Active
	return id, nil
}

func (p *fakeProcessor) GetProduct(_ context.Context, productID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.products[productID]; !ok {
		return fmt.Errorf("%w: no such product %s", ErrResourceMissing, productID)
	}
	return nil
}

func (p *fakeProcessor) CreatePrice(_ context.Context, in PriceInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreatePriceErr != nil {
		return "", p.CreatePriceErr
	}
	id := p.next("price")
	p.prices[id] = in
	p.active[id] = true
	return id, nil
}

func (p *fakeProcessor) DeactivatePrice(_ context.Context, priceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DeactivatePriceErr != nil {
		return p.DeactivatePriceErr
	}
	if _, ok := p.prices[priceID]; !ok {
		return fmt.Errorf("%w: no such price %s", ErrResourceMissing, priceID)
	}
	p.active[priceID] = false
	return nil
}

func (p *fakeProcessor) DeactivateProduct(_ context.Context, productID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DeactivateProductErr != nil {
		return p.DeactivateProductErr
	}
	if _, ok := p.products[productID]; !ok {
		return fmt.Errorf("%w: no such product %s", ErrResourceMissing, productID)
	}
	p.products[productID] = false
	return nil
}

func (p *fakeProcessor) CreatePaymentIntent(_ context.Context, in PaymentIntentInput) (*PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateIntentErr != nil {
		return nil, p.CreateIntentErr
	}
	p.intents = append(p.intents, in)
	id := p.next("pi")
	return &PaymentIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (p *fakeProcessor) ParseEvent(_ []byte, _ string) (*PaymentEvent, error) {
	return p.ParsedEvent, p.ParseErr
}

func (p *fakeProcessor) dropProduct(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.products, id)
}

func (p *fakeProcessor) dropPrice(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.prices, id)
}

func (p *fakeProcessor) lastIntent() PaymentIntentInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intents[len(p.intents)-1]
}

// fakeLocker is an in-process Locker.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
	seq  int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.seq++
	token := fmt.Sprintf("t%d", l.seq)
	l.held[key] = token
	return token, true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
