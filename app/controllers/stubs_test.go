package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayLedger/app/models"
	"github.com/ManuelReschke/PayLedger/internal/pkg/billing"
	"github.com/ManuelReschke/PayLedger/internal/pkg/usercontext"
)

type stubPlans struct {
	plans     map[uint]*models.Plan
	err       error
	lastSpec  billing.PlanSpec
	lastPatch billing.PlanPatch
}

func (s *stubPlans) CreatePlan(_ context.Context, spec billing.PlanSpec) (*models.Plan, error) {
	s.lastSpec = spec
	if s.err != nil {
		return nil, s.err
	}
	p := &models.Plan{ID: uint(len(s.plans) + 1), Name: spec.Name, Amount: spec.Amount}
	s.plans[p.ID] = p
	return p, nil
}

func (s *stubPlans) UpdatePlan(_ context.Context, id uint, patch billing.PlanPatch) (*models.Plan, error) {
	s.lastPatch = patch
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.plans[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	return p, nil
}

func (s *stubPlans) DeletePlan(_ context.Context, id uint) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.plans[id]; !ok {
		return billing.ErrNotFound
	}
	delete(s.plans, id)
	return nil
}

func (s *stubPlans) ListPlans(context.Context) ([]models.Plan, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubPlans) GetPlan(_ context.Context, id uint) (*models.Plan, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.plans[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return p, nil
}

type stubLedger struct {
	subs      map[uint]*models.Subscription
	err       error
	purchases [][2]uint
}

func (s *stubLedger) StartPurchaseWithRetry(_ context.Context, userID, planID uint) (*billing.PurchaseResult, error) {
	s.purchases = append(s.purchases, [2]uint{userID, planID})
	if s.err != nil {
		return nil, s.err
	}
	sub := &models.Subscription{ID: 10, UserID: userID, PlanID: planID, StripePaymentID: "pi_1", PaymentStatus: models.PaymentStatusPending}
	return &billing.PurchaseResult{Subscription: sub, ClientSecret: "pi_1_secret", PaymentIntentID: "pi_1", PlanType: billing.PlanTypeSubscription}, nil
}

func (s *stubLedger) Get(_ context.Context, userID uint) (*models.Subscription, error) {
	for _, sub := range s.subs {
		if sub.UserID == userID {
			return sub, nil
		}
	}
	return nil, billing.ErrNotFound
}

func (s *stubLedger) GetByID(_ context.Context, id uint) (*models.Subscription, error) {
	if sub, ok := s.subs[id]; ok {
		return sub, nil
	}
	return nil, billing.ErrNotFound
}

func (s *stubLedger) ListAll(context.Context) ([]models.Subscription, error) {
	out := make([]models.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, *sub)
	}
	return out, nil
}

func (s *stubLedger) AdminUpdate(_ context.Context, id uint, patch billing.SubscriptionPatch) (*models.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	sub, ok := s.subs[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	if patch.Description != nil {
		sub.Description = *patch.Description
	}
	return sub, nil
}

func (s *stubLedger) Delete(_ context.Context, id uint) error {
	if _, ok := s.subs[id]; !ok {
		return billing.ErrNotFound
	}
	delete(s.subs, id)
	return nil
}

type stubUsers struct {
	users     map[uint]*models.User
	createErr error
}

func (s *stubUsers) Create(user *models.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	user.ID = uint(len(s.users) + 1)
	s.users[user.ID] = user
	return nil
}

func (s *stubUsers) GetByID(id uint) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUsers) List(offset, limit int) ([]models.User, error) {
	out := []models.User{}
	for id := uint(1); id <= uint(len(s.users)); id++ {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	if offset >= len(out) {
		return []models.User{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubUsers) Count() (int64, error) {
	return int64(len(s.users)), nil
}

// asUser installs a fixed user context in place of the identity middleware.
func asUser(uc usercontext.UserContext) fiber.Handler {
	return func(c *fiber.Ctx) error {
		usercontext.SetUserContext(c, uc)
		return c.Next()
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}
