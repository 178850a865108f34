package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsync/subsync/pkg/subsync"
)

func testRecord(id, userID string) *subsync.SubscriptionRecord {
	return &subsync.SubscriptionRecord{
		ID:                 id,
		UserID:             userID,
		CustomerID:         "cus_1",
		Plan:               subsync.PlanMonthly,
		Status:             subsync.StatusActive,
		CurrentPeriodStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateAndGet(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testRecord("sub_1", "user-1")))

	got, err := store.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, subsync.PlanMonthly, got.Plan)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestGet_NotFound(t *testing.T) {
	store := New()

	_, err := store.Get(context.Background(), "sub_missing")
	assert.ErrorIs(t, err, subsync.ErrSubscriptionNotFound)
}

func TestCreate_InvalidRecord(t *testing.T) {
	store := New()
	ctx := context.Background()

	assert.Error(t, store.Create(ctx, nil))
	assert.Error(t, store.Create(ctx, &subsync.SubscriptionRecord{}))
}

func TestCreate_OverwritesExistingRecord(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testRecord("sub_1", "user-1")))

	issue := true
	msg := "card declined"
	require.NoError(t, store.Update(ctx, "sub_1", subsync.SubscriptionUpdate{
		PaymentIssue:     &issue,
		LastPaymentError: &msg,
	}))

	replacement := testRecord("sub_1", "user-2")
	replacement.Plan = subsync.PlanYearly
	require.NoError(t, store.Create(ctx, replacement))

	got, err := store.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "user-2", got.UserID)
	assert.Equal(t, subsync.PlanYearly, got.Plan)
	// The overwrite resets payment flags along with everything else.
	assert.False(t, got.PaymentIssue)
	assert.Empty(t, got.LastPaymentError)
}

func TestUpdate_MergesOnlySetFields(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testRecord("sub_1", "user-1")))

	status := subsync.StatusCanceled
	issue := true
	msg := "card declined"
	require.NoError(t, store.Update(ctx, "sub_1", subsync.SubscriptionUpdate{
		Status:           &status,
		PaymentIssue:     &issue,
		LastPaymentError: &msg,
	}))

	got, err := store.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subsync.StatusCanceled, got.Status)
	assert.True(t, got.PaymentIssue)
	assert.Equal(t, "card declined", got.LastPaymentError)
	// Unset fields keep their values.
	assert.Equal(t, subsync.PlanMonthly, got.Plan)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), got.CurrentPeriodEnd)
}

func TestUpdate_NotFound(t *testing.T) {
	store := New()

	status := subsync.StatusCanceled
	err := store.Update(context.Background(), "sub_missing", subsync.SubscriptionUpdate{Status: &status})
	assert.ErrorIs(t, err, subsync.ErrSubscriptionNotFound)
}

func TestListByUserAndStatus(t *testing.T) {
	store := New()
	ctx := context.Background()

	active := testRecord("sub_1", "user-1")
	trialing := testRecord("sub_2", "user-1")
	trialing.Status = subsync.StatusTrialing
	canceled := testRecord("sub_3", "user-1")
	canceled.Status = subsync.StatusCanceled
	otherUser := testRecord("sub_4", "user-2")
	for _, rec := range []*subsync.SubscriptionRecord{active, trialing, canceled, otherUser} {
		require.NoError(t, store.Create(ctx, rec))
	}

	got, err := store.ListByUserAndStatus(ctx, "user-1", subsync.EntitlingStatuses(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, rec := range got {
		assert.Equal(t, "user-1", rec.UserID)
		assert.True(t, subsync.IsEntitling(rec.Status))
	}

	got, err = store.ListByUserAndStatus(ctx, "user-1", subsync.EntitlingStatuses(), 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.ListByUserAndStatus(ctx, "user-3", subsync.EntitlingStatuses(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetUser_NotFound(t *testing.T) {
	store := New()

	_, err := store.GetUser(context.Background(), "user-missing")
	assert.ErrorIs(t, err, subsync.ErrUserNotFound)
}

func TestApplyPremium_CreatesUser(t *testing.T) {
	store := New()
	ctx := context.Background()

	plan := subsync.PlanYearly
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.ApplyPremium(ctx, "user-1", subsync.UserPremiumUpdate{
		IsPremium:  true,
		Plan:       &plan,
		Expiry:     &expiry,
		CustomerID: "cus_1",
	}))

	got, err := store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, got.IsPremium)
	require.NotNil(t, got.PremiumPlan)
	assert.Equal(t, subsync.PlanYearly, *got.PremiumPlan)
	require.NotNil(t, got.PremiumExpiry)
	assert.Equal(t, expiry, *got.PremiumExpiry)
	assert.Equal(t, "cus_1", got.StripeCustomerID)
}

func TestApplyPremium_DemotionClearsPlanAndExpiry(t *testing.T) {
	store := New()
	ctx := context.Background()

	plan := subsync.PlanMonthly
	expiry := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.ApplyPremium(ctx, "user-1", subsync.UserPremiumUpdate{
		IsPremium:  true,
		Plan:       &plan,
		Expiry:     &expiry,
		CustomerID: "cus_1",
	}))
	require.NoError(t, store.ApplyPremium(ctx, "user-1", subsync.UserPremiumUpdate{IsPremium: false}))

	got, err := store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.IsPremium)
	assert.Nil(t, got.PremiumPlan)
	assert.Nil(t, got.PremiumExpiry)
	// The customer linkage is never cleared.
	assert.Equal(t, "cus_1", got.StripeCustomerID)
}

func TestApplyPremium_InvalidUserID(t *testing.T) {
	store := New()
	assert.Error(t, store.ApplyPremium(context.Background(), "", subsync.UserPremiumUpdate{}))
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testRecord("sub_1", "user-1")))

	got, err := store.Get(ctx, "sub_1")
	require.NoError(t, err)
	got.Status = "mutated"

	again, err := store.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subsync.StatusActive, again.Status)
}

func TestClear(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testRecord("sub_1", "user-1")))
	require.NoError(t, store.ApplyPremium(ctx, "user-1", subsync.UserPremiumUpdate{IsPremium: true}))

	store.Clear()

	_, err := store.Get(ctx, "sub_1")
	assert.ErrorIs(t, err, subsync.ErrSubscriptionNotFound)
	_, err = store.GetUser(ctx, "user-1")
	assert.ErrorIs(t, err, subsync.ErrUserNotFound)
}
