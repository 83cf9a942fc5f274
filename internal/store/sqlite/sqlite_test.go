package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/tripsync-app/tripsync-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestUserRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	u := &store.User{ID: uuid.NewString(), Username: "alice", PasswordHash: "hash"}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	byName, err := st.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if byName.ID != u.ID || byName.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", byName)
	}

	byID, err := st.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.Username != "alice" {
		t.Fatalf("unexpected user: %+v", byID)
	}

	if _, err := st.GetUserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing user error = %v, want ErrNotFound", err)
	}

	dup := &store.User{ID: uuid.NewString(), Username: "alice"}
	if err := st.CreateUser(ctx, dup); err == nil {
		t.Fatal("duplicate username accepted")
	}
}

func TestTripAndActivityRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	trip := &store.Trip{ID: uuid.NewString(), OwnerID: "u-1", Title: "Lisbon", Destination: "Lisbon"}
	if err := st.CreateTrip(ctx, trip); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	activity := &store.Activity{ID: uuid.NewString(), TripID: trip.ID, Title: "Tram 28", Day: 1, SortOrder: 2}
	if err := st.CreateActivity(ctx, activity); err != nil {
		t.Fatalf("create activity: %v", err)
	}

	activity.Title = "Tram 28 ride"
	activity.Day = 2
	if err := st.UpdateActivity(ctx, activity); err != nil {
		t.Fatalf("update activity: %v", err)
	}

	got, err := st.GetActivity(ctx, activity.ID)
	if err != nil {
		t.Fatalf("get activity: %v", err)
	}
	if got.Title != "Tram 28 ride" || got.Day != 2 || got.TripID != trip.ID {
		t.Fatalf("unexpected activity: %+v", got)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatalf("updated_at %v before created_at %v", got.UpdatedAt, got.CreatedAt)
	}

	trip.Title = "Lisbon long weekend"
	if err := st.UpdateTrip(ctx, trip); err != nil {
		t.Fatalf("update trip: %v", err)
	}
	gotTrip, err := st.GetTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if gotTrip.Title != "Lisbon long weekend" {
		t.Fatalf("unexpected trip: %+v", gotTrip)
	}
}

func TestExpenseRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	trip := &store.Trip{ID: uuid.NewString(), OwnerID: "u-1", Title: "Lisbon"}
	if err := st.CreateTrip(ctx, trip); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	exp := &store.Expense{ID: uuid.NewString(), TripID: trip.ID, Description: "lunch", AmountCents: 2450, Currency: "EUR", PaidBy: "u-1"}
	if err := st.CreateExpense(ctx, exp); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	exp.AmountCents = 2600
	if err := st.UpdateExpense(ctx, exp); err != nil {
		t.Fatalf("update expense: %v", err)
	}

	got, err := st.GetExpense(ctx, exp.ID)
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if got.AmountCents != 2600 || got.Currency != "EUR" {
		t.Fatalf("unexpected expense: %+v", got)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.UpdateActivity(ctx, &store.Activity{ID: "missing"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update missing activity error = %v, want ErrNotFound", err)
	}
	if _, err := st.GetTrip(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get missing trip error = %v, want ErrNotFound", err)
	}
}
