package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// User is an account that can authenticate against the collaboration server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsGuest      bool      `json:"isGuest"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Trip is a shared plan; its id doubles as the collaboration room id.
type Trip struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Destination string    `json:"destination"`
	StartDate   string    `json:"startDate"`
	EndDate     string    `json:"endDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Activity is one scheduled item inside a trip's day plan.
type Activity struct {
	ID        string    `json:"id"`
	TripID    string    `json:"tripId"`
	Title     string    `json:"title"`
	Day       int       `json:"day"`
	StartTime string    `json:"startTime"`
	Location  string    `json:"location"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Expense is a shared cost tracked against a trip.
type Expense struct {
	ID          string    `json:"id"`
	TripID      string    `json:"tripId"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	PaidBy      string    `json:"paidBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserStore is the subset of Store the auth service depends on.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// ResourceStore is the canonical-read surface consumed by "updated"-style
// collaboration handlers: recipients must see post-write state, so handlers
// re-fetch instead of trusting the client payload.
type ResourceStore interface {
	GetTrip(ctx context.Context, id string) (*Trip, error)
	GetActivity(ctx context.Context, id string) (*Activity, error)
	GetExpense(ctx context.Context, id string) (*Expense, error)
}

// Store is the full persistence surface.
type Store interface {
	UserStore
	ResourceStore

	CreateTrip(ctx context.Context, trip *Trip) error
	UpdateTrip(ctx context.Context, trip *Trip) error
	CreateActivity(ctx context.Context, activity *Activity) error
	UpdateActivity(ctx context.Context, activity *Activity) error
	CreateExpense(ctx context.Context, expense *Expense) error
	UpdateExpense(ctx context.Context, expense *Expense) error

	Close() error
}
