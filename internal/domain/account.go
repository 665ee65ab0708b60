package domain

import "time"

// DefaultLockoutThreshold is the number of consecutive credential failures that locks an account.
const DefaultLockoutThreshold = 3

// AccountRole enumerates the portal roles an account registers under.
type AccountRole string

const (
	AccountRoleCustomer     AccountRole = "CUSTOMER"
	AccountRoleHotelManager AccountRole = "HOTEL_MANAGER"
	AccountRoleAdmin        AccountRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r AccountRole) Valid() bool {
	switch r {
	case AccountRoleCustomer, AccountRoleHotelManager, AccountRoleAdmin:
		return true
	}
	return false
}

// Account is a principal able to sign in to the portal. It carries the
// failed-attempt counter and lock flag owned by the lockout subsystem.
type Account struct {
	ID               string
	Email            string
	Role             AccountRole
	CredentialSecret string
	FailedAttempts   int
	Locked           bool
	LockedAt         *time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.LockedAt != nil {
		t := *a.LockedAt
		cp.LockedAt = &t
	}
	return &cp
}

// ClearLock resets the lockout fields.
func (a *Account) ClearLock() {
	a.FailedAttempts = 0
	a.Locked = false
	a.LockedAt = nil
}
