// Package gate decides whether a user may use quota-consuming features:
// channel membership verification, referral crediting, and the quota-gated
// catalog lookup.
package gate

import (
	"github.com/filmgatebot/filmgate/internal/store"
)

// Store is the slice of the ledger store the gate needs. *store.Store
// satisfies it; tests substitute fakes.
type Store interface {
	GetUser(userID int64) (store.UserRecord, bool)
	Credit(userID int64, credits, invited int) (store.UserRecord, error)
	LookupMovie(code string) (string, bool)
	HasJoinRequest(userID, channelID int64) bool
}
