package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/filmgatebot/filmgate/internal/gateway"
	"go.uber.org/zap"
)

// ErrInvalidReferral is returned when a user opens their own referral link.
var ErrInvalidReferral = errors.New("invalid referral")

// ReferralEngine credits referrers exactly once per successful referral.
// Links are session-scoped: held in memory from first contact until the
// referred user passes verification, then consumed.
type ReferralEngine struct {
	store   Store
	gw      gateway.Gateway
	credits int
	logger  *zap.Logger

	mu    sync.Mutex
	links map[int64]int64
}

// NewReferralEngine creates a ReferralEngine granting the given number of
// search credits per settled referral.
func NewReferralEngine(st Store, gw gateway.Gateway, credits int, logger *zap.Logger) *ReferralEngine {
	return &ReferralEngine{
		store:   st,
		gw:      gw,
		credits: credits,
		logger:  logger.Named("referral"),
		links:   make(map[int64]int64),
	}
}

// Register stores an ephemeral referral link. Self-referrals are rejected;
// users already in the ledger are ignored because referrals only count on
// first contact. An existing link for the same referred user is kept.
func (e *ReferralEngine) Register(referredID, referrerID int64) error {
	if referredID == referrerID {
		return fmt.Errorf("%w: self-referral by %d", ErrInvalidReferral, referredID)
	}

	if _, ok := e.store.GetUser(referredID); ok {
		e.logger.Debug("Ignoring referral for already ledgered user",
			zap.Int64("referredID", referredID))

		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.links[referredID]; !ok {
		e.links[referredID] = referrerID
	}

	return nil
}

// Settle consumes the referred user's link, if any, and credits the
// referrer. The link is removed before crediting so a retried verification
// event can never credit twice. Notification of the referrer is best-effort.
func (e *ReferralEngine) Settle(ctx context.Context, referredID int64) {
	e.mu.Lock()
	referrerID, ok := e.links[referredID]

	if ok {
		delete(e.links, referredID)
	}
	e.mu.Unlock()

	if !ok {
		return
	}

	rec, err := e.store.Credit(referrerID, e.credits, 1)
	if err != nil {
		e.logger.Warn("Failed to credit referrer",
			zap.Int64("referrerID", referrerID),
			zap.Int64("referredID", referredID),
			zap.Error(err))

		return
	}

	e.logger.Info("Settled referral",
		zap.Int64("referrerID", referrerID),
		zap.Int64("referredID", referredID),
		zap.Int("invitedCount", rec.InvitedCount))

	text := fmt.Sprintf("A friend you invited just joined! You earned %d search credits.", e.credits)
	if _, err := e.gw.SendMessage(ctx, referrerID, text, nil); err != nil {
		e.logger.Warn("Failed to notify referrer", zap.Int64("referrerID", referrerID), zap.Error(err))
	}
}

// PendingLinks returns the number of unsettled referral links.
func (e *ReferralEngine) PendingLinks() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.links)
}
