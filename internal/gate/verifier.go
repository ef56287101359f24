package gate

import (
	"context"
	"sync"

	"github.com/filmgatebot/filmgate/internal/gateway"
	"github.com/filmgatebot/filmgate/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Verifier checks a user's membership across the configured channels.
// A channel is satisfied by live membership or by a recorded join request.
// Gateway errors count as unsatisfied so transient API failures never open
// the gate. A user who passes stays verified for the rest of the session.
type Verifier struct {
	gw       gateway.Gateway
	store    Store
	channels []config.Channel
	limiter  *rate.Limiter
	logger   *zap.Logger

	mu       sync.Mutex
	verified map[int64]struct{}
}

// NewVerifier creates a Verifier. dispatchPerSecond paces membership check
// dispatches to respect gateway rate limits.
func NewVerifier(
	gw gateway.Gateway, st Store, channels []config.Channel,
	dispatchPerSecond float64, logger *zap.Logger,
) *Verifier {
	return &Verifier{
		gw:       gw,
		store:    st,
		channels: channels,
		limiter:  rate.NewLimiter(rate.Limit(dispatchPerSecond), 1),
		logger:   logger.Named("verifier"),
		verified: make(map[int64]struct{}),
	}
}

// IsVerified reports whether the user has passed verification this session.
func (v *Verifier) IsVerified(userID int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, ok := v.verified[userID]
	return ok
}

// CheckAll checks every configured channel concurrently and returns whether
// the user passed along with the channels that remain unsatisfied. On a pass
// the user is marked verified for the session.
func (v *Verifier) CheckAll(ctx context.Context, userID int64) (bool, []config.Channel) {
	satisfied := make([]bool, len(v.channels))
	p := pool.New().WithContext(ctx)

	for i, channel := range v.channels {
		if err := v.limiter.Wait(ctx); err != nil {
			break
		}

		p.Go(func(ctx context.Context) error {
			satisfied[i] = v.checkChannel(ctx, channel, userID)
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		v.logger.Warn("Membership check pool aborted", zap.Error(err))
	}

	var unsatisfied []config.Channel

	for i, ok := range satisfied {
		if !ok {
			unsatisfied = append(unsatisfied, v.channels[i])
		}
	}

	if len(unsatisfied) > 0 {
		return false, unsatisfied
	}

	v.mu.Lock()
	v.verified[userID] = struct{}{}
	v.mu.Unlock()

	v.logger.Info("User passed membership verification", zap.Int64("userID", userID))

	return true, nil
}

// checkChannel decides one channel. A recorded join request satisfies the
// channel without a gateway call; otherwise the live status decides, with
// errors treated as unsatisfied.
func (v *Verifier) checkChannel(ctx context.Context, channel config.Channel, userID int64) bool {
	if v.store.HasJoinRequest(userID, channel.ID) {
		return true
	}

	status, err := v.gw.GetChatMember(ctx, channel.ID, userID)
	if err != nil {
		v.logger.Warn("Membership check failed, treating channel as unsatisfied",
			zap.Int64("channelID", channel.ID),
			zap.Int64("userID", userID),
			zap.Error(err))

		return false
	}

	return status.Satisfies()
}
