package gate

import (
	"errors"
	"regexp"

	"github.com/filmgatebot/filmgate/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrSubscriptionRequired is returned when an unverified user attempts a
	// gated lookup.
	ErrSubscriptionRequired = errors.New("subscription required")

	// ErrInvalidFormat is returned when a lookup code is not numeric.
	ErrInvalidFormat = errors.New("invalid code format")
)

var codePattern = regexp.MustCompile(`^[0-9]+$`)

// Resolver performs quota-gated catalog lookups: the user must be verified,
// the code must be numeric, and a credit is debited only on a hit. A miss
// never consumes quota.
type Resolver struct {
	store    Store
	verifier *Verifier
	logger   *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(st Store, verifier *Verifier, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:    st,
		verifier: verifier,
		logger:   logger.Named("resolver"),
	}
}

// ResolveCode resolves a movie code to its title for the given user,
// debiting one search credit on success. Returns ErrSubscriptionRequired,
// ErrInvalidFormat, store.ErrInsufficientCredits, or store.ErrMovieNotFound
// as distinct outcomes for the caller to render.
func (r *Resolver) ResolveCode(userID int64, code string) (string, error) {
	if !r.verifier.IsVerified(userID) {
		return "", ErrSubscriptionRequired
	}

	if !codePattern.MatchString(code) {
		return "", ErrInvalidFormat
	}

	rec, ok := r.store.GetUser(userID)
	if !ok {
		return "", store.ErrUnknownUser
	}

	if rec.SearchCredits <= 0 {
		return "", store.ErrInsufficientCredits
	}

	title, ok := r.store.LookupMovie(code)
	if !ok {
		return "", store.ErrMovieNotFound
	}

	rec, err := r.store.Credit(userID, -1, 0)
	if err != nil {
		return "", err
	}

	r.logger.Debug("Resolved movie code",
		zap.Int64("userID", userID),
		zap.String("code", code),
		zap.Int("creditsLeft", rec.SearchCredits))

	return title, nil
}
