package reaction

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"broadcast-service/internal/domain"
)

const (
	defaultLookback = 24 * time.Hour
	candidateLimit  = 10
	matchThreshold  = 0.3
	substringBonus  = 0.5
)

// broadcastSource is the slice of the ledger the resolver needs.
type broadcastSource interface {
	RecentBroadcasts(ctx context.Context, since time.Time, excludeSender string, limit int) ([]*domain.Broadcast, error)
}

// Resolver finds which recent broadcast a reaction fragment points at.
type Resolver struct {
	source   broadcastSource
	lookback time.Duration
	logger   *zap.Logger
}

func NewResolver(source broadcastSource, logger *zap.Logger) *Resolver {
	return &Resolver{
		source:   source,
		lookback: defaultLookback,
		logger:   logger,
	}
}

// Resolve returns the best-matching broadcast for the fragment, or nil
// only when zero candidates existed in the lookback window. When no
// candidate clears the score threshold the most recent one is returned
// anyway: a reaction is attached to something rather than dropped.
func (r *Resolver) Resolve(ctx context.Context, fragment, reactorAddress string) (*domain.Broadcast, error) {
	since := time.Now().Add(-r.lookback)

	// Ordered newest first. Broadcasts authored by the reactor are
	// excluded: you do not react to your own message via this path.
	candidates, err := r.source.RecentBroadcasts(ctx, since, reactorAddress, candidateLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		// Bare-emoji reaction: assume the most recent message.
		return candidates[0], nil
	}

	var best *domain.Broadcast
	bestScore := 0.0
	for _, c := range candidates {
		// Strict > keeps the newer candidate on score ties.
		if s := score(fragment, c.Body); s > bestScore {
			best, bestScore = c, s
		}
	}

	if best != nil && bestScore > matchThreshold {
		r.logger.Debug("reaction target resolved",
			zap.String("broadcast_id", best.ID),
			zap.Float64("score", bestScore))
		return best, nil
	}

	r.logger.Debug("reaction target ambiguous, using most recent",
		zap.String("broadcast_id", candidates[0].ID),
		zap.Float64("best_score", bestScore))
	return candidates[0], nil
}

// score is word overlap normalized by the longer side, plus a bonus when
// the fragment appears verbatim inside the message.
func score(fragment, body string) float64 {
	fragLower := strings.ToLower(fragment)
	bodyLower := strings.ToLower(body)

	fragWords := strings.Fields(fragLower)
	bodyWords := strings.Fields(bodyLower)
	if len(fragWords) == 0 || len(bodyWords) == 0 {
		return 0
	}

	fragSet := make(map[string]struct{}, len(fragWords))
	for _, w := range fragWords {
		fragSet[w] = struct{}{}
	}

	common := 0
	seen := make(map[string]struct{}, len(bodyWords))
	for _, w := range bodyWords {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := fragSet[w]; ok {
			common++
		}
	}

	denom := len(fragWords)
	if len(bodyWords) > denom {
		denom = len(bodyWords)
	}

	s := float64(common) / float64(denom)
	if strings.Contains(bodyLower, fragLower) {
		s += substringBonus
	}
	return s
}
