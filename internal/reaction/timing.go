package reaction

import (
	"time"

	"broadcast-service/internal/domain"
)

const (
	// Every third active reaction forces an update.
	updateEvery = 3
	// An update older than this goes out as soon as another reaction lands.
	staleAfter = 5 * time.Minute
)

// ShouldSendUpdate decides whether a recomputed summary is worth
// re-broadcasting, which is what keeps the roster from getting one text
// per reaction. It runs immediately after a mutation, so "a reaction has
// landed since the last update" always holds for the staleness rule.
func ShouldSendUpdate(totalActive int, action domain.ReactionAction, lastUpdate *time.Time, now time.Time) bool {
	if totalActive == 1 {
		return true
	}
	if action == domain.ReactionRemoved {
		return true
	}
	if totalActive > 0 && totalActive%updateEvery == 0 {
		return true
	}
	if lastUpdate != nil && now.Sub(*lastUpdate) > staleAfter {
		return true
	}
	return false
}
