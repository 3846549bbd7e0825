package reaction

import (
	"fmt"
	"sort"
	"strings"
)

type emojiCount struct {
	emoji string
	count int
}

func sortedCounts(counts map[string]int) []emojiCount {
	out := make([]emojiCount, 0, len(counts))
	for e, n := range counts {
		out = append(out, emojiCount{emoji: e, count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].emoji < out[j].emoji
	})
	return out
}

// FormatCounts renders grouped counts, count descending then emoji
// lexically, omitting the multiplier for singles: "❤️×3 👍".
func FormatCounts(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, ec := range sortedCounts(counts) {
		if ec.count == 1 {
			parts = append(parts, ec.emoji)
		} else {
			parts = append(parts, fmt.Sprintf("%s×%d", ec.emoji, ec.count))
		}
	}
	return strings.Join(parts, " ")
}

// FormatSummary renders the per-broadcast summary line, empty when no
// reactions are active.
func FormatSummary(counts map[string]int) string {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return ""
	}

	label := "reactions"
	if total == 1 {
		label = "reaction"
	}
	return fmt.Sprintf("%d %s: %s", total, label, FormatCounts(counts))
}
