package reaction

import (
	"regexp"
	"strings"
)

// Detection is the parsed form of an inbound reaction text. A nil
// Detection means the text is an ordinary broadcast.
type Detection struct {
	Emoji          string
	TargetFragment string
	RawPattern     string
}

const maxFragmentRunes = 100

// quoteClass accepts straight and curly double quotes, which is what
// phones actually send.
const quoteClass = "[\"“”]"

var verbPatterns = []struct {
	verb  string
	emoji string
	re    *regexp.Regexp
}{
	{"Loved", "❤️", quotedPattern("Loved")},
	{"Liked", "\U0001F44D", quotedPattern("Liked")},
	{"Disliked", "\U0001F44E", quotedPattern("Disliked")},
	{"Laughed at", "\U0001F602", quotedPattern("Laughed at")},
	{"Emphasized", "‼️", quotedPattern("Emphasized")},
	{"Questioned", "❓", quotedPattern("Questioned")},
}

var (
	reactedToRe = regexp.MustCompile(`(?s)^Reacted\s+(\S+)\s+to\s+` + quoteClass + `(.+)` + quoteClass + `$`)
	emojiToRe   = regexp.MustCompile(`(?s)^(\S+)\s+to\s+` + quoteClass + `(.+)` + quoteClass + `$`)
)

func quotedPattern(verb string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)^` + verb + `\s+` + quoteClass + `(.+)` + quoteClass + `$`)
}

// Detect classifies trimmed inbound text. Forms are checked in order and
// the first match wins:
//
//  1. <Verb> "quoted text" with the fixed verb-to-emoji mapping
//  2. Reacted <emoji> to "quoted text"
//  3. a message that is nothing but emoji
//  4. <emoji> to "quoted text"
//
// No match means the caller must treat the text as a new broadcast.
func Detect(text string) *Detection {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	for _, vp := range verbPatterns {
		if m := vp.re.FindStringSubmatch(text); m != nil {
			return &Detection{
				Emoji:          vp.emoji,
				TargetFragment: truncateFragment(m[1]),
				RawPattern:     vp.verb,
			}
		}
	}

	if m := reactedToRe.FindStringSubmatch(text); m != nil && isEmojiToken(m[1]) {
		return &Detection{
			Emoji:          m[1],
			TargetFragment: truncateFragment(m[2]),
			RawPattern:     "Reacted " + m[1] + " to",
		}
	}

	if isEmojiOnly(text) {
		return &Detection{
			Emoji:      firstEmojiCluster(strings.ReplaceAll(text, " ", "")),
			RawPattern: text,
		}
	}

	if m := emojiToRe.FindStringSubmatch(text); m != nil && isEmojiToken(m[1]) {
		return &Detection{
			Emoji:          m[1],
			TargetFragment: truncateFragment(m[2]),
			RawPattern:     m[1] + " to",
		}
	}

	return nil
}

func truncateFragment(s string) string {
	runes := []rune(s)
	if len(runes) > maxFragmentRunes {
		runes = runes[:maxFragmentRunes]
	}
	return string(runes)
}

const (
	zwj    rune = 0x200D // zero-width joiner
	vs16   rune = 0xFE0F // variation selector-16
	keycap rune = 0x20E3
)

func isEmojiBase(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F5FF, // symbols, pictographs, skin tones
		r >= 0x1F600 && r <= 0x1F64F, // emoticons
		r >= 0x1F680 && r <= 0x1F6FF, // transport
		r >= 0x1F900 && r <= 0x1F9FF, // supplemental symbols
		r >= 0x1FA70 && r <= 0x1FAFF, // extended-A
		r >= 0x2600 && r <= 0x27BF, // misc symbols, dingbats
		r >= 0x2B00 && r <= 0x2BFF, // arrows, stars
		r >= 0x1F1E6 && r <= 0x1F1FF, // regional indicators
		r == 0x203C, r == 0x2049:
		return true
	}
	return false
}

func isEmojiModifier(r rune) bool {
	return r == vs16 || r == keycap || (r >= 0x1F3FB && r <= 0x1F3FF)
}

// isEmojiToken reports whether a whitespace-free token is an emoji
// sequence, e.g. the literal emoji in "Reacted 😂 to ...".
func isEmojiToken(token string) bool {
	if token == "" {
		return false
	}
	hasBase := false
	for _, r := range token {
		switch {
		case isEmojiBase(r):
			hasBase = true
		case isEmojiModifier(r) || r == zwj:
		default:
			return false
		}
	}
	return hasBase
}

func isEmojiOnly(text string) bool {
	hasBase := false
	for _, r := range text {
		switch {
		case isEmojiBase(r):
			hasBase = true
		case isEmojiModifier(r) || r == zwj || r == ' ':
		default:
			return false
		}
	}
	return hasBase
}

// firstEmojiCluster returns the leading emoji with its modifiers and any
// ZWJ continuation, so "❤️‍🔥🎉" yields "❤️‍🔥".
func firstEmojiCluster(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}

	cluster := []rune{runes[0]}
	i := 1
	for i < len(runes) {
		r := runes[i]
		switch {
		case isEmojiModifier(r):
			cluster = append(cluster, r)
			i++
		case r == zwj:
			cluster = append(cluster, r)
			i++
			if i < len(runes) {
				cluster = append(cluster, runes[i])
				i++
			}
		default:
			return string(cluster)
		}
	}
	return string(cluster)
}
