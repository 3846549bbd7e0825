package phone

import "strings"

// Normalize cleans a raw phone number into E.164 form for US numbers.
// Ten digits gain a +1 prefix, eleven digits starting with 1 gain a +.
// Anything else is returned trimmed as-is so non-US rosters still work.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	default:
		return raw
	}
}

// Mask hides all but the last four digits for logging.
func Mask(number string) string {
	if number == "" {
		return "[empty]"
	}
	if len(number) < 4 {
		return "***"
	}
	return "***" + number[len(number)-4:]
}
