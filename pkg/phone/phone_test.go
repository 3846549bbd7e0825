package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ten digits", "4255551234", "+14255551234"},
		{"formatted ten digits", "(425) 555-1234", "+14255551234"},
		{"eleven digits with country code", "14255551234", "+14255551234"},
		{"already e164", "+14255551234", "+14255551234"},
		{"international left alone", "+447911123456", "+447911123456"},
		{"whitespace trimmed", "  4255551234 ", "+14255551234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "***1234", Mask("+14255551234"))
	assert.Equal(t, "***", Mask("12"))
	assert.Equal(t, "[empty]", Mask(""))
}
