package phone

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare subscriber number", "9171234567", "639171234567"},
		{"local trunk format", "09171234567", "639171234567"},
		{"canonical", "639171234567", "639171234567"},
		{"plus and spaces", "+63 917 123 4567", "639171234567"},
		{"dashes and parens", "(0917) 123-4567", "639171234567"},
		{"mistyped trunk zero after country code", "+63 0917 123 4567", "639171234567"},
		{"trailing junk digits", "6391712345678", "639171234567"},
		{"trunk zero and trailing junk", "63091712345678", "639171234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		raw     string
		cleaned string
	}{
		{"", ""},
		{"abc", ""},
		{"12345", "12345"},
		{"08171234567", "08171234567"},
		{"917123456", "917123456"},
		{"630917123456", "63917123456"},
		{"+1 415 555 0100", "14155550100"},
		{"638171234567", "638171234567"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.ErrorIs(t, err, ErrInvalidFormat)
			assert.Equal(t, tt.cleaned, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, raw := range []string{"9171234567", "09998887777", "+63 905 000 0001", "639171234567"} {
		first, err := Normalize(raw)
		require.NoError(t, err)
		second, err := Normalize(first)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.True(t, IsCanonical(second))
	}
}

func TestDisplay(t *testing.T) {
	got := Display("639171234567")
	assert.True(t, strings.HasPrefix(got, "+63"))
	assert.Equal(t, "+639171234567", strings.ReplaceAll(got, " ", ""))
}
