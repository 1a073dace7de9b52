package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberFormat_Normalize(t *testing.T) {
	f := NumberFormat{Supply: 300, Width: 4}

	t.Run("pads and sorts", func(t *testing.T) {
		got, err := f.Normalize([]string{"0010", "2", " 0003 "})
		require.NoError(t, err)
		assert.Equal(t, []string{"0002", "0003", "0010"}, got)
	})

	cases := map[string][]string{
		"empty":        nil,
		"blank":        {""},
		"letters":      {"00a1"},
		"negative":     {"-1"},
		"zero":         {"0000"},
		"above supply": {"0301"},
		"too wide":     {"00001"},
		"duplicate":    {"1", "0001"},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.Normalize(raw)
			assert.ErrorIs(t, err, ErrInvalidNumbers)
		})
	}
}

func TestNumberFormat_Format(t *testing.T) {
	f := NumberFormat{Supply: 300, Width: 4}
	assert.Equal(t, "0001", f.Format(1))
	assert.Equal(t, "0300", f.Format(300))
}
