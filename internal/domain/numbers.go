package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// NumberFormat describes the valid ticket numbers of a raffle: 1..Supply,
// zero-padded to Width digits.
type NumberFormat struct {
	Supply int
	Width  int
}

// Format renders n in canonical form.
func (f NumberFormat) Format(n int) string {
	return fmt.Sprintf("%0*d", f.Width, n)
}

// Normalize validates raw ticket numbers and returns them canonical and sorted.
// Duplicates, non-digits and values outside 1..Supply are rejected.
func (f NumberFormat) Normalize(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no numbers requested", ErrInvalidNumbers)
	}
	if len(raw) > f.Supply {
		return nil, fmt.Errorf("%w: more numbers than supply", ErrInvalidNumbers)
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" || len(r) > f.Width || strings.TrimLeft(r, "0123456789") != "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNumbers, r)
		}
		n, err := strconv.Atoi(r)
		if err != nil || n < 1 || n > f.Supply {
			return nil, fmt.Errorf("%w: %q out of range", ErrInvalidNumbers, r)
		}
		canonical := f.Format(n)
		if _, dup := seen[canonical]; dup {
			return nil, fmt.Errorf("%w: %q repeated", ErrInvalidNumbers, canonical)
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	slices.Sort(out)
	return out, nil
}
