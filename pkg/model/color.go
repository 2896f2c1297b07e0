// ABOUTME: RGB color value used for coders, statement types, entities and regexes
// ABOUTME: Hex encoding matches the "#rrggbb" form stored in the database

package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an opaque RGB triple
type Color struct {
	R, G, B uint8
}

var (
	Black = Color{0, 0, 0}
	White = Color{255, 255, 255}
)

// Hex returns the color as "#rrggbb"
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) String() string {
	return c.Hex()
}

// ParseHex parses "#rrggbb" or "rrggbb"
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("%w: invalid color %q", ErrValidation, s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: invalid color %q", ErrValidation, s)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}
