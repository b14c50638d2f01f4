package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Category is the 16-bit service class a sensor advertises.
type Category uint16

const (
	CategoryTemperature     Category = 0x1809
	CategoryPulseOximeter   Category = 0x1822
	CategoryActivityMonitor Category = 0x183E
)

// DefaultCategories is the slot layout of the sensor registry.
var DefaultCategories = []Category{
	CategoryTemperature,
	CategoryPulseOximeter,
	CategoryActivityMonitor,
}

var categoryNames = map[Category]string{
	CategoryTemperature:     "temperature",
	CategoryPulseOximeter:   "pulseox",
	CategoryActivityMonitor: "activity",
}

// String returns the well-known name, or the hex id for unnamed categories.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", uint16(c))
}

// ParseCategory accepts a well-known name ("temperature", "pulseox",
// "activity") or a 16-bit id in hex, with or without the 0x prefix.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range categoryNames {
		if s == name {
			return c, nil
		}
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid category %q", s)
	}
	return Category(v), nil
}
