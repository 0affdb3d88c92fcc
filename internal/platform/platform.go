// Package platform holds the fixed metadata of the analytics sources a client
// can connect: table layout, metric columns and the analyst instructions
// attached to each of them.
package platform

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPlatform is returned when a platform name is not one of the supported sources.
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform identifies one analytics source.
type Platform string

const (
	GoogleAnalytics Platform = "google_analytics"
	Facebook        Platform = "facebook"
	Instagram       Platform = "instagram"
)

// DateColumn is the date column shared by every platform table.
const DateColumn = "data"

// All lists the supported platforms in a stable order.
var All = []Platform{GoogleAnalytics, Facebook, Instagram}

var metricColumns = map[Platform][]string{
	GoogleAnalytics: {
		"traffic_direct", "search_volume", "impressions",
		"traffic_organic_search", "traffic_organic_social",
	},
	Facebook: {
		"page_impressions", "page_impressions_unique", "page_follows",
	},
	Instagram: {
		"reach", "views", "followers",
	},
}

// Parse validates a platform name. Matching is case-insensitive and ignores
// surrounding whitespace.
func Parse(name string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := metricColumns[p]; !ok {
		return "", fmt.Errorf("%w %q (supported: %s)", ErrUnknownPlatform, name, supportedList())
	}
	return p, nil
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	_, ok := metricColumns[p]
	return ok
}

// String implements fmt.Stringer.
func (p Platform) String() string { return string(p) }

// Table returns the relational table holding the platform rows.
func (p Platform) Table() string { return string(p) }

// Columns returns a copy of the metric columns for the platform, without the date column.
func (p Platform) Columns() []string {
	cols := metricColumns[p]
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

func supportedList() string {
	names := make([]string, len(All))
	for i, p := range All {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
