package numerator

import (
	"fmt"
	"strings"
	"time"
)

// Template placeholders.
const (
	PlaceholderYear  = "%year%"
	PlaceholderMonth = "%month%"
	PlaceholderDay   = "%day%"
	PlaceholderDate  = "%date%"
	PlaceholderCount = "%count%"
)

// Format renders an invoice number from a tenant prefix template.
// localDate must already be in the tenant's timezone. When the template
// has no %count% placeholder the padded counter is appended.
func Format(cfg Config, template string, series Series, count int64, localDate time.Time) string {
	width := cfg.PadWidth
	if width <= 0 {
		width = DefaultConfig().PadWidth
	}
	padded := fmt.Sprintf("%0*d", width, count)

	r := strings.NewReplacer(
		PlaceholderYear, localDate.Format("2006"),
		PlaceholderMonth, localDate.Format("01"),
		PlaceholderDay, localDate.Format("02"),
		PlaceholderDate, localDate.Format("20060102"),
		PlaceholderCount, padded,
	)
	number := r.Replace(template)
	if !strings.Contains(template, PlaceholderCount) {
		number += padded
	}

	if series == SeriesRectificativa {
		number = cfg.RectificativaMarker + number
	}
	return number
}
