// Package numerator provides domain contracts for invoice numbering.
package numerator

import "fmt"

// Series is one of the independent per-tenant numbering sequences.
type Series string

const (
	SeriesTicket        Series = "ticket"
	SeriesFactura       Series = "factura"
	SeriesRectificativa Series = "rectificativa"
)

// Valid reports whether s names a known series.
func (s Series) Valid() bool {
	switch s {
	case SeriesTicket, SeriesFactura, SeriesRectificativa:
		return true
	}
	return false
}

// Config holds numbering configuration shared by all tenants.
type Config struct {
	// PadWidth is the minimum counter width (default 5)
	PadWidth int

	// RectificativaMarker is prepended to rectificativa numbers (e.g. "R-")
	RectificativaMarker string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PadWidth:            5,
		RectificativaMarker: "R-",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PadWidth < 1 || c.PadWidth > 12 {
		return fmt.Errorf("pad width must be between 1 and 12, got %d", c.PadWidth)
	}
	return nil
}
