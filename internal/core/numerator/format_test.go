package numerator

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	date := time.Date(2026, time.March, 7, 23, 30, 0, 0, time.UTC)
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		template string
		series   Series
		count    int64
		want     string
	}{
		{"year and count", "T%year%-%count%", SeriesTicket, 1, "T2026-00001"},
		{"all date parts", "%year%/%month%/%day%-%count%", SeriesFactura, 42, "2026/03/07-00042"},
		{"compact date", "%date%-%count%", SeriesTicket, 7, "20260307-00007"},
		{"no count placeholder appends counter", "TPV-%year%-", SeriesTicket, 12, "TPV-2026-00012"},
		{"empty template", "", SeriesTicket, 3, "00003"},
		{"rectificativa marker", "%year%-%count%", SeriesRectificativa, 2, "R-2026-00002"},
		{"counter wider than pad", "%count%", SeriesTicket, 1234567, "1234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(cfg, tt.template, tt.series, tt.count, date))
		})
	}
}

func TestFormat_UsesGivenLocalDate(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	// 23:30 UTC on Dec 31 is already Jan 1 in Madrid.
	instant := time.Date(2025, time.December, 31, 23, 30, 0, 0, time.UTC)
	got := Format(DefaultConfig(), "%year%-%count%", SeriesTicket, 1, instant.In(madrid))
	assert.Equal(t, "2026-00001", got)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{PadWidth: 0}.Validate())
	assert.True(t, SeriesFactura.Valid())
	assert.False(t, Series("proforma").Valid())
}

func TestMockGenerator_Independent(t *testing.T) {
	g := &MockGenerator{}
	ctx := context.Background()

	n, _ := g.Next(ctx, "t1", SeriesTicket)
	assert.Equal(t, int64(1), n)
	n, _ = g.Next(ctx, "t1", SeriesTicket)
	assert.Equal(t, int64(2), n)
	n, _ = g.Next(ctx, "t1", SeriesFactura)
	assert.Equal(t, int64(1), n)
	n, _ = g.Next(ctx, "t2", SeriesTicket)
	assert.Equal(t, int64(1), n)
}
