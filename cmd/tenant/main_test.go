package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsage_KeepsNumberingPlaceholders(t *testing.T) {
	assert.Contains(t, usage, `--prefix "%year%-%count%"`)
	assert.True(t, strings.HasSuffix(usage, "cashier-1\n"))
}

func TestParseFlags(t *testing.T) {
	flags, positional := parseFlags([]string{"t-1", "--user", "cashier-1", "--prefix", "%count%"})
	assert.Equal(t, []string{"t-1"}, positional)
	assert.Equal(t, "cashier-1", flags["user"])
	assert.Equal(t, "%count%", flags["prefix"])
}
