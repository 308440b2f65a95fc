package config

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"tpvcore/internal/domain/tax"
	"tpvcore/pkg/logger"
)

// TaxZonesHolder serves the current tax zone table and swaps it when the
// watched file changes. Invalid reloads are ignored.
type TaxZonesHolder struct {
	current atomic.Pointer[tax.Table]
}

// NewTaxZonesHolder loads tax_zones.yml from file (when given), /etc/tpvcore or
// the working directory. Without a file the built-in table is used.
func NewTaxZonesHolder(file string) (*TaxZonesHolder, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("tax_zones")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/tpvcore")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TPV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &TaxZonesHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, err
		}
		holder.current.Store(tax.DefaultTable())
		logger.Info(context.Background(), "tax zones: using built-in table")
		return holder, nil
	}

	table, err := decodeZones(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(table)
	logger.Info(context.Background(), "tax zones loaded", "file", v.ConfigFileUsed(), "zones", len(table.Zones()))

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeZones(v)
		if err != nil {
			logger.Warn(context.Background(), "tax zones: invalid reload ignored", "file", e.Name, "error", err)
			return
		}
		holder.current.Store(updated)
		logger.Info(context.Background(), "tax zones reloaded", "file", e.Name, "zones", len(updated.Zones()))
	})

	return holder, nil
}

// NewStaticTaxZones wraps a fixed table.
func NewStaticTaxZones(t *tax.Table) *TaxZonesHolder {
	h := &TaxZonesHolder{}
	h.current.Store(t)
	return h
}

// Table implements tax.Source.
func (h *TaxZonesHolder) Table() *tax.Table {
	return h.current.Load()
}

func decodeZones(v *viper.Viper) (*tax.Table, error) {
	var defs []tax.ZoneDefinition
	if err := v.UnmarshalKey("zones", &defs); err != nil {
		return nil, err
	}
	return tax.NewTable(defs)
}
