package product

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tpvcore/internal/core/types"
)

func TestAdjustedStock_FloorsAtZero(t *testing.T) {
	assert.Equal(t, "3", AdjustedStock(types.MustMoney("5"), types.MustMoney("-2")).String())
	assert.Equal(t, "0", AdjustedStock(types.MustMoney("1"), types.MustMoney("-4")).String())
	assert.Equal(t, "6.5", AdjustedStock(types.MustMoney("5"), types.MustMoney("1.5")).String())
}

func TestProduct_Labels(t *testing.T) {
	cc := "bar"
	p := &Product{CostCenter: &cc}
	assert.Equal(t, "bar", p.CostCenterLabel())
	assert.False(t, p.TracksStock())

	assert.Equal(t, "", (&Product{}).CostCenterLabel())
}
