package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelForDrawdown(t *testing.T) {
	thresholds := DefaultLevelThresholds()

	tests := []struct {
		name string
		dd   float64
		want Level
	}{
		{"zero", 0.0, LevelNormal},
		{"below_warn", 0.049, LevelNormal},
		{"warn_boundary_inclusive", 0.05, LevelWarning},
		{"mid_warn", 0.07, LevelWarning},
		{"reduce_boundary_inclusive", 0.08, LevelReduced},
		{"mid_reduce", 0.10, LevelReduced},
		{"restrict_boundary_inclusive", 0.12, LevelRestricted},
		{"mid_restrict", 0.14, LevelRestricted},
		{"emergency_boundary_inclusive", 0.15, LevelEmergency},
		{"deep_drawdown", 0.40, LevelEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, thresholds.LevelForDrawdown(tt.dd))
		})
	}
}

func TestLevelMonotonicInDrawdown(t *testing.T) {
	thresholds := DefaultLevelThresholds()
	prev := LevelNormal
	for dd := 0.0; dd <= 0.30; dd += 0.001 {
		level := thresholds.LevelForDrawdown(dd)
		assert.GreaterOrEqual(t, int(level), int(prev), "level regressed at dd=%.3f", dd)
		prev = level
	}
}

func TestLevelActions(t *testing.T) {
	assert.Empty(t, LevelNormal.Actions())
	assert.Contains(t, LevelWarning.Actions(), ActionBlockBTCEntries)
	assert.Contains(t, LevelReduced.Actions(), ActionReduceAll25)
	assert.Contains(t, LevelReduced.Actions(), ActionCloseBTC)
	assert.Contains(t, LevelRestricted.Actions(), ActionSafeHavenOnly)
	assert.Contains(t, LevelEmergency.Actions(), ActionLiquidateRisk)
	assert.Contains(t, LevelEmergency.Actions(), ActionRequireConfirm)
}

func TestLevelReductionFactor(t *testing.T) {
	assert.Equal(t, 1.0, LevelNormal.ReductionFactor())
	assert.Equal(t, 1.0, LevelWarning.ReductionFactor())
	assert.Equal(t, 0.75, LevelReduced.ReductionFactor())
	assert.Equal(t, 0.50, LevelRestricted.ReductionFactor())
	assert.Equal(t, 0.0, LevelEmergency.ReductionFactor())
}

func TestLevelEntryRestrictions(t *testing.T) {
	assert.False(t, LevelNormal.SellOnly())
	assert.False(t, LevelWarning.SellOnly())
	assert.True(t, LevelReduced.SellOnly())
	assert.True(t, LevelRestricted.BlocksNewEntries())
	assert.True(t, LevelEmergency.BlocksNewEntries())
}
