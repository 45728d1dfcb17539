package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellsight/ddr-engine/internal/model"
)

func TestParseNumeric(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want float64
		ok   bool
	}{
		{"plain integer", "3450", 3450, true},
		{"decimal", "10.5", 10.5, true},
		{"with unit text", "3,450 m TVD", 3450, true},
		{"negative", "-2.5 days", -2.5, true},
		{"no number", "not applicable", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseNumeric(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 0.0001)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	t.Run("feet to meters", func(t *testing.T) {
		t.Parallel()
		v, u, err := Convert("hole_depth", 1000, "ft")
		require.NoError(t, err)
		assert.InDelta(t, 304.8, v, 0.001)
		assert.Equal(t, model.UnitMeters, u)
	})

	t.Run("meters unchanged", func(t *testing.T) {
		t.Parallel()
		v, u, err := Convert("hole_depth", 304.8, "m")
		require.NoError(t, err)
		assert.InDelta(t, 304.8, v, 0.001)
		assert.Equal(t, model.UnitMeters, u)
	})

	t.Run("sg to ppg", func(t *testing.T) {
		t.Parallel()
		v, u, err := Convert("mud_weight", 1.2, "sg")
		require.NoError(t, err)
		assert.InDelta(t, 10.014, v, 0.001)
		assert.Equal(t, model.UnitPPG, u)
	})

	t.Run("fahrenheit to celsius", func(t *testing.T) {
		t.Parallel()
		v, u, err := Convert("temperature", 212, "degF")
		require.NoError(t, err)
		assert.InDelta(t, 100, v, 0.001)
		assert.Equal(t, model.UnitCelsius, u)
	})

	t.Run("empty unit assumed canonical", func(t *testing.T) {
		t.Parallel()
		v, u, err := Convert("mud_weight", 10, "")
		require.NoError(t, err)
		assert.InDelta(t, 10, v, 0.001)
		assert.Equal(t, model.UnitPPG, u)
	})

	t.Run("unknown unit is a conversion error", func(t *testing.T) {
		t.Parallel()
		_, _, err := Convert("hole_depth", 10, "furlongs")
		var convErr *model.ConversionError
		require.ErrorAs(t, err, &convErr)
		assert.Equal(t, "hole_depth", convErr.Field)
	})

	t.Run("unknown family passes through", func(t *testing.T) {
		t.Parallel()
		v, u, err := Convert("mystery_param", 42, "widgets")
		require.NoError(t, err)
		assert.InDelta(t, 42, v, 0.001)
		assert.Equal(t, "widgets", u)
	})
}

func TestFamilyOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FamilyDepth, FamilyOf("hole_depth"))
	assert.Equal(t, FamilyRate, FamilyOf("penetration_rate"))
	assert.Equal(t, FamilyDensity, FamilyOf("mud_weight"))
	assert.Equal(t, FamilyGas, FamilyOf("total_gas"))
	// penetration_rate must win over a bare depth/rate guess
	assert.Equal(t, FamilyRate, FamilyOf("penetration_rate_at_depth"))
	assert.Equal(t, FamilyUnknown, FamilyOf("remark"))
}

func TestCanonicalParamName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"Mud Weight (ppg)", "mud_weight_ppg"},
		{"MUD  WEIGHT", "mud_weight"},
		{"Penetration Rate [m/h]", "penetration_rate_m_h"},
		{"  Total Gas % ", "total_gas"},
		{"End Depth m MD", "end_depth_m_md"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanonicalParamName(tt.raw))
		})
	}
}

func TestSplitUnitSuffix(t *testing.T) {
	t.Parallel()

	name, unit := SplitUnitSuffix("mud_weight_ppg")
	assert.Equal(t, "mud_weight", name)
	assert.Equal(t, "ppg", unit)

	name, unit = SplitUnitSuffix("penetration_rate_m_h")
	assert.Equal(t, "penetration_rate", name)
	assert.Equal(t, "m/h", unit)

	name, unit = SplitUnitSuffix("remark")
	assert.Equal(t, "remark", name)
	assert.Equal(t, "", unit)
}
