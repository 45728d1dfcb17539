package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wellsight/ddr-engine/internal/model"
)

// ParamFamily groups parameters that share a canonical unit.
type ParamFamily string

const (
	FamilyDepth       ParamFamily = "depth"
	FamilyRate        ParamFamily = "rate"
	FamilyDensity     ParamFamily = "density"
	FamilyTemperature ParamFamily = "temperature"
	FamilyPressure    ParamFamily = "pressure"
	FamilyGas         ParamFamily = "gas"
	FamilyUnknown     ParamFamily = "unknown"
)

var numericToken = regexp.MustCompile(`[-+]?\d*\.\d+|[-+]?\d+`)

// ParseNumeric extracts the first numeric token from a raw cell value.
// OCR'd cells often carry stray characters ("3,450 m TVD"), so the value is
// the first token that parses, commas stripped.
func ParseNumeric(raw string) (float64, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	tok := numericToken.FindString(cleaned)
	if tok == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// familyKeywords maps parameter-name substrings to families. Checked in
// order so more specific names win (penetration_rate before rate).
var familyKeywords = []struct {
	substr string
	family ParamFamily
}{
	{"penetration_rate", FamilyRate},
	{"rop", FamilyRate},
	{"mud_weight", FamilyDensity},
	{"mud_density", FamilyDensity},
	{"density", FamilyDensity},
	{"formation_strength", FamilyDensity},
	{"temperature", FamilyTemperature},
	{"temp", FamilyTemperature},
	{"pressure", FamilyPressure},
	{"gas", FamilyGas},
	{"depth", FamilyDepth},
	{"elevation", FamilyDepth},
	{"dist_drilled", FamilyDepth},
}

// FamilyOf returns the parameter family for a canonical parameter name.
func FamilyOf(param string) ParamFamily {
	for _, fk := range familyKeywords {
		if strings.Contains(param, fk.substr) {
			return fk.family
		}
	}
	return FamilyUnknown
}

// CanonicalUnit returns the storage unit for a family. Unknown families
// store values as-is with whatever unit they arrived in.
func CanonicalUnit(f ParamFamily) string {
	switch f {
	case FamilyDepth:
		return model.UnitMeters
	case FamilyRate:
		return model.UnitMetersPerHour
	case FamilyDensity:
		return model.UnitPPG
	case FamilyTemperature:
		return model.UnitCelsius
	case FamilyPressure:
		return model.UnitBar
	case FamilyGas:
		return model.UnitPercent
	}
	return ""
}

// conversions maps (family, source unit) to a factor/offset into the
// canonical unit: canonical = raw*factor + offset.
var conversions = map[ParamFamily]map[string]struct{ factor, offset float64 }{
	FamilyDepth: {
		"m":  {1, 0},
		"ft": {0.3048, 0},
	},
	FamilyRate: {
		"m/h":   {1, 0},
		"ft/h":  {0.3048, 0},
		"ft/hr": {0.3048, 0},
	},
	FamilyDensity: {
		"ppg":   {1, 0},
		"sg":    {8.345, 0},
		"g/cm3": {8.345, 0},
		"kg/m3": {0.008345, 0},
	},
	FamilyTemperature: {
		"degc": {1, 0},
		"c":    {1, 0},
		"degf": {5.0 / 9.0, -160.0 / 9.0},
		"f":    {5.0 / 9.0, -160.0 / 9.0},
	},
	FamilyPressure: {
		"bar": {1, 0},
		"psi": {0.0689476, 0},
		"kpa": {0.01, 0},
	},
	FamilyGas: {
		"%":    {1, 0},
		"unit": {1, 0},
	},
}

// normalizeUnit strips decoration from an OCR'd unit string ("ft/H ", "°C").
func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.ReplaceAll(u, "°", "deg")
	u = strings.ReplaceAll(u, " ", "")
	return u
}

// Convert reconciles a raw value/unit pair into the canonical unit for the
// parameter's family. An empty unit is assumed already canonical. An
// unrecognized unit yields a ConversionError; the caller records it per
// field and carries on.
func Convert(param string, value float64, unit string) (float64, string, error) {
	family := FamilyOf(param)
	canon := CanonicalUnit(family)
	if family == FamilyUnknown || canon == "" {
		return value, normalizeUnit(unit), nil
	}

	u := normalizeUnit(unit)
	if u == "" {
		return value, canon, nil
	}

	conv, ok := conversions[family][u]
	if !ok {
		return 0, "", &model.ConversionError{
			Field:  param,
			Raw:    unit,
			Reason: "unrecognized unit for " + string(family),
		}
	}
	return value*conv.factor + conv.offset, canon, nil
}
