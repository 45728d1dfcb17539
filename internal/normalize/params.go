package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// CanonicalParamName turns an OCR'd header cell into a stable parameter
// name: unicode-normalized, case-folded, punctuation collapsed to
// underscores. "Mud Weight (ppg)" and "MUD  WEIGHT" both map to
// "mud_weight_ppg" / "mud_weight".
func CanonicalParamName(raw string) string {
	s := norm.NFKC.String(raw)
	s = foldCaser.String(s)

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := true // suppress leading underscore
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '/':
			// Preserve rate units like m/h inside names.
			b.WriteRune('_')
			lastUnderscore = true
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// unitSuffixes are unit hints embedded in parameter names by the vision
// layer's column headers. When a table has no unit column, the suffix is
// the unit and the base name is the parameter.
var unitSuffixes = []struct {
	suffix string
	unit   string
}{
	{"_m_h", "m/h"},
	{"_ft_h", "ft/h"},
	{"_ft_hr", "ft/h"},
	{"_g_cm3", "g/cm3"},
	{"_kg_m3", "kg/m3"},
	{"_ppg", "ppg"},
	{"_sg", "sg"},
	{"_degc", "degC"},
	{"_degf", "degF"},
	{"_psi", "psi"},
	{"_bar", "bar"},
	{"_ft", "ft"},
	{"_m", "m"},
}

// SplitUnitSuffix separates an embedded unit hint from a canonical
// parameter name. Returns the bare name and the detected unit ("" if none).
func SplitUnitSuffix(param string) (string, string) {
	for _, us := range unitSuffixes {
		if strings.HasSuffix(param, us.suffix) && len(param) > len(us.suffix) {
			return strings.TrimSuffix(param, us.suffix), us.unit
		}
	}
	return param, ""
}
