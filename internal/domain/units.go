package domain

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Unit identifies the unit a raw field is expressed in.
type Unit string

const (
	UnitNone       Unit = ""           // already canonical
	UnitFahrenheit Unit = "fahrenheit" // → °C
	UnitMPH        Unit = "mph"        // → km/h
	UnitInHg       Unit = "inhg"       // → hPa
	UnitInch       Unit = "in"         // → mm
	UnitCompass    Unit = "compass"    // cardinal text → degrees
	UnitText       Unit = "text"       // free text, kept as a string
)

// Known reports whether u is a supported unit.
func (u Unit) Known() bool {
	switch u {
	case UnitNone, UnitFahrenheit, UnitMPH, UnitInHg, UnitInch, UnitCompass, UnitText:
		return true
	default:
		return false
	}
}

// FahrenheitToCelsius converts °F to °C.
func FahrenheitToCelsius(f float64) float64 { return (f - 32) * 5 / 9 }

// MPHToKMH converts miles per hour to kilometres per hour.
func MPHToKMH(mph float64) float64 { return mph * 1.60934 }

// InHgToHPa converts inches of mercury to hectopascals.
func InHgToHPa(inHg float64) float64 { return inHg * 33.8639 }

// InchesToMM converts inches to millimetres.
func InchesToMM(in float64) float64 { return in * 25.4 }

// compassPoints maps 16-point compass abbreviations to degrees in 22.5° steps.
var compassPoints = map[string]float64{
	"N": 0, "NNE": 22.5, "NE": 45, "ENE": 67.5,
	"E": 90, "ESE": 112.5, "SE": 135, "SSE": 157.5,
	"S": 180, "SSW": 202.5, "SW": 225, "WSW": 247.5,
	"W": 270, "WNW": 292.5, "NW": 315, "NNW": 337.5,

	// Weather Underground spells out the four cardinal points.
	"NORTH": 0, "EAST": 90, "SOUTH": 180, "WEST": 270,
}

// CompassToDegrees maps cardinal text to degrees. Unrecognized text (including
// WU's "VAR" and "CALM") reports false.
func CompassToDegrees(text string) (float64, bool) {
	deg, ok := compassPoints[strings.ToUpper(strings.TrimSpace(text))]
	return deg, ok
}

// nullTokens are spellings the sources use for "no reading".
var nullTokens = map[string]struct{}{
	"": {}, "-": {}, "--": {}, "—": {}, "n/a": {}, "na": {}, "null": {}, "none": {}, "nan": {},
}

// leadingNumberRe extracts the numeric prefix of strings like "57.7 °F",
// "56.8°F", "57,7" or "< 0.1".
var leadingNumberRe = regexp.MustCompile(`^[<>~]?\s*([-+]?(?:\d+(?:[.,]\d*)?|[.,]\d+))`)

type parseOutcome uint8

const (
	parsedValue parseOutcome = iota
	parsedNull
	parsedInvalid
)

// parseNumber reads a raw JSON-like value as a float.
func parseNumber(raw any) (float64, parseOutcome) {
	switch v := raw.(type) {
	case nil:
		return 0, parsedNull
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), parsedValue
	case int64:
		return float64(v), parsedValue
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, parsedInvalid
		}
		return finite(f)
	case string:
		return parseNumericString(v)
	default:
		return 0, parsedInvalid
	}
}

func finite(v float64) (float64, parseOutcome) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, parsedNull
	}
	return v, parsedValue
}

func parseNumericString(s string) (float64, parseOutcome) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if _, ok := nullTokens[strings.ToLower(s)]; ok {
		return 0, parsedNull
	}
	m := leadingNumberRe.FindStringSubmatch(s)
	if m == nil {
		return 0, parsedInvalid
	}
	f, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 0, parsedInvalid
	}
	return finite(f)
}

func convert(v float64, unit Unit) float64 {
	switch unit {
	case UnitFahrenheit:
		return FahrenheitToCelsius(v)
	case UnitMPH:
		return MPHToKMH(v)
	case UnitInHg:
		return InHgToHPa(v)
	case UnitInch:
		return InchesToMM(v)
	default:
		return v
	}
}

// NormalizeValue converts one raw value to its canonical form. The boolean is
// false when a present value could not be parsed; the result is then null.
// Unrecognized compass text is null without a warning.
func NormalizeValue(raw any, unit Unit) (Value, bool) {
	switch unit {
	case UnitText:
		return normalizeText(raw)
	case UnitCompass:
		if s, ok := raw.(string); ok {
			if deg, ok := CompassToDegrees(s); ok {
				return NumberValue(deg), true
			}
			// Some exports already carry degrees as text.
			if f, outcome := parseNumericString(s); outcome == parsedValue {
				return NumberValue(f), true
			}
			return NullValue(), true
		}
	}

	f, outcome := parseNumber(raw)
	switch outcome {
	case parsedValue:
		// Conversion can overflow a finite reading; that is a failed
		// conversion, not a measurement.
		if v, outcome := finite(convert(f, unit)); outcome == parsedValue {
			return NumberValue(v), true
		}
		return NullValue(), false
	case parsedNull:
		return NullValue(), true
	default:
		return NullValue(), false
	}
}

func normalizeText(raw any) (Value, bool) {
	switch v := raw.(type) {
	case nil:
		return NullValue(), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, "\u00a0", " "))
		if _, ok := nullTokens[strings.ToLower(s)]; ok {
			return NullValue(), true
		}
		return TextValue(s), true
	case json.Number:
		return TextValue(v.String()), true
	case float64:
		return TextValue(strconv.FormatFloat(v, 'f', -1, 64)), true
	case int:
		return TextValue(strconv.Itoa(v)), true
	default:
		return NullValue(), false
	}
}

// Normalized is a candidate whose fields are in canonical units. The instant
// is still unresolved.
type Normalized struct {
	Ref         string
	Source      string
	StationID   string
	TimeText    string
	TimeContext string
	TimeMode    TimeMode
	Fields      map[Field]Value
}

// Normalize converts every mapped field of a candidate. Unparseable values
// become null and are reported as warnings; they never fail the record.
func Normalize(c Candidate) (Normalized, []ConversionWarning) {
	out := Normalized{
		Ref:         c.Ref,
		Source:      c.Source,
		StationID:   c.StationID,
		TimeText:    c.TimeText,
		TimeContext: c.TimeContext,
		TimeMode:    c.TimeMode,
		Fields:      make(map[Field]Value, len(c.Fields)+len(c.Metadata)),
	}
	for field, v := range c.Metadata {
		out.Fields[field] = v
	}

	var warnings []ConversionWarning
	for field, rv := range c.Fields {
		v, ok := NormalizeValue(rv.Raw, rv.Unit)
		if !ok {
			warnings = append(warnings, ConversionWarning{Ref: c.Ref, Field: field, Raw: rv.Raw})
		}
		out.Fields[field] = v
	}
	return out, warnings
}
