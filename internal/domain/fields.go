package domain

import "slices"

// Field names a canonical schema field. The string value is the document key.
type Field string

// Identity and provenance fields.
const (
	FieldSource     Field = "source"
	FieldStationID  Field = "station_id"
	FieldTimestamp  Field = "timestamp"
	FieldRecordHash Field = "record_hash"
)

// Station metadata fields.
const (
	FieldStationName Field = "station_name"
	FieldLatitude    Field = "latitude"
	FieldLongitude   Field = "longitude"
	FieldElevation   Field = "elevation"
	FieldStationType Field = "station_type"
)

// Measurement fields.
const (
	FieldTemperatureC      Field = "temperature_c"
	FieldDewPointC         Field = "dew_point_c"
	FieldHumidityPct       Field = "humidity_pct"
	FieldWindDirectionDeg  Field = "wind_direction_deg"
	FieldWindSpeedKmh      Field = "wind_speed_kmh"
	FieldWindGustKmh       Field = "wind_gust_kmh"
	FieldPressureHpa       Field = "pressure_hpa"
	FieldPrecipRateMm      Field = "precip_rate_mm"
	FieldPrecipAccumMm     Field = "precip_accum_mm"
	FieldVisibilityM       Field = "visibility_m"
	FieldCloudCoverOctas   Field = "cloud_cover_octas"
	FieldSnowDepthCm       Field = "snow_depth_cm"
	FieldWeatherCode       Field = "weather_code"
	FieldUVIndex           Field = "uv_index"
	FieldSolarRadiationWm2 Field = "solar_radiation_wm2"
)

// Kind is the value type a field holds.
type Kind uint8

const (
	KindNumber Kind = iota
	KindText
)

// Bounds is a numeric range. A nil end is unbounded. Min is always inclusive.
type Bounds struct {
	Min          *float64
	Max          *float64
	MaxExclusive bool
}

// Bounded reports whether either end is set.
func (b Bounds) Bounded() bool {
	return b.Min != nil || b.Max != nil
}

// Contains reports whether v lies inside the range.
func (b Bounds) Contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil {
		if b.MaxExclusive && v >= *b.Max {
			return false
		}
		if v > *b.Max {
			return false
		}
	}
	return true
}

// FieldSpec describes one non-identity canonical field.
type FieldSpec struct {
	Field  Field
	Kind   Kind
	Bounds Bounds
}

func ptr(v float64) *float64 { return &v }

func between(lo, hi float64) Bounds { return Bounds{Min: ptr(lo), Max: ptr(hi)} }

func nonNegative() Bounds { return Bounds{Min: ptr(0)} }

// fieldSpecs lists the 20 non-identity fields in document order. Together with
// source, station_id and timestamp they form the 23-field canonical schema.
var fieldSpecs = []FieldSpec{
	{Field: FieldStationName, Kind: KindText},
	{Field: FieldLatitude, Kind: KindNumber, Bounds: between(-90, 90)},
	{Field: FieldLongitude, Kind: KindNumber, Bounds: between(-180, 180)},
	{Field: FieldElevation, Kind: KindNumber},
	{Field: FieldStationType, Kind: KindText},
	{Field: FieldTemperatureC, Kind: KindNumber, Bounds: between(-60, 60)},
	{Field: FieldDewPointC, Kind: KindNumber},
	{Field: FieldHumidityPct, Kind: KindNumber, Bounds: between(0, 100)},
	{Field: FieldWindDirectionDeg, Kind: KindNumber, Bounds: Bounds{Min: ptr(0), Max: ptr(360), MaxExclusive: true}},
	{Field: FieldWindSpeedKmh, Kind: KindNumber, Bounds: nonNegative()},
	{Field: FieldWindGustKmh, Kind: KindNumber, Bounds: nonNegative()},
	{Field: FieldPressureHpa, Kind: KindNumber, Bounds: between(870, 1084)},
	{Field: FieldPrecipRateMm, Kind: KindNumber, Bounds: nonNegative()},
	{Field: FieldPrecipAccumMm, Kind: KindNumber, Bounds: nonNegative()},
	{Field: FieldVisibilityM, Kind: KindNumber, Bounds: nonNegative()},
	{Field: FieldCloudCoverOctas, Kind: KindNumber, Bounds: between(0, 8)},
	{Field: FieldSnowDepthCm, Kind: KindNumber, Bounds: nonNegative()},
	{Field: FieldWeatherCode, Kind: KindText},
	{Field: FieldUVIndex, Kind: KindNumber, Bounds: nonNegative()},
	{Field: FieldSolarRadiationWm2, Kind: KindNumber, Bounds: nonNegative()},
}

var fieldIndex = func() map[Field]FieldSpec {
	m := make(map[Field]FieldSpec, len(fieldSpecs))
	for _, s := range fieldSpecs {
		m[s.Field] = s
	}
	return m
}()

// FieldSpecs returns the non-identity fields in document order.
func FieldSpecs() []FieldSpec {
	return slices.Clone(fieldSpecs)
}

// LookupField returns the definition of a non-identity field.
func LookupField(f Field) (FieldSpec, bool) {
	s, ok := fieldIndex[f]
	return s, ok
}

// IsStationMetadata reports whether f is filled from a station directory
// rather than from the measurement row.
func IsStationMetadata(f Field) bool {
	switch f {
	case FieldStationName, FieldLatitude, FieldLongitude, FieldElevation, FieldStationType:
		return true
	default:
		return false
	}
}
