package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// TimeMode selects how a source's time text becomes an instant.
type TimeMode string

const (
	// TimePartition combines a wall-clock time with a date taken from the
	// record context (sheet name, folder or object key).
	TimePartition TimeMode = "partition"
	// TimeAbsolute parses a full UTC datetime from the record itself.
	TimeAbsolute TimeMode = "absolute"
)

// FieldMapping declares where one canonical field comes from.
type FieldMapping struct {
	Path    string   `yaml:"path,omitempty"`    // raw key or dotted path
	Aliases []string `yaml:"aliases,omitempty"` // alternative raw keys, tried in order
	Unit    Unit     `yaml:"unit,omitempty"`
	Station bool     `yaml:"station,omitempty"` // filled from the table's station directory
	Absent  bool     `yaml:"absent,omitempty"`  // the channel never produces this field
}

// StationMeta is static metadata for one station.
type StationMeta struct {
	Name      string   `yaml:"name"`
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
	Elevation *float64 `yaml:"elevation"`
	Type      string   `yaml:"type"`
}

func (m StationMeta) value(f Field) Value {
	num := func(p *float64) Value {
		if p == nil {
			return NullValue()
		}
		return NumberValue(*p)
	}
	text := func(s string) Value {
		if s == "" {
			return NullValue()
		}
		return TextValue(s)
	}
	switch f {
	case FieldStationName:
		return text(m.Name)
	case FieldLatitude:
		return num(m.Latitude)
	case FieldLongitude:
		return num(m.Longitude)
	case FieldElevation:
		return num(m.Elevation)
	case FieldStationType:
		return text(m.Type)
	default:
		return NullValue()
	}
}

// SourceTable is the mapping configuration for one source tag. Every
// non-identity canonical field must be declared, either with a raw path, as
// station metadata, or as absent.
type SourceTable struct {
	Source        string                 `yaml:"source"`             // canonical source value written to the document
	Envelope      string                 `yaml:"envelope,omitempty"` // optional wrapper key, e.g. _airbyte_data
	StationID     string                 `yaml:"station_id,omitempty"`
	StationIDPath string                 `yaml:"station_id_path,omitempty"`
	TimePath      string                 `yaml:"time_path"`
	TimeMode      TimeMode               `yaml:"time_mode"`
	Fields        map[Field]FieldMapping `yaml:"fields"`
	Stations      map[string]StationMeta `yaml:"stations,omitempty"`
}

// Validate checks that the table is complete and internally consistent.
func (t SourceTable) Validate() error {
	var errs []error
	if t.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if t.StationID == "" && t.StationIDPath == "" {
		errs = append(errs, errors.New("station_id or station_id_path is required"))
	}
	if t.TimePath == "" {
		errs = append(errs, errors.New("time_path is required"))
	}
	if t.TimeMode != TimePartition && t.TimeMode != TimeAbsolute {
		errs = append(errs, fmt.Errorf("unknown time_mode %q", t.TimeMode))
	}
	for f := range t.Fields {
		if _, ok := LookupField(f); !ok {
			errs = append(errs, fmt.Errorf("unknown field %q", f))
		}
	}
	for _, spec := range fieldSpecs {
		m, ok := t.Fields[spec.Field]
		if !ok {
			errs = append(errs, fmt.Errorf("field %q is not declared", spec.Field))
			continue
		}
		set := 0
		for _, b := range []bool{m.Path != "", m.Station, m.Absent} {
			if b {
				set++
			}
		}
		if set != 1 {
			errs = append(errs, fmt.Errorf("field %q: exactly one of path, station, absent must be set", spec.Field))
		}
		if m.Station && !IsStationMetadata(spec.Field) {
			errs = append(errs, fmt.Errorf("field %q is not station metadata", spec.Field))
		}
		if !m.Unit.Known() {
			errs = append(errs, fmt.Errorf("field %q: unknown unit %q", spec.Field, m.Unit))
		}
	}
	return errors.Join(errs...)
}

// SourceTables maps source tags to their tables.
type SourceTables map[string]SourceTable

// Validate checks every table.
func (ts SourceTables) Validate() error {
	if len(ts) == 0 {
		return errors.New("no source tables")
	}
	var errs []error
	for _, tag := range slices.Sorted(maps.Keys(ts)) {
		if err := ts[tag].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", tag, err))
		}
	}
	return errors.Join(errs...)
}

// Sources returns the distinct canonical source values, sorted.
func (ts SourceTables) Sources() []string {
	var out []string
	for _, t := range ts {
		if !slices.Contains(out, t.Source) {
			out = append(out, t.Source)
		}
	}
	slices.Sort(out)
	return out
}

const (
	SourceInfoClimat         = "infoclimat"
	SourceWeatherUnderground = "weather_underground"

	AirbyteEnvelope = "_airbyte_data"

	// stationKey is injected into expanded bundle rows to carry the station
	// entry from the bundle's directory.
	stationKey = "_station"
)

func raw(p string, aliases ...string) FieldMapping {
	return FieldMapping{Path: p, Aliases: aliases}
}

func rawUnit(p string, u Unit, aliases ...string) FieldMapping {
	return FieldMapping{Path: p, Aliases: aliases, Unit: u}
}

var (
	absent  = FieldMapping{Absent: true}
	station = FieldMapping{Station: true}
)

// WeatherUndergroundStations is the directory of the personal weather stations
// whose workbooks are ingested.
func WeatherUndergroundStations() map[string]StationMeta {
	return map[string]StationMeta{
		"IICHTE19": {Name: "WeerstationBS", Latitude: ptr(51.092), Longitude: ptr(2.999), Elevation: ptr(15), Type: "weather_underground"},
		"ILAMAD25": {Name: "La Madeleine", Latitude: ptr(50.659), Longitude: ptr(3.07), Elevation: ptr(23), Type: "weather_underground"},
	}
}

func weatherUndergroundTable(stationID string) SourceTable {
	return SourceTable{
		Source:    SourceWeatherUnderground,
		Envelope:  AirbyteEnvelope,
		StationID: stationID,
		TimePath:  "Time",
		TimeMode:  TimePartition,
		Fields: map[Field]FieldMapping{
			FieldStationName:       station,
			FieldLatitude:          station,
			FieldLongitude:         station,
			FieldElevation:         station,
			FieldStationType:       station,
			FieldTemperatureC:      rawUnit("Temperature", UnitFahrenheit),
			FieldDewPointC:         rawUnit("Dew Point", UnitFahrenheit),
			FieldHumidityPct:       raw("Humidity"),
			FieldWindDirectionDeg:  rawUnit("Wind", UnitCompass),
			FieldWindSpeedKmh:      rawUnit("Speed", UnitMPH),
			FieldWindGustKmh:       rawUnit("Gust", UnitMPH),
			FieldPressureHpa:       rawUnit("Pressure", UnitInHg),
			FieldPrecipRateMm:      rawUnit("Precip. Rate.", UnitInch, "Precip. Rate"),
			FieldPrecipAccumMm:     rawUnit("Precip. Accum.", UnitInch, "Precip. Accum"),
			FieldVisibilityM:       absent,
			FieldCloudCoverOctas:   absent,
			FieldSnowDepthCm:       absent,
			FieldWeatherCode:       absent,
			FieldUVIndex:           raw("UV"),
			FieldSolarRadiationWm2: raw("Solar"),
		},
		Stations: WeatherUndergroundStations(),
	}
}

func infoClimatTable() SourceTable {
	return SourceTable{
		Source:        SourceInfoClimat,
		Envelope:      AirbyteEnvelope,
		StationIDPath: "id_station",
		TimePath:      "dh_utc",
		TimeMode:      TimeAbsolute,
		Fields: map[Field]FieldMapping{
			FieldStationName:       rawUnit(stationKey+".name", UnitText),
			FieldLatitude:          raw(stationKey + ".latitude"),
			FieldLongitude:         raw(stationKey + ".longitude"),
			FieldElevation:         raw(stationKey + ".elevation"),
			FieldStationType:       rawUnit(stationKey+".type", UnitText),
			FieldTemperatureC:      raw("temperature"),
			FieldDewPointC:         raw("point_de_rosee"),
			FieldHumidityPct:       raw("humidite"),
			FieldWindDirectionDeg:  rawUnit("vent_direction", UnitCompass),
			FieldWindSpeedKmh:      raw("vent_moyen"),
			FieldWindGustKmh:       raw("vent_rafales"),
			FieldPressureHpa:       raw("pression"),
			FieldPrecipRateMm:      raw("pluie_1h"),
			FieldPrecipAccumMm:     raw("pluie_3h"),
			FieldVisibilityM:       raw("visibilite"),
			FieldCloudCoverOctas:   raw("nebulosite"),
			FieldSnowDepthCm:       raw("neige_au_sol"),
			FieldWeatherCode:       rawUnit("temps_omm", UnitText),
			FieldUVIndex:           absent,
			FieldSolarRadiationWm2: absent,
		},
	}
}

// DefaultSourceTables returns the built-in tables keyed by source tag.
func DefaultSourceTables() SourceTables {
	return SourceTables{
		SourceInfoClimat: infoClimatTable(),
		"wu_ichtegem":    weatherUndergroundTable("IICHTE19"),
		"wu_lamadeleine": weatherUndergroundTable("ILAMAD25"),
	}
}

// ExpandBundles flattens InfoClimat hourly bundles into one raw record per
// row. A bundle nests rows under hourly.<station_id> next to a stations list;
// keys starting with "_" (such as _params) are descriptors and are skipped.
// Each row is tagged with its station id and its entry from the stations list.
// Records that are not bundles pass through unchanged.
//
// Bundle content that cannot become a record is returned as a rejection: a
// row that is not an object or a station entry that is not a list (decode),
// and a bundle without any station rows (mapping).
func ExpandBundles(records []RawRecord) ([]RawRecord, []Rejection) {
	out := make([]RawRecord, 0, len(records))
	var rejected []Rejection
	for _, rec := range records {
		data := rec.Data
		if inner, ok := data[AirbyteEnvelope].(map[string]any); ok {
			data = inner
		}
		hourly, ok := data["hourly"].(map[string]any)
		if !ok {
			out = append(out, rec)
			continue
		}

		directory := bundleStations(data["stations"])
		before := len(out) + len(rejected)
		for _, id := range slices.Sorted(maps.Keys(hourly)) {
			if strings.HasPrefix(id, "_") {
				continue
			}
			ref := fmt.Sprintf("%s/hourly.%s", rec.Ref, id)
			rows, ok := hourly[id].([]any)
			if !ok {
				rejected = append(rejected, Rejection{
					Ref:    ref,
					Reason: ReasonDecode,
					Detail: fmt.Sprintf("station entry is %T, want a list of rows", hourly[id]),
				})
				continue
			}
			for i, r := range rows {
				rowRef := fmt.Sprintf("%s[%d]", ref, i)
				row, ok := r.(map[string]any)
				if !ok {
					rejected = append(rejected, Rejection{
						Ref:    rowRef,
						Reason: ReasonDecode,
						Detail: fmt.Sprintf("row is %T, want an object", r),
					})
					continue
				}
				row = maps.Clone(row)
				if _, ok := row["id_station"]; !ok {
					row["id_station"] = id
				}
				if meta, ok := directory[id]; ok {
					row[stationKey] = meta
				}
				out = append(out, RawRecord{
					Ref:     rowRef,
					Source:  rec.Source,
					Context: rec.Context,
					Data:    row,
				})
			}
		}
		if len(out)+len(rejected) == before {
			rejected = append(rejected, Rejection{
				Ref:    rec.Ref,
				Reason: ReasonMapping,
				Detail: "bundle holds no hourly rows",
			})
		}
	}
	return out, rejected
}

func bundleStations(v any) map[string]map[string]any {
	list, _ := v.([]any)
	dir := make(map[string]map[string]any, len(list))
	for _, item := range list {
		st, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := st["id"].(string); ok && id != "" {
			dir[id] = st
		}
	}
	return dir
}
