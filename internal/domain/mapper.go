package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RawValue is a mapped but not yet normalized field value.
type RawValue struct {
	Raw  any
	Unit Unit
}

// Candidate is a raw record mapped onto canonical field names. Fields holds
// every declared field of the source table; absent fields have no entry.
type Candidate struct {
	Ref         string
	Source      string
	StationID   string
	TimeText    string
	TimeContext string
	TimeMode    TimeMode
	Fields      map[Field]RawValue
	Metadata    map[Field]Value // station directory values, already canonical
}

// RecordMapper maps raw records onto the canonical schema using one table per
// source tag.
type RecordMapper struct {
	tables SourceTables
}

// NewRecordMapper returns a mapper dispatching on the given tables.
func NewRecordMapper(tables SourceTables) *RecordMapper {
	return &RecordMapper{tables: tables}
}

// Map resolves identity and field locations for one raw record. It fails
// with a *MappingError when the source tag is unknown or the station id
// cannot be resolved. Unmapped raw keys are ignored.
func (m *RecordMapper) Map(rec RawRecord) (Candidate, error) {
	table, ok := m.tables[rec.Source]
	if !ok {
		return Candidate{}, &MappingError{Ref: rec.Ref, Source: rec.Source, Reason: "unknown source tag"}
	}

	data := rec.Data
	if table.Envelope != "" {
		if inner, ok := data[table.Envelope].(map[string]any); ok {
			data = inner
		}
	}

	stationID := table.StationID
	if stationID == "" {
		v, _ := lookupPath(data, table.StationIDPath)
		stationID = scalarString(v)
	}
	if stationID == "" {
		return Candidate{}, &MappingError{Ref: rec.Ref, Source: rec.Source, Reason: "station id missing"}
	}

	timeValue, _ := lookupPath(data, table.TimePath)

	c := Candidate{
		Ref:         rec.Ref,
		Source:      table.Source,
		StationID:   stationID,
		TimeText:    scalarString(timeValue),
		TimeContext: rec.Context,
		TimeMode:    table.TimeMode,
		Fields:      make(map[Field]RawValue, len(table.Fields)),
	}

	for _, spec := range fieldSpecs {
		fm, ok := table.Fields[spec.Field]
		if !ok || fm.Absent {
			continue
		}
		if fm.Station {
			if c.Metadata == nil {
				c.Metadata = make(map[Field]Value, 5)
			}
			// An unknown station yields nulls: the channel does produce metadata.
			c.Metadata[spec.Field] = table.Stations[stationID].value(spec.Field)
			continue
		}

		unit := fm.Unit
		if spec.Kind == KindText {
			unit = UnitText
		}
		raw, found := lookupPath(data, fm.Path)
		for _, alias := range fm.Aliases {
			if found {
				break
			}
			raw, found = lookupPath(data, alias)
		}
		// A declared field missing from this row is null, not absent.
		c.Fields[spec.Field] = RawValue{Raw: raw, Unit: unit}
	}
	return c, nil
}

// lookupPath resolves a raw key or a dotted path into nested objects. An
// exact key match wins, so column names containing dots ("Precip. Rate.")
// resolve directly.
func lookupPath(data map[string]any, p string) (any, bool) {
	if p == "" || data == nil {
		return nil, false
	}
	if v, ok := data[p]; ok {
		return v, true
	}
	for i := 0; i < len(p); i++ {
		if p[i] != '.' {
			continue
		}
		if nested, ok := data[p[:i]].(map[string]any); ok {
			if v, ok := lookupPath(nested, p[i+1:]); ok {
				return v, true
			}
		}
	}
	return nil, false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
