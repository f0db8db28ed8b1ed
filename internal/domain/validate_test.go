package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSchema_Validate(t *testing.T) {
	schema := NewStoreSchema(DefaultSourceTables())
	require.Equal(t, []string{SourceInfoClimat, SourceWeatherUnderground}, schema.Sources)

	with := func(mut func(*Observation)) Observation {
		o := testObservation("r1", map[Field]Value{
			FieldHumidityPct:  NumberValue(87),
			FieldStationName:  TextValue("WeerstationBS"),
			FieldPressureHpa:  NullValue(),
			FieldWeatherCode:  NullValue(),
			FieldTemperatureC: NumberValue(-60),
		})
		if mut != nil {
			mut(&o)
		}
		return o
	}

	tests := []struct {
		name   string
		obs    Observation
		reason RejectReason
		field  Field
	}{
		{"valid", with(nil), "", ""},
		{"missing source", with(func(o *Observation) { o.Source = "" }), ReasonRequired, FieldSource},
		{"unknown source", with(func(o *Observation) { o.Source = "metar" }), ReasonSchema, FieldSource},
		{"missing station", with(func(o *Observation) { o.StationID = "" }), ReasonRequired, FieldStationID},
		{"missing timestamp", with(func(o *Observation) { o.Timestamp = time.Time{} }), ReasonRequired, FieldTimestamp},
		{"humidity 150", with(func(o *Observation) { o.Fields[FieldHumidityPct] = NumberValue(150) }), ReasonBounds, FieldHumidityPct},
		{"pressure low", with(func(o *Observation) { o.Fields[FieldPressureHpa] = NumberValue(500) }), ReasonBounds, FieldPressureHpa},
		{"direction 360", with(func(o *Observation) { o.Fields[FieldWindDirectionDeg] = NumberValue(360) }), ReasonBounds, FieldWindDirectionDeg},
		{"direction 359.9", with(func(o *Observation) { o.Fields[FieldWindDirectionDeg] = NumberValue(359.9) }), "", ""},
		{"negative gust", with(func(o *Observation) { o.Fields[FieldWindGustKmh] = NumberValue(-1) }), ReasonBounds, FieldWindGustKmh},
		{"text in numeric field", with(func(o *Observation) { o.Fields[FieldHumidityPct] = TextValue("87") }), ReasonSchema, FieldHumidityPct},
		{"number in text field", with(func(o *Observation) { o.Fields[FieldWeatherCode] = NumberValue(61) }), ReasonSchema, FieldWeatherCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.obs)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var rej *ValidationRejection
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tt.reason, rej.Reason)
			assert.Equal(t, tt.field, rej.Field)
			assert.Equal(t, "r1", rej.Rejection().Ref)
		})
	}
}

func TestCollapseByKey(t *testing.T) {
	a1 := testObservation("a1", map[Field]Value{FieldTemperatureC: NumberValue(1)})
	b := testObservation("b", nil)
	b.StationID = "ILAMAD25"
	a2 := testObservation("a2", map[Field]Value{FieldTemperatureC: NumberValue(2)})

	out, superseded := CollapseByKey([]Observation{a1, b, a2})

	assert.Equal(t, 1, superseded)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Ref)
	assert.Equal(t, "a2", out[1].Ref)
}

func TestUpsertResult_Merge(t *testing.T) {
	r := UpsertResult{Inserted: 1}
	r.Merge(UpsertResult{Inserted: 2, Updated: 3, Rejected: []Rejection{{Ref: "x", Reason: ReasonBounds}}})

	assert.Equal(t, UpsertResult{Inserted: 3, Updated: 3, Rejected: []Rejection{{Ref: "x", Reason: ReasonBounds}}}, r)
}
