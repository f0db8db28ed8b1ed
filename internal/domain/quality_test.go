package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreBatch(t *testing.T) {
	accepted := []Observation{
		testObservation("r1", map[Field]Value{
			FieldHumidityPct:      NumberValue(87),
			FieldTemperatureC:     NumberValue(14),
			FieldWindDirectionDeg: NullValue(),
		}),
		testObservation("r2", map[Field]Value{
			FieldHumidityPct:      NumberValue(150),
			FieldTemperatureC:     NullValue(),
			FieldWindDirectionDeg: NumberValue(360),
			FieldDewPointC:        NumberValue(-90), // unbounded
		}),
	}
	rejected := []Rejection{
		{Ref: "r3", Reason: ReasonMapping},
		{Ref: "r4", Reason: ReasonDuplicate},
	}

	r := ScoreBatch(PhasePreLoad, accepted, rejected)

	assert.Equal(t, PhasePreLoad, r.Phase)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 2, r.Accepted)
	assert.Equal(t, 2, r.Rejected)
	assert.Equal(t, map[RejectReason]int{ReasonMapping: 1, ReasonDuplicate: 1}, r.RejectedByReason)
	assert.Equal(t, 1, r.DuplicateCount)
	assert.InDelta(t, 0.5, r.ErrorRate, 1e-9)

	assert.Equal(t, 1, r.RangeViolations[FieldHumidityPct])
	assert.Equal(t, 1, r.RangeViolations[FieldWindDirectionDeg])
	assert.Equal(t, 0, r.RangeViolations[FieldPressureHpa])
	assert.Contains(t, r.RangeViolations, FieldPressureHpa, "bounded fields are zero-filled")
	assert.NotContains(t, r.RangeViolations, FieldDewPointC)
	assert.Equal(t, 2, r.TotalRangeViolations())

	assert.InDelta(t, 0.5, r.NullRate[FieldTemperatureC], 1e-9)
	assert.InDelta(t, 0.5, r.NullRate[FieldWindDirectionDeg], 1e-9)
	assert.InDelta(t, 0.0, r.NullRate[FieldHumidityPct], 1e-9)
	assert.InDelta(t, 1.0, r.AbsentRate[FieldVisibilityM], 1e-9)
	assert.InDelta(t, 0.5, r.AbsentRate[FieldDewPointC], 1e-9)
	assert.Len(t, r.NullRate, len(FieldSpecs()))
}

func TestScoreBatch_Empty(t *testing.T) {
	r := ScoreBatch(PhasePostLoad, nil, nil)

	assert.Equal(t, 0, r.Total)
	assert.Equal(t, 0.0, r.ErrorRate)
	assert.Equal(t, 0.0, r.NullRate[FieldTemperatureC])
	assert.Empty(t, r.RejectedByReason)
}

func TestScoreBatch_AllRejected(t *testing.T) {
	r := ScoreBatch(PhasePreLoad, nil, []Rejection{{Ref: "a", Reason: ReasonTimestamp}})

	assert.Equal(t, 1, r.Total)
	assert.Equal(t, 0, r.Accepted)
	assert.Equal(t, 1.0, r.ErrorRate)
}

func TestQualityReport_JSON(t *testing.T) {
	r := ScoreBatch(PhasePreLoad, nil, []Rejection{{Ref: "a", Reason: ReasonMapping}})

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"total", "accepted", "rejected", "rejected_by_reason", "null_rate", "range_violations", "duplicate_count", "error_rate"} {
		assert.Contains(t, doc, key)
	}
	assert.Equal(t, map[string]any{"mapping": 1.0}, doc["rejected_by_reason"])
}

func TestScorePostLoad(t *testing.T) {
	valid := testObservation("r1", map[Field]Value{FieldPressureHpa: NumberValue(1013)})
	bad := testObservation("r2", map[Field]Value{FieldPressureHpa: NumberValue(500)})
	bad.StationID = "ILAMAD25"
	upstream := []Rejection{{Ref: "r3", Reason: ReasonMapping}, {Ref: "r4", Reason: ReasonDuplicate}}
	res := UpsertResult{Inserted: 1, Rejected: []Rejection{{Ref: "r2", Reason: ReasonBounds}}}

	r := ScorePostLoad([]Observation{valid, bad}, upstream, res)

	assert.Equal(t, PhasePostLoad, r.Phase)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 1, r.Accepted)
	assert.Equal(t, 3, r.Rejected)
	assert.Equal(t, map[RejectReason]int{ReasonMapping: 1, ReasonDuplicate: 1, ReasonBounds: 1}, r.RejectedByReason)
	assert.Equal(t, 0, r.RangeViolations[FieldPressureHpa], "refused records are not scored as stored")
	require.NotNil(t, r.Load)
	assert.Equal(t, 1, r.Load.Inserted)
	assert.Equal(t, []Rejection{{Ref: "r2", Reason: ReasonBounds}}, r.Load.Rejected)
}
