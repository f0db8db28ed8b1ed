package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionDateResolver(t *testing.T) {
	r := PartitionDateResolver{}
	day := func(h, m int) time.Time { return time.Date(2024, 10, 1, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name    string
		clock   string
		context string
		want    time.Time
	}{
		{"midnight 12h", "12:04 AM", "011024", day(0, 4)},
		{"noon 12h", "12:00 PM", "011024", day(12, 0)},
		{"afternoon 12h no space", "3:15PM", "011024", day(15, 15)},
		{"late evening", "11:59 PM", "011024", day(23, 59)},
		{"lowercase marker", "7:05 am", "011024", day(7, 5)},
		{"24h", "15:30", "011024", day(15, 30)},
		{"24h with seconds", "07:45:30", "011024", day(7, 45)},
		{"compact HHMM", "1510", "011024", day(15, 10)},
		{"compact HMM", "930", "011024", day(9, 30)},
		{"sheet in workbook path", "01:00 AM", "IICHTE19.xlsx#011024", day(1, 0)},
		{"object key segment", "01:00 AM", "raw/wu/ILAMAD25/011024/part-0.json", day(1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.clock, tt.context)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestPartitionDateResolver_Layout(t *testing.T) {
	r := PartitionDateResolver{Layout: "010206"} // MMDDYY

	got, err := r.Resolve("12:04 AM", "100124")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 1, 0, 4, 0, 0, time.UTC), got)
}

func TestPartitionDateResolver_Errors(t *testing.T) {
	r := PartitionDateResolver{}

	tests := []struct {
		name    string
		clock   string
		context string
		noDate  bool
	}{
		{"no date in context", "12:04 AM", "Sheet1", true},
		{"impossible date", "12:04 AM", "321324", true},
		{"date too long", "12:04 AM", "20241001", true},
		{"empty time", "", "011024", false},
		{"hour out of range", "25:00", "011024", false},
		{"13 PM", "13:04 PM", "011024", false},
		{"garbage time", "noonish", "011024", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.clock, tt.context)
			require.Error(t, err)
			assert.Equal(t, tt.noDate, errors.Is(err, errNoDateSegment))
		})
	}
}

func TestAbsoluteResolver(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-10-01 00:00:00", time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-10-01T05:30:45", time.Date(2024, 10, 1, 5, 30, 0, 0, time.UTC)},
		{"2024-10-01T05:30:45Z", time.Date(2024, 10, 1, 5, 30, 0, 0, time.UTC)},
		{"2024-10-01T07:30:00+02:00", time.Date(2024, 10, 1, 5, 30, 0, 0, time.UTC)},
		{" 2024-10-01 13:15 ", time.Date(2024, 10, 1, 13, 15, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := AbsoluteResolver{}.Resolve(tt.in, "ignored")
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}

	_, err := AbsoluteResolver{}.Resolve("01/10/2024", "")
	assert.Error(t, err)
}

func TestResolvers_Timestamp(t *testing.T) {
	rs := DefaultResolvers(DefaultPartitionLayout)
	fields := map[Field]Value{FieldTemperatureC: NumberValue(14.3)}

	t.Run("partition", func(t *testing.T) {
		obs, err := rs.Timestamp(Normalized{
			Ref: "r1", Source: SourceWeatherUnderground, StationID: "IICHTE19",
			TimeText: "12:04 AM", TimeContext: "011024", TimeMode: TimePartition, Fields: fields,
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 10, 1, 0, 4, 0, 0, time.UTC), obs.Timestamp)
		assert.Equal(t, "IICHTE19", obs.StationID)
		assert.Equal(t, fields, obs.Fields)
		assert.Empty(t, obs.RecordHash)
	})

	t.Run("unresolvable", func(t *testing.T) {
		_, err := rs.Timestamp(Normalized{Ref: "r2", TimeText: "12:04 AM", TimeContext: "Sheet1", TimeMode: TimePartition})
		var tsErr *TimestampError
		require.True(t, errors.As(err, &tsErr))
		assert.Equal(t, "r2", tsErr.Ref)
		assert.ErrorIs(t, err, errNoDateSegment)
		assert.Equal(t, ReasonTimestamp, tsErr.Rejection().Reason)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := rs.Timestamp(Normalized{Ref: "r3", TimeMode: "relative"})
		var tsErr *TimestampError
		require.True(t, errors.As(err, &tsErr))
		assert.Contains(t, err.Error(), "relative")
	})
}
