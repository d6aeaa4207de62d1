package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAverage(t *testing.T) {
	tests := []struct {
		name  string
		votes []string
		want  *float64
	}{
		{name: "ignores non numeric", votes: []string{"3", "5", "?"}, want: ptr(4.0)},
		{name: "rounds to one decimal", votes: []string{"1", "2", "2"}, want: ptr(1.7)},
		{name: "half point", votes: []string{"5", "8"}, want: ptr(6.5)},
		{name: "decimal votes", votes: []string{"0.5", " 1 "}, want: ptr(0.8)},
		{name: "no numeric votes", votes: []string{"?", "+"}, want: nil},
		{name: "infinity is not a number", votes: []string{"Inf", "NaN"}, want: nil},
		{name: "empty", votes: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Average(tt.votes)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestComputeStatistics(t *testing.T) {
	st := ComputeStatistics([]string{"5", "8", "5", "?"})

	assert.Equal(t, map[string]int{"5": 2, "8": 1, "?": 1}, st.Distribution)
	require.NotNil(t, st.MostCommon)
	assert.Equal(t, "5", *st.MostCommon)
	require.NotNil(t, st.Average)
	assert.Equal(t, 6.0, *st.Average)
}

func TestComputeStatistics_TieBreaksDeterministically(t *testing.T) {
	st := ComputeStatistics([]string{"8", "3"})
	require.NotNil(t, st.MostCommon)
	assert.Equal(t, "3", *st.MostCommon)

	empty := ComputeStatistics(nil)
	assert.Nil(t, empty.MostCommon)
	assert.Nil(t, empty.Average)
	assert.Empty(t, empty.Distribution)
}

func ptr(f float64) *float64 { return &f }
