package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)

	got, ok := ParseTime(" " + strconv.FormatInt(want.Unix(), 10) + " ")
	require.True(t, ok)
	assert.True(t, want.Equal(got))

	got, ok = ParseTime(strconv.FormatInt(want.UnixMilli(), 10))
	require.True(t, ok)
	assert.True(t, want.Equal(got))

	for _, s := range []string{"", "-5", "2024-10-10", "1.5e9"} {
		_, ok := ParseTime(s)
		assert.False(t, ok, s)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2023-03-31", " 2023/03/31 ", "31.03.2023", "03/31/2023", "2023-03-31T00:00:00Z"} {
		got, ok := ParseDate(s)
		require.True(t, ok, s)
		assert.True(t, want.Equal(got), "%s -> %v", s, got)
	}

	_, ok := ParseDate("not a date")
	assert.False(t, ok)
	_, ok = ParseDate("")
	assert.False(t, ok)
}

func TestParseExcelSerial(t *testing.T) {
	got, ok := ParseExcelSerial("45016")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseExcelSerial("abc")
	assert.False(t, ok)
}

func TestNextMonth(t *testing.T) {
	tests := []struct {
		in, want time.Time
	}{
		{time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2023, 2, 15, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 1, 30, 0, 0, 0, 0, time.UTC), time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextMonth(tt.in), tt.in.String())
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{" 1 200,50 ", 1200.5, true},
		{"1,234.5", 1234.5, true},
		{"-3", -3, true},
		{"", 0, false},
		{"NaN", 0, false},
		{"null", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, tt.in)
		}
	}
}
