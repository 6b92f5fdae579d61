package queryir

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKindRoundTrip(t *testing.T) {
	for k := KindBool; k <= KindObject; k++ {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("float32")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	when := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	id := uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301")

	tests := []struct {
		name  string
		value any
		kind  Kind
		want  any
	}{
		{"nil", nil, KindInt64, nil},
		{"int to int64", 7, KindInt64, int64(7)},
		{"int32", int32(7), KindInt32, int64(7)},
		{"uint64", uint64(1 << 63), KindUint64, uint64(1 << 63)},
		{"int to float", 3, KindFloat64, 3.0},
		{"decimal from string", "1.50", KindDecimal, decimal.RequireFromString("1.50")},
		{"date truncates", when, KindDate, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"uuid from string", id.String(), KindUUID, id},
		{"string slice", []string{"a"}, KindArray, []any{"a"}},
		{"duration", time.Hour, KindTimeSpan, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.value, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name  string
		value any
		kind  Kind
	}{
		{"string as int", "7", KindInt64},
		{"int32 overflow", int64(1) << 40, KindInt32},
		{"negative uint64", -1, KindUint64},
		{"bad uuid", "not-a-uuid", KindUUID},
		{"fractional int", 1.5, KindInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.value, tt.kind)
			assert.Error(t, err)
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInt64, KindOf(5))
	assert.Equal(t, KindString, KindOf("x"))
	assert.Equal(t, KindDecimal, KindOf(decimal.NewFromInt(1)))
	assert.Equal(t, KindTimeSpan, KindOf(time.Minute))
	assert.Equal(t, KindArray, KindOf([]string{"a"}))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, KindDecimal.IsNumeric())
	assert.False(t, KindString.IsNumeric())
	assert.True(t, KindUint64.IsIntegral())
	assert.True(t, KindTimeSpan.IsTemporal())
	assert.False(t, KindArray.Comparable())
	assert.True(t, KindUUID.Comparable())
}
