package strategy

import (
	"testing"

	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_Select(t *testing.T) {
	s := NewSelector(0)

	tests := []struct {
		name  string
		sizes []int64
		want  Strategy
	}{
		{"one small", []int64{1 * common.MB}, Single},
		{"one at threshold", []int64{25 * common.MB}, Single},
		{"one above threshold", []int64{25*common.MB + 1}, Progressive},
		{"two small", []int64{10, 20}, Batch},
		{"many with a big one", []int64{30 * common.MB, 10}, Batch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Select(tt.sizes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelector_Empty(t *testing.T) {
	_, err := NewSelector(100).Select(nil)
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestFallbackChain(t *testing.T) {
	assert.Equal(t, Single, Fallback(Progressive))
	assert.Equal(t, Single, Fallback(Batch))
	assert.Equal(t, Emergency, Fallback(Single))
	assert.Equal(t, None, Fallback(Emergency))
	assert.Equal(t, None, Fallback(None))

	// the chain always terminates at the floor
	for _, start := range []Strategy{Progressive, Batch, Single, Emergency} {
		s, steps := start, 0
		for s != None {
			s = Fallback(s)
			steps++
		}
		assert.LessOrEqual(t, steps, 3)
	}
}

func TestParse(t *testing.T) {
	s, ok := Parse("emergency")
	assert.True(t, ok)
	assert.Equal(t, Emergency, s)

	_, ok = Parse("turbo")
	assert.False(t, ok)
	assert.Equal(t, "none", None.String())
}

func TestSimpler(t *testing.T) {
	assert.True(t, Simpler(Single, Progressive))
	assert.True(t, Simpler(Emergency, Batch))
	assert.True(t, Simpler(Emergency, Single))
	assert.False(t, Simpler(Single, Single))
	assert.False(t, Simpler(Progressive, Single))
	assert.False(t, Simpler(Batch, Progressive))
	assert.False(t, Simpler(None, Single))
}
