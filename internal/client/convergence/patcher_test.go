package convergence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// laggyForm ignores the first `drop` writes.
type laggyForm struct {
	drop    int
	sets    int
	current string
	readErr error
}

func (f *laggyForm) SetImageRef(_ context.Context, ref string) error {
	f.sets++
	if f.sets > f.drop {
		f.current = ref
	}
	return nil
}

func (f *laggyForm) ImageRef(context.Context) (string, error) {
	return f.current, f.readErr
}

type sleeps struct{ d []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.d = append(s.d, d)
	return nil
}

func TestPatch_ConvergesFirstTry(t *testing.T) {
	s := &sleeps{}
	p := NewPatcher(nil, WithSleeper(s.sleep))

	form := &MemoryForm{}
	res, err := p.Patch(context.Background(), form, "2026/a.png")
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, s.d)

	got, _ := form.ImageRef(context.Background())
	assert.Equal(t, "2026/a.png", got)
}

func TestPatch_RetriesWithGrowingDelay(t *testing.T) {
	s := &sleeps{}
	p := NewPatcher(nil, WithSleeper(s.sleep))

	form := &laggyForm{drop: 2}
	res, err := p.Patch(context.Background(), form, "ref")
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 3, res.Attempts)
	assert.Empty(t, res.Warning)
	assert.Equal(t, []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond, 50 * time.Millisecond,
		200 * time.Millisecond, 50 * time.Millisecond,
	}, s.d)
}

func TestPatch_FallsBackToUnverifiedSet(t *testing.T) {
	s := &sleeps{}
	p := NewPatcher(nil, WithSleeper(s.sleep))

	form := &laggyForm{drop: 4}
	res, err := p.Patch(context.Background(), form, "ref")
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 4, res.Attempts)
	assert.NotEmpty(t, res.Warning)
	assert.Equal(t, 5, form.sets)
	assert.Equal(t, "ref", form.current)
}

func TestPatch_ReadErrorsCountAsMismatch(t *testing.T) {
	s := &sleeps{}
	p := NewPatcher(nil, WithSleeper(s.sleep), WithTimings(time.Millisecond, time.Millisecond, 1))

	form := &laggyForm{readErr: errors.New("form detached")}
	res, err := p.Patch(context.Background(), form, "ref")
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 3, form.sets)
}

func TestPatch_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPatcher(nil)
	_, err := p.Patch(ctx, &laggyForm{drop: 10}, "ref")
	assert.ErrorIs(t, err, context.Canceled)
}
