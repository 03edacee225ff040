package inference

import (
	"fmt"
	"testing"

	"wisefido-collar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushAll(s *Stabilizer, labels ...models.Label) (models.Label, int) {
	var out models.Label
	changes := 0
	for _, l := range labels {
		var changed bool
		out, changed = s.Push(l)
		if changed {
			changes++
		}
	}
	return out, changes
}

func TestStabilizer_IgnoresSingleOutlier(t *testing.T) {
	const (
		A = models.LabelWalk
		B = models.LabelPlay
	)

	for threshold := 2; threshold <= 5; threshold++ {
		t.Run(fmt.Sprintf("threshold=%d", threshold), func(t *testing.T) {
			s := NewStabilizer(5, threshold)
			for i := 0; i < 10 && s.Current() != A; i++ {
				s.Push(A)
			}
			require.Equal(t, A, s.Current())

			for _, l := range []models.Label{A, A, B, A, A} {
				got, changed := s.Push(l)
				assert.Equal(t, A, got)
				assert.False(t, changed)
			}
		})
	}
}

func TestStabilizer_ConvergesOnConstantLabel(t *testing.T) {
	s := NewStabilizer(5, 3)
	pushAll(s, models.LabelRest, models.LabelRest, models.LabelRest, models.LabelRest, models.LabelRest)

	calls := 0
	for s.Current() != models.LabelRun && calls < 20 {
		s.Push(models.LabelRun)
		calls++
	}
	assert.Equal(t, models.LabelRun, s.Current())
	// 3 次让 RUN 成为多数，再连续 3 次提交
	assert.Equal(t, 5, calls)

	got, changes := pushAll(s, models.LabelRun, models.LabelRun, models.LabelRun)
	assert.Equal(t, models.LabelRun, got)
	assert.Zero(t, changes)
}

func TestStabilizer_CounterReanchorsOnNewCandidate(t *testing.T) {
	s := NewStabilizer(1, 3)

	got, _ := pushAll(s, models.LabelWalk, models.LabelWalk, models.LabelRun, models.LabelRun)
	assert.Equal(t, models.LabelRest, got)
	assert.Equal(t, 2, s.State().StableCount)
	assert.Equal(t, models.LabelRun, s.State().Pending)

	got, changed := s.Push(models.LabelRun)
	assert.Equal(t, models.LabelRun, got)
	assert.True(t, changed)
	assert.Zero(t, s.State().StableCount)
}

func TestStabilizer_ReturnToCurrentClearsCandidate(t *testing.T) {
	s := NewStabilizer(1, 3)

	pushAll(s, models.LabelWalk, models.LabelWalk, models.LabelRest)
	assert.Zero(t, s.State().StableCount)

	got, _ := pushAll(s, models.LabelWalk, models.LabelWalk)
	assert.Equal(t, models.LabelRest, got)
}

func TestStabilizer_TieGoesToLowestLabel(t *testing.T) {
	s := NewStabilizer(4, 3)
	pushAll(s, models.LabelRun, models.LabelWalk)

	st := s.State()
	assert.Equal(t, models.LabelWalk, st.Pending)
	assert.Equal(t, []models.Label{models.LabelRun, models.LabelWalk}, st.Recent)
}

func TestStabilizer_ClampsInvalidLabel(t *testing.T) {
	s := NewStabilizer(1, 1)
	got, changed := s.Push(models.Label(9))
	assert.Equal(t, models.LabelPlay, got)
	assert.True(t, changed)

	s.Reset()
	assert.Equal(t, models.LabelRest, s.Current())
	assert.Empty(t, s.State().Recent)
}
