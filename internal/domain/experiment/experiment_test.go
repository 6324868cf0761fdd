package experiment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVariants(t *testing.T) []*Variant {
	t.Helper()
	control, err := NewVariant("Control", "baseline experience", true, map[string]any{"layout": "classic"})
	require.NoError(t, err)
	treatment, err := NewVariant("Treatment", "new experience", false, map[string]any{"layout": "compact"})
	require.NoError(t, err)
	return []*Variant{control, treatment}
}

func newTestExperiment(t *testing.T) *Experiment {
	t.Helper()
	exp, err := NewExperiment("Search ranking test", "compare rankers", TypeSearchAlgorithm, newTestVariants(t))
	require.NoError(t, err)
	return exp
}

func TestNewExperiment(t *testing.T) {
	t.Run("creates draft experiment with variants", func(t *testing.T) {
		exp := newTestExperiment(t)

		assert.Equal(t, StatusDraft, exp.Status)
		assert.Equal(t, TypeSearchAlgorithm, exp.Type)
		assert.Len(t, exp.Variants, 2)
		assert.NotNil(t, exp.ControlVariant())
		assert.Equal(t, exp.ID, exp.Variants[0].ExperimentID)
		assert.Nil(t, exp.StartDate)
		assert.False(t, exp.HasWinner)

		events := exp.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeExperimentCreated, events[0].EventType())
	})

	t.Run("rejects empty variant list", func(t *testing.T) {
		_, err := NewExperiment("Test", "", TypeUIComponent, nil)
		assert.Error(t, err)
	})

	t.Run("rejects variant set without control", func(t *testing.T) {
		v, err := NewVariant("Treatment", "", false, nil)
		require.NoError(t, err)

		_, err = NewExperiment("Test", "", TypeUIComponent, []*Variant{v})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "control")
	})

	t.Run("rejects invalid type", func(t *testing.T) {
		_, err := NewExperiment("Test", "", ExperimentType("bogus"), newTestVariants(t))
		assert.Error(t, err)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewExperiment("", "", TypeUIComponent, newTestVariants(t))
		assert.Error(t, err)
	})
}

func TestExperimentLifecycle(t *testing.T) {
	t.Run("start from draft sets start date", func(t *testing.T) {
		exp := newTestExperiment(t)

		err := exp.Start()

		assert.NoError(t, err)
		assert.Equal(t, StatusRunning, exp.Status)
		assert.NotNil(t, exp.StartDate)
	})

	t.Run("start is rejected while running", func(t *testing.T) {
		exp := newTestExperiment(t)
		require.NoError(t, exp.Start())

		err := exp.Start()

		assert.Error(t, err)
		assert.Equal(t, StatusRunning, exp.Status)
	})

	t.Run("pause only from running", func(t *testing.T) {
		exp := newTestExperiment(t)

		assert.Error(t, exp.Pause())

		require.NoError(t, exp.Start())
		assert.NoError(t, exp.Pause())
		assert.Equal(t, StatusPaused, exp.Status)
	})

	t.Run("resuming a paused experiment re-stamps the start date", func(t *testing.T) {
		exp := newTestExperiment(t)
		require.NoError(t, exp.Start())
		require.NotNil(t, exp.StartDate)
		firstStart := *exp.StartDate
		require.NoError(t, exp.Pause())
		time.Sleep(time.Millisecond)

		err := exp.Start()

		assert.NoError(t, err)
		assert.Equal(t, StatusRunning, exp.Status)
		require.NotNil(t, exp.StartDate)
		assert.True(t, exp.StartDate.After(firstStart))
	})

	t.Run("complete from running sets end date", func(t *testing.T) {
		exp := newTestExperiment(t)
		require.NoError(t, exp.Start())

		err := exp.Complete()

		assert.NoError(t, err)
		assert.Equal(t, StatusCompleted, exp.Status)
		assert.NotNil(t, exp.EndDate)
	})

	t.Run("complete from paused", func(t *testing.T) {
		exp := newTestExperiment(t)
		require.NoError(t, exp.Start())
		require.NoError(t, exp.Pause())

		assert.NoError(t, exp.Complete())
	})

	t.Run("complete from draft is rejected", func(t *testing.T) {
		exp := newTestExperiment(t)
		assert.Error(t, exp.Complete())
	})

	t.Run("archive is rejected while running", func(t *testing.T) {
		exp := newTestExperiment(t)
		require.NoError(t, exp.Start())

		err := exp.Archive()

		assert.Error(t, err)
		assert.Equal(t, StatusRunning, exp.Status)
	})

	t.Run("archive from completed", func(t *testing.T) {
		exp := newTestExperiment(t)
		require.NoError(t, exp.Start())
		require.NoError(t, exp.Complete())

		assert.NoError(t, exp.Archive())
		assert.Equal(t, StatusArchived, exp.Status)
	})

	t.Run("archive from draft", func(t *testing.T) {
		exp := newTestExperiment(t)
		assert.NoError(t, exp.Archive())
	})

	t.Run("archive twice is rejected", func(t *testing.T) {
		exp := newTestExperiment(t)
		require.NoError(t, exp.Archive())
		assert.Error(t, exp.Archive())
	})

	t.Run("lifecycle transitions emit events", func(t *testing.T) {
		exp := newTestExperiment(t)
		exp.ClearDomainEvents()

		require.NoError(t, exp.Start())
		require.NoError(t, exp.Pause())
		require.NoError(t, exp.Complete())
		require.NoError(t, exp.Archive())

		events := exp.GetDomainEvents()
		require.Len(t, events, 4)
		assert.Equal(t, EventTypeExperimentStarted, events[0].EventType())
		assert.Equal(t, EventTypeExperimentPaused, events[1].EventType())
		assert.Equal(t, EventTypeExperimentCompleted, events[2].EventType())
		assert.Equal(t, EventTypeExperimentArchived, events[3].EventType())
	})
}

func TestExperimentDeclareWinner(t *testing.T) {
	t.Run("declares winner from own variants", func(t *testing.T) {
		exp := newTestExperiment(t)
		winner := exp.Variants[1]

		err := exp.DeclareWinner(winner.ID)

		assert.NoError(t, err)
		assert.True(t, exp.HasWinner)
		require.NotNil(t, exp.WinningVariantID)
		assert.Equal(t, winner.ID, *exp.WinningVariantID)
		assert.True(t, exp.VariantByID(winner.ID).IsWinner)
	})

	t.Run("rejects foreign variant", func(t *testing.T) {
		exp := newTestExperiment(t)

		err := exp.DeclareWinner(uuid.New())

		assert.Error(t, err)
		assert.False(t, exp.HasWinner)
	})
}

func TestExperimentReplaceVariants(t *testing.T) {
	t.Run("replaces variant set", func(t *testing.T) {
		exp := newTestExperiment(t)
		replacement := newTestVariants(t)

		err := exp.ReplaceVariants(replacement)

		assert.NoError(t, err)
		assert.Len(t, exp.Variants, 2)
		assert.Equal(t, exp.ID, exp.Variants[0].ExperimentID)
	})

	t.Run("re-validates control invariant", func(t *testing.T) {
		exp := newTestExperiment(t)
		v, err := NewVariant("Only treatment", "", false, nil)
		require.NoError(t, err)

		err = exp.ReplaceVariants([]*Variant{v})

		assert.Error(t, err)
		assert.Len(t, exp.Variants, 2)
	})
}

func TestExperimentUpdateDetails(t *testing.T) {
	t.Run("merges non-zero fields", func(t *testing.T) {
		exp := newTestExperiment(t)
		pct := 50.0

		err := exp.UpdateDetails("Renamed", "", "users click more", "ctr", []string{"revenue"}, nil, &pct, nil)

		assert.NoError(t, err)
		assert.Equal(t, "Renamed", exp.Name)
		assert.Equal(t, "compare rankers", exp.Description)
		assert.Equal(t, "users click more", exp.Hypothesis)
		require.NotNil(t, exp.AudiencePercentage)
		assert.Equal(t, 50.0, *exp.AudiencePercentage)
	})

	t.Run("rejects audience percentage out of range", func(t *testing.T) {
		exp := newTestExperiment(t)
		pct := 150.0

		err := exp.UpdateDetails("", "", "", "", nil, nil, &pct, nil)

		assert.Error(t, err)
		assert.Nil(t, exp.AudiencePercentage)
	})
}

func TestStatusAndTypeValidation(t *testing.T) {
	for _, s := range AllStatuses() {
		assert.True(t, s.IsValid(), s.String())
	}
	assert.False(t, ExperimentStatus("live").IsValid())

	for _, ty := range AllTypes() {
		assert.True(t, ty.IsValid(), ty.String())
	}
	assert.False(t, ExperimentType("checkout").IsValid())

	for _, rt := range AllResultTypes() {
		assert.True(t, rt.IsValid(), rt.String())
	}
	assert.False(t, ResultType("view").IsValid())
}
