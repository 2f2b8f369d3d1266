package conjecture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSettingsDefaults(t *testing.T) {
	s := NewSettings()
	require.Equal(t, 100, s.MaxExamples)
	require.Equal(t, 8192, s.BufferSize)
	require.Equal(t, time.Duration(0), s.Timeout)
	require.NotNil(t, s.Database)
	require.True(t, s.Phases[PhaseReuse])
	require.True(t, s.Phases[PhaseGenerate])
	require.True(t, s.Phases[PhaseShrink])
}

func TestSettingsOptionsOverrideDefaults(t *testing.T) {
	db := NewMemoryDatabase()
	s := NewSettings(
		WithMaxExamples(42),
		WithBufferSize(256),
		WithTimeout(5*time.Second),
		WithDatabase(db),
		WithVerbosity(2),
	)
	require.Equal(t, 42, s.MaxExamples)
	require.Equal(t, 256, s.BufferSize)
	require.Equal(t, 5*time.Second, s.Timeout)
	require.Same(t, db, s.Database)
	require.Equal(t, 2, s.Verbosity)
}

func TestWithPhasesReplacesDefaultSet(t *testing.T) {
	s := NewSettings(WithPhases(PhaseGenerate))
	require.False(t, s.Phases[PhaseReuse])
	require.True(t, s.Phases[PhaseGenerate])
	require.False(t, s.Phases[PhaseShrink])
}

func TestSettingsDerivedValues(t *testing.T) {
	s := NewSettings(WithBufferSize(1000))
	require.Equal(t, 500, s.cap())

	s2 := NewSettings(WithMaxExamples(20))
	require.Equal(t, 1000, s2.maxIterations()) // max(20*10, 1000)

	s3 := NewSettings(WithMaxExamples(500))
	require.Equal(t, 5000, s3.maxIterations()) // max(500*10, 1000)
}

func TestReuseBudgetHasFloorOfTwo(t *testing.T) {
	s := NewSettings(WithMaxExamples(5))
	require.Equal(t, 2, s.reuseBudget()) // ceil(0.1*5) = 1, floored up to 2

	s2 := NewSettings(WithMaxExamples(100))
	require.Equal(t, 10, s2.reuseBudget())
}
