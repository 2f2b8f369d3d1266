package conjecture

import "time"

// Phase names a stage of Engine.Run that Settings.Phases may enable.
type Phase string

const (
	PhaseReuse    Phase = "reuse"
	PhaseGenerate Phase = "generate"
	PhaseShrink   Phase = "shrink"
)

// Settings is the recognized configuration surface (§6).
type Settings struct {
	MaxExamples int
	BufferSize  int
	Timeout     time.Duration
	Phases      map[Phase]bool
	Database    Database
	Verbosity   int
}

// Option configures a Settings value built by NewSettings.
type Option func(*Settings)

// NewSettings builds a Settings with the engine's defaults, then applies
// opts in order.
func NewSettings(opts ...Option) *Settings {
	s := &Settings{
		MaxExamples: 100,
		BufferSize:  8192,
		Timeout:     0,
		Phases: map[Phase]bool{
			PhaseReuse:    true,
			PhaseGenerate: true,
			PhaseShrink:   true,
		},
		Database:  NewMemoryDatabase(),
		Verbosity: 0,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithMaxExamples(n int) Option {
	return func(s *Settings) { s.MaxExamples = n }
}

func WithBufferSize(n int) Option {
	return func(s *Settings) { s.BufferSize = n }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Settings) { s.Timeout = d }
}

func WithDatabase(db Database) Option {
	return func(s *Settings) { s.Database = db }
}

func WithPhases(phases ...Phase) Option {
	return func(s *Settings) {
		s.Phases = make(map[Phase]bool, len(phases))
		for _, p := range phases {
			s.Phases[p] = true
		}
	}
}

func WithVerbosity(v int) Option {
	return func(s *Settings) { s.Verbosity = v }
}

func (s *Settings) cap() int {
	return s.BufferSize / 2
}

func (s *Settings) maxIterations() int {
	if s.MaxExamples*10 > 1000 {
		return s.MaxExamples * 10
	}
	return 1000
}

func (s *Settings) reuseBudget() int {
	n := (s.MaxExamples + 9) / 10 // ceil(0.1 * max_examples)
	if n < 2 {
		return 2
	}
	return n
}
