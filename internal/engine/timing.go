package engine

import "time"

// DefaultMaxDelta caps the simulated time step of a single frame.
const DefaultMaxDelta = 100 * time.Millisecond

// statsWindow is the real-time span one FPS snapshot covers.
const statsWindow = time.Second

// PhaseDurations is the wall time spent in each step of a sampled frame.
type PhaseDurations struct {
	Drain  time.Duration `json:"drain"`
	Pre    time.Duration `json:"pre"`
	Normal time.Duration `json:"normal"`
	Layers time.Duration `json:"layers"`
	Post   time.Duration `json:"post"`
	Render time.Duration `json:"render"`
}

// Total returns the sum of all phase durations.
func (p PhaseDurations) Total() time.Duration {
	return p.Drain + p.Pre + p.Normal + p.Layers + p.Post + p.Render
}

// Stats is the snapshot taken on the frame that closes a one-second window.
type Stats struct {
	Session   string         `json:"session"`
	Frame     uint64         `json:"frame"`
	FPS       int            `json:"fps"`
	FrameTime time.Duration  `json:"frame_time"` // average over the window
	Phases    PhaseDurations `json:"phases"`
	Minimized bool           `json:"minimized"`
}

// StatsSink receives a Stats snapshot once per elapsed second.
//
// Sink errors are logged by the engine and never fail the frame.
type StatsSink interface {
	RecordStats(s Stats) error
}

// frameTimer measures deltas and counts frames per real second.
//
// Main goroutine only.
type frameTimer struct {
	maxDelta time.Duration

	started     bool
	last        time.Time
	windowStart time.Time
	frames      int // frames begun in the current window
	fps         int
	frameTime   time.Duration
	elapsed     time.Duration // sum of clamped deltas
}

func newFrameTimer(maxDelta time.Duration) *frameTimer {
	return &frameTimer{maxDelta: maxDelta}
}

// tick starts a frame at now. It returns the clamped delta since the
// previous frame and whether this frame closed a one-second window (the FPS
// snapshot changed).
//
// The first frame has zero delta. A clock that steps backwards yields zero
// delta rather than a negative one.
func (t *frameTimer) tick(now time.Time) (delta time.Duration, boundary bool) {
	if !t.started {
		t.started = true
		t.last = now
		t.windowStart = now
		t.frames = 1
		return 0, false
	}

	delta = now.Sub(t.last)
	t.last = now
	if delta < 0 {
		delta = 0
	}
	if delta > t.maxDelta {
		delta = t.maxDelta
	}
	t.elapsed += delta

	if window := now.Sub(t.windowStart); window >= statsWindow {
		t.fps = t.frames
		t.frameTime = window / time.Duration(t.frames)
		t.frames = 0
		t.windowStart = now
		boundary = true
	}
	t.frames++
	return delta, boundary
}

// stopwatch times consecutive steps of a frame. Disabled stopwatches never
// read the clock.
type stopwatch struct {
	clock Clock
	on    bool
	mark  time.Time
}

func (s *stopwatch) start(clock Clock, on bool) {
	s.clock = clock
	s.on = on
	if on {
		s.mark = clock.Now()
	}
}

// lap stores the time since the previous lap into d.
func (s *stopwatch) lap(d *time.Duration) {
	if !s.on {
		return
	}
	now := s.clock.Now()
	*d = now.Sub(s.mark)
	s.mark = now
}
