package modules

import (
	"time"

	"github.com/roach88/kiln/internal/module"
)

// TimeRegistrant registers the time module.
type TimeRegistrant struct{}

func (TimeRegistrant) Register(r *module.Registry) error {
	return r.Register(TimeID, func(module.Resolver) (module.Module, error) {
		return &Time{scale: 1}, nil
	}, nil, module.UpdateNormal, module.DestroyNormal)
}

// Time is the simulation clock. It advances by the clamped frame delta,
// scaled, so a paused or slowed simulation never sees wall-clock jumps.
type Time struct {
	scale   float64
	delta   time.Duration
	elapsed time.Duration
	frames  uint64
}

func (m *Time) Update(f module.Frame) error {
	m.delta = time.Duration(float64(f.Delta) * m.scale)
	m.elapsed += m.delta
	m.frames++
	return nil
}

// SetScale sets the time scale. Zero pauses; negative values are treated
// as zero.
func (m *Time) SetScale(s float64) {
	m.scale = max(s, 0)
}

// Scale returns the time scale.
func (m *Time) Scale() float64 { return m.scale }

// Delta returns the scaled delta of the last frame.
func (m *Time) Delta() time.Duration { return m.delta }

// Elapsed returns the total scaled simulation time.
func (m *Time) Elapsed() time.Duration { return m.elapsed }

// Frames returns how many frames the clock has seen.
func (m *Time) Frames() uint64 { return m.frames }
