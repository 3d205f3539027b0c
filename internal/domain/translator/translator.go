package translator

import (
	"fmt"
	"math"

	"lighting-bridge/internal/domain/model"
)

// Scale translates brightness between the device-abstraction level
// (internal) and the daemon's coarse brightness (external).
//
// Both directions scale linearly as out = outMin + in*outMax/inMax, truncating
// toward zero, then clamp into [outMin, outMax]. Round trips are therefore not
// the identity: ToInternal(ToExternal(x)) is usually larger than x.
type Scale struct {
	InternalMin uint32
	InternalMax uint32
	ExternalMin uint32
	ExternalMax uint32
}

// DefaultScale is 1-254 on the device-abstraction side and 1-5 on the daemon.
var DefaultScale = Scale{InternalMin: 1, InternalMax: 254, ExternalMin: 1, ExternalMax: 5}

func NewScale(cfg model.ScaleConfig) Scale {
	return Scale{
		InternalMin: cfg.InternalMin,
		InternalMax: cfg.InternalMax,
		ExternalMin: cfg.ExternalMin,
		ExternalMax: cfg.ExternalMax,
	}
}

func (s Scale) Validate() error {
	if s.InternalMax == 0 || s.ExternalMax == 0 {
		return fmt.Errorf("scale maxima must be positive (internal %d, external %d)", s.InternalMax, s.ExternalMax)
	}
	if s.InternalMin > s.InternalMax {
		return fmt.Errorf("internal_min %d exceeds internal_max %d", s.InternalMin, s.InternalMax)
	}
	if s.ExternalMin > s.ExternalMax {
		return fmt.Errorf("external_min %d exceeds external_max %d", s.ExternalMin, s.ExternalMax)
	}
	if s.InternalMax > 255 {
		return fmt.Errorf("internal_max %d does not fit a level", s.InternalMax)
	}
	// The daemon takes brightness as int32
	if s.ExternalMax > math.MaxInt32 {
		return fmt.Errorf("external_max %d exceeds %d", s.ExternalMax, math.MaxInt32)
	}
	return nil
}

// ToExternal converts a local level into the daemon's brightness.
func (s Scale) ToExternal(level model.Level) uint32 {
	return uint32(scale(uint64(level), s.ExternalMin, s.ExternalMax, s.InternalMax))
}

// ToInternal converts the daemon's brightness into a local level.
func (s Scale) ToInternal(brightness uint32) model.Level {
	return model.Level(scale(uint64(brightness), s.InternalMin, s.InternalMax, s.ExternalMax))
}

// LevelFor returns the smallest local level that ToExternal maps back to
// brightness, so a level adopted from the daemon is pushed unchanged.
// Brightness outside [ExternalMin, ExternalMax] is clamped first.
func (s Scale) LevelFor(brightness uint32) model.Level {
	b := uint64(brightness)
	if b < uint64(s.ExternalMin) {
		b = uint64(s.ExternalMin)
	}
	if b > uint64(s.ExternalMax) {
		b = uint64(s.ExternalMax)
	}
	steps := b - uint64(s.ExternalMin)
	level := (steps*uint64(s.InternalMax) + uint64(s.ExternalMax) - 1) / uint64(s.ExternalMax)
	if level < uint64(s.InternalMin) {
		level = uint64(s.InternalMin)
	}
	if level > uint64(s.InternalMax) {
		level = uint64(s.InternalMax)
	}
	return model.Level(level)
}

func scale(in uint64, outMin, outMax, inMax uint32) uint64 {
	out := uint64(outMin) + in*uint64(outMax)/uint64(inMax)
	if out > uint64(outMax) {
		out = uint64(outMax)
	}
	if out < uint64(outMin) {
		out = uint64(outMin)
	}
	return out
}
