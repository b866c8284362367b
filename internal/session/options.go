package session

import (
	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/gesture"
	"github.com/bryanchriswhite/FocusRelay/internal/keepalive"
	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
)

// GestureOptions converts the input settings.
func GestureOptions(cfg *config.Config) gesture.Options {
	in := cfg.Input
	return gesture.Options{
		MoveThrottle:     config.Ms(in.MoveThrottleMs),
		DragThreshold:    in.DragThresholdPx,
		ClickDelay:       config.Ms(in.ClickDelayMs),
		WheelNotch:       in.WheelNotch,
		UseHardwareClick: in.UseHardwareClick,
		RemapInterval:    config.Ms(in.RemapIntervalMs),
	}
}

// Tuning converts the mode selection settings.
func Tuning(cfg *config.Config) mapping.Tuning {
	in := cfg.Input
	return mapping.Tuning{
		FrameSlack:   in.ModeFrameSlack,
		TieTolerance: in.ModeTieTolerance,
		FrameMinOffX: in.FrameMinOffX,
		FrameMinOffY: in.FrameMinOffY,
	}
}

// KeepaliveOptions returns the session keepalive registration, or nil when
// sessions should not enable keepalive.
func KeepaliveOptions(cfg *config.Config) *keepalive.Options {
	ka := cfg.Keepalive
	if !ka.Enabled {
		return nil
	}
	return &keepalive.Options{
		Period:      config.Ms(ka.PeriodMs),
		X:           ka.X,
		Y:           ka.Y,
		StickBottom: ka.StickBottom,
	}
}
