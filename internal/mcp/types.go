package mcp

import (
	"github.com/bryanchriswhite/FocusRelay/internal/audio"
	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
)

// TargetInput names a window by handle, pid or title fragment, tried in that order.
type TargetInput struct {
	Hwnd  string `json:"hwnd,omitempty" jsonschema:"Window handle in hex (0x1a00007) or decimal"`
	PID   int    `json:"pid,omitempty" jsonschema:"Process id; its largest titled window is used"`
	Title string `json:"title,omitempty" jsonschema:"Case-insensitive title fragment; the first match is used"`
}

// ListWindowsInput is the input for the list_windows tool.
type ListWindowsInput struct {
	Title string `json:"title,omitempty" jsonschema:"Only list windows whose title contains this text"`
}

// ListWindowsOutput is the output for the list_windows tool.
type ListWindowsOutput struct {
	Windows []window.WindowInfo `json:"windows"`
}

// WindowGeometryInput is the input for the window_geometry tool.
type WindowGeometryInput struct {
	Target      TargetInput `json:"target" jsonschema:"The window to inspect"`
	FrameWidth  int         `json:"frame_width,omitempty" jsonschema:"Captured frame width; with frame_height, also report the coordinate mapping"`
	FrameHeight int         `json:"frame_height,omitempty" jsonschema:"Captured frame height"`
}

// WindowGeometryOutput is the output for the window_geometry tool.
type WindowGeometryOutput struct {
	Hwnd     string            `json:"hwnd"`
	Geometry protocol.Geometry `json:"geometry"`
	// Scale is the display scale factor derived from the DPI.
	Scale   float64          `json:"scale"`
	Mapping *mapping.Mapping `json:"mapping,omitempty"`
}

// ClickInput is the input for the click tool.
type ClickInput struct {
	Target   TargetInput `json:"target" jsonschema:"The window to click"`
	X        int         `json:"x" jsonschema:"Client-area x coordinate"`
	Y        int         `json:"y" jsonschema:"Client-area y coordinate"`
	Button   string      `json:"button,omitempty" jsonschema:"left, right or middle (default left)"`
	Double   bool        `json:"double,omitempty" jsonschema:"Send a double click"`
	Hardware bool        `json:"hardware,omitempty" jsonschema:"Use synthesized hardware input instead of a window-targeted click"`
}

// ScrollInput is the input for the scroll tool.
type ScrollInput struct {
	Target     TargetInput `json:"target" jsonschema:"The window to scroll"`
	X          int         `json:"x" jsonschema:"Client-area x coordinate"`
	Y          int         `json:"y" jsonschema:"Client-area y coordinate"`
	Notches    int         `json:"notches" jsonschema:"Wheel notches; positive scrolls up (or right when horizontal)"`
	Horizontal bool        `json:"horizontal,omitempty" jsonschema:"Scroll horizontally"`
}

// KeepaliveInput is the input for the keepalive tool.
type KeepaliveInput struct {
	Target      TargetInput `json:"target" jsonschema:"The window to keep alive"`
	Enable      bool        `json:"enable" jsonschema:"Start (true) or stop (false) pinging the window"`
	PeriodMs    int         `json:"period_ms,omitempty" jsonschema:"Ping period in milliseconds (minimum 1000)"`
	X           int         `json:"x,omitempty" jsonschema:"Ping x coordinate"`
	Y           int         `json:"y,omitempty" jsonschema:"Ping y coordinate"`
	StickBottom bool        `json:"stick_bottom,omitempty" jsonschema:"Keep the window at the bottom of the stacking order"`
}

// KeepaliveOutput is the output for the keepalive tool.
type KeepaliveOutput struct {
	Hwnd     string `json:"hwnd"`
	Enabled  bool   `json:"enabled"`
	PeriodMs int64  `json:"period_ms,omitempty"`
}

// ListAudioDevicesOutput is the output for the list_audio_devices tool.
type ListAudioDevicesOutput struct {
	Devices []audio.Device `json:"devices"`
}

// RouteAudioInput is the input for the route_audio tool.
type RouteAudioInput struct {
	Target   TargetInput `json:"target" jsonschema:"The window whose process audio is moved"`
	DeviceID string      `json:"device_id" jsonschema:"Output device id from list_audio_devices"`
}

// RouteAudioOutput is the output for the route_audio tool.
type RouteAudioOutput struct {
	PID      int    `json:"pid"`
	DeviceID string `json:"device_id"`
}
