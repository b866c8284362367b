package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/keepalive"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
)

var errNoAudio = errors.New("audio routing unavailable")

func textResult(format string, args ...interface{}) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// resolve turns a tool target into a window handle.
func (s *Server) resolve(t TargetInput) (protocol.WindowHandle, error) {
	l := window.Lookup{PID: t.PID, Title: t.Title}
	if h := strings.TrimSpace(t.Hwnd); h != "" {
		v, err := protocol.ParseWindowHandle(h)
		if err != nil {
			return 0, err
		}
		l.Handle = v
	}
	if l.Handle == 0 && l.PID == 0 && strings.TrimSpace(l.Title) == "" {
		return 0, errors.New("target needs one of hwnd, pid or title")
	}
	return window.Resolve(s.deps.Windows, l)
}

// pidOf returns the owning pid of h, falling back to the target's pid.
func (s *Server) pidOf(h protocol.WindowHandle, t TargetInput) int {
	windows, err := s.deps.Windows.ListTop()
	if err == nil {
		for _, w := range windows {
			if w.Handle == h && w.PID > 0 {
				return w.PID
			}
		}
	}
	return t.PID
}

func (s *Server) handleListWindows(_ context.Context, _ *mcpsdk.CallToolRequest, args ListWindowsInput) (*mcpsdk.CallToolResult, ListWindowsOutput, error) {
	var (
		windows []window.WindowInfo
		err     error
	)
	if args.Title != "" {
		windows, err = s.deps.Windows.FindByTitle(args.Title)
	} else {
		windows, err = s.deps.Windows.ListTop()
	}
	if err != nil {
		return nil, ListWindowsOutput{}, err
	}
	if windows == nil {
		windows = []window.WindowInfo{}
	}
	return nil, ListWindowsOutput{Windows: windows}, nil
}

func (s *Server) handleWindowGeometry(ctx context.Context, _ *mcpsdk.CallToolRequest, args WindowGeometryInput) (*mcpsdk.CallToolResult, WindowGeometryOutput, error) {
	h, err := s.resolve(args.Target)
	if err != nil {
		return nil, WindowGeometryOutput{}, err
	}
	g, err := s.deps.Worker.Geometry(ctx, h)
	if err != nil {
		return nil, WindowGeometryOutput{}, fmt.Errorf("geometry of %s: %w", h, err)
	}

	out := WindowGeometryOutput{Hwnd: h.String(), Geometry: g, Scale: g.Scale()}
	if args.FrameWidth > 0 && args.FrameHeight > 0 {
		m, err := mapping.New(mapping.Size{W: args.FrameWidth, H: args.FrameHeight}, g, s.deps.Tuning)
		if err != nil {
			return nil, WindowGeometryOutput{}, err
		}
		out.Mapping = &m
	}
	return nil, out, nil
}

func (s *Server) handleClick(ctx context.Context, _ *mcpsdk.CallToolRequest, args ClickInput) (*mcpsdk.CallToolResult, any, error) {
	h, err := s.resolve(args.Target)
	if err != nil {
		return nil, nil, err
	}
	button := protocol.ParseButton(args.Button)

	op := protocol.OpSmart
	switch {
	case args.Double:
		op = protocol.OpDblClick
	case args.Hardware:
		op = protocol.OpSendInput
	}

	p := protocol.Payload{Hwnd: h, X: args.X, Y: args.Y, Button: button}
	if _, err := s.deps.Worker.Invoke(ctx, op, p, 0); err != nil {
		return nil, nil, fmt.Errorf("%s on %s: %w", op, h, err)
	}
	logger.WithComponent("mcp").Debug().
		Str("op", string(op)).
		Str("hwnd", h.String()).
		Int("x", args.X).Int("y", args.Y).
		Msg("Click delivered")
	return textResult("%s %s at (%d,%d) on %s", op, button, args.X, args.Y, h), nil, nil
}

func (s *Server) handleScroll(ctx context.Context, _ *mcpsdk.CallToolRequest, args ScrollInput) (*mcpsdk.CallToolResult, any, error) {
	if args.Notches == 0 {
		return nil, nil, errors.New("notches must not be zero")
	}
	h, err := s.resolve(args.Target)
	if err != nil {
		return nil, nil, err
	}
	p := protocol.Payload{
		Hwnd:  h,
		X:     args.X,
		Y:     args.Y,
		Delta: args.Notches * s.deps.WheelNotch,
		Horiz: args.Horizontal,
	}
	if _, err := s.deps.Worker.Invoke(ctx, protocol.OpWheel, p, 0); err != nil {
		return nil, nil, fmt.Errorf("wheel on %s: %w", h, err)
	}
	return textResult("scrolled %d notches on %s", args.Notches, h), nil, nil
}

func (s *Server) handleKeepalive(_ context.Context, _ *mcpsdk.CallToolRequest, args KeepaliveInput) (*mcpsdk.CallToolResult, KeepaliveOutput, error) {
	h, err := s.resolve(args.Target)
	if err != nil {
		return nil, KeepaliveOutput{}, err
	}
	if !args.Enable {
		s.deps.Keepalive.Disable(h)
		return nil, KeepaliveOutput{Hwnd: h.String()}, nil
	}
	opts := s.deps.Keepalive.Enable(h, keepalive.Options{
		Period:      config.Ms(args.PeriodMs),
		X:           args.X,
		Y:           args.Y,
		StickBottom: args.StickBottom,
	})
	return nil, KeepaliveOutput{Hwnd: h.String(), Enabled: true, PeriodMs: opts.Period.Milliseconds()}, nil
}

func (s *Server) handleListAudioDevices(ctx context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, ListAudioDevicesOutput, error) {
	if s.deps.Audio == nil {
		return nil, ListAudioDevicesOutput{}, errNoAudio
	}
	devices, err := s.deps.Audio.ListOutputDevices(ctx)
	if err != nil {
		return nil, ListAudioDevicesOutput{}, err
	}
	return nil, ListAudioDevicesOutput{Devices: devices}, nil
}

func (s *Server) handleRouteAudio(ctx context.Context, _ *mcpsdk.CallToolRequest, args RouteAudioInput) (*mcpsdk.CallToolResult, RouteAudioOutput, error) {
	if s.deps.Audio == nil {
		return nil, RouteAudioOutput{}, errNoAudio
	}
	if args.DeviceID == "" {
		return nil, RouteAudioOutput{}, errors.New("device_id is required")
	}
	pid := args.Target.PID
	if args.Target.Hwnd != "" || args.Target.Title != "" {
		h, err := s.resolve(args.Target)
		if err != nil {
			return nil, RouteAudioOutput{}, err
		}
		pid = s.pidOf(h, args.Target)
	}
	if pid <= 0 {
		return nil, RouteAudioOutput{}, errors.New("could not determine the target process")
	}
	if err := s.deps.Audio.RouteProcess(ctx, pid, args.DeviceID); err != nil {
		return nil, RouteAudioOutput{}, err
	}
	return nil, RouteAudioOutput{PID: pid, DeviceID: args.DeviceID}, nil
}
