// Package mcp exposes window lookup and input injection as MCP tools.
package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bryanchriswhite/FocusRelay/internal/audio"
	"github.com/bryanchriswhite/FocusRelay/internal/keepalive"
	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
)

const (
	ServerName    = "focusrelay"
	ServerVersion = "0.2.0"
)

// Worker sends operations to the native input worker.
type Worker interface {
	Invoke(ctx context.Context, op protocol.Op, p protocol.Payload, timeout time.Duration) (*protocol.Response, error)
	Geometry(ctx context.Context, h protocol.WindowHandle) (protocol.Geometry, error)
}

// Keepalive is the keepalive registry.
type Keepalive interface {
	Enable(h protocol.WindowHandle, opts keepalive.Options) keepalive.Options
	Disable(h protocol.WindowHandle) bool
}

// Deps are the services the tools call.
type Deps struct {
	Windows   window.Resolver
	Worker    Worker
	Keepalive Keepalive
	// Audio may be nil; the audio tools then fail.
	Audio      audio.Router
	Tuning     mapping.Tuning
	WheelNotch int
}

// Server is the MCP server.
type Server struct {
	mcpServer *mcpsdk.Server
	deps      Deps
}

// NewServer creates a server with every tool registered.
func NewServer(deps Deps) *Server {
	if deps.WheelNotch <= 0 {
		deps.WheelNotch = 120
	}
	s := &Server{deps: deps}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves on stdio until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_windows",
		Description: "List titled top-level windows with handle, pid, process name, geometry and minimized state. Optionally filter by a title fragment.",
	}, s.handleListWindows)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "window_geometry",
		Description: "Report a window's outer rectangle, client area and DPI. When a captured frame size is given, also report the coordinate mapping (client or outer mode, scales, offsets) used to forward viewer input.",
	}, s.handleWindowGeometry)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "click",
		Description: "Click at client-area coordinates of a window without focusing it. Supports double clicks and hardware-synthesized clicks for windows that ignore targeted input.",
	}, s.handleClick)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll",
		Description: "Scroll the mouse wheel at client-area coordinates of a window.",
	}, s.handleScroll)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "keepalive",
		Description: "Start or stop periodic harmless input to a window so it keeps rendering while in the background.",
	}, s.handleKeepalive)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_audio_devices",
		Description: "List audio output devices.",
	}, s.handleListAudioDevices)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "route_audio",
		Description: "Move the audio of a window's process (and its child processes) to an output device.",
	}, s.handleRouteAudio)
}
