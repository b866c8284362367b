// Package idle keeps the desktop session from blanking or locking while a
// window is being mirrored.
package idle

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/godbus/dbus/v5"
)

// freedesktop screensaver D-Bus constants
const (
	screenSaverService   = "org.freedesktop.ScreenSaver"
	screenSaverPath      = "/org/freedesktop/ScreenSaver"
	screenSaverInterface = "org.freedesktop.ScreenSaver"
)

// bus is the part of the screensaver service the inhibitor uses.
type bus interface {
	inhibit(app, reason string) (uint32, error)
	uninhibit(cookie uint32) error
	close() error
}

// Inhibitor holds screensaver inhibitions on behalf of one application.
type Inhibitor struct {
	app string
	bus bus

	mu      sync.Mutex
	cookies map[uint32]string
}

// NewInhibitor connects to the session bus and checks that a screensaver
// service is present.
func NewInhibitor(app string) (*Inhibitor, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var owned bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, screenSaverService).Store(&owned); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to query D-Bus names: %w", err)
	}
	if !owned {
		conn.Close()
		return nil, fmt.Errorf("%s not found on D-Bus", screenSaverService)
	}

	logger.WithComponent("idle").Debug().Msg("Connected to screensaver service")
	return newInhibitor(app, &dbusBus{conn: conn}), nil
}

func newInhibitor(app string, b bus) *Inhibitor {
	return &Inhibitor{app: app, bus: b, cookies: make(map[uint32]string)}
}

// Inhibit blocks idle blanking until the returned release func is called.
// Calling release more than once is harmless.
func (i *Inhibitor) Inhibit(reason string) (func(), error) {
	cookie, err := i.bus.inhibit(i.app, reason)
	if err != nil {
		return nil, fmt.Errorf("inhibit screensaver: %w", err)
	}

	i.mu.Lock()
	i.cookies[cookie] = reason
	i.mu.Unlock()

	logger.WithComponent("idle").Info().
		Uint32("cookie", cookie).
		Str("reason", reason).
		Msg("Screensaver inhibited")

	var once sync.Once
	return func() {
		once.Do(func() { i.release(cookie) })
	}, nil
}

func (i *Inhibitor) release(cookie uint32) {
	i.mu.Lock()
	_, held := i.cookies[cookie]
	delete(i.cookies, cookie)
	i.mu.Unlock()
	if !held {
		return
	}

	log := logger.WithComponent("idle")
	if err := i.bus.uninhibit(cookie); err != nil {
		log.Warn().Err(err).Uint32("cookie", cookie).Msg("Failed to release screensaver inhibition")
		return
	}
	log.Info().Uint32("cookie", cookie).Msg("Screensaver inhibition released")
}

// Held returns the number of inhibitions currently held.
func (i *Inhibitor) Held() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.cookies)
}

// Close releases every held inhibition and disconnects.
func (i *Inhibitor) Close() error {
	i.mu.Lock()
	cookies := make([]uint32, 0, len(i.cookies))
	for c := range i.cookies {
		cookies = append(cookies, c)
	}
	i.mu.Unlock()

	for _, c := range cookies {
		i.release(c)
	}
	return i.bus.close()
}

type dbusBus struct {
	conn *dbus.Conn
}

func (b *dbusBus) object() dbus.BusObject {
	return b.conn.Object(screenSaverService, dbus.ObjectPath(screenSaverPath))
}

func (b *dbusBus) inhibit(app, reason string) (uint32, error) {
	var cookie uint32
	err := b.object().Call(screenSaverInterface+".Inhibit", 0, app, reason).Store(&cookie)
	return cookie, err
}

func (b *dbusBus) uninhibit(cookie uint32) error {
	return b.object().Call(screenSaverInterface+".UnInhibit", 0, cookie).Err
}

func (b *dbusBus) close() error {
	return b.conn.Close()
}
