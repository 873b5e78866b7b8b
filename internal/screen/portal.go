package screen

import (
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	portalDest    = "org.freedesktop.portal.Desktop"
	portalPath    = "/org/freedesktop/portal/desktop"
	portalIface   = "org.freedesktop.portal.ScreenCast"
	requestIface  = "org.freedesktop.portal.Request"
)

// portalSession drives the xdg-desktop-portal ScreenCast interface over the
// session bus: CreateSession, SelectSources, Start, OpenPipeWireRemote, in
// that order, each gated on the matching Request object's "Response" signal.
type portalSession struct {
	conn      *dbus.Conn
	sessionID string
	handle    dbus.ObjectPath
}

// PortalStart creates a screencast session with the cursor embedded in the
// stream, offers both monitors and windows, and requests a non-persistent
// grant (no restore token). It returns the node id, negotiated size, and a
// PipeWire file descriptor on success. A user-cancelled picker surfaces as
// an error; the caller must not mark a "presenting" state in that case.
func PortalStart() (PortalResult, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return PortalResult{}, fmt.Errorf("screen: connect session bus: %w", err)
	}

	ps := &portalSession{conn: conn}
	defer func() {
		if err != nil {
			conn.Close()
		}
	}()

	if err = ps.createSession(); err != nil {
		return PortalResult{}, err
	}
	if err = ps.selectSources(); err != nil {
		return PortalResult{}, err
	}
	nodeID, width, height, err := ps.start()
	if err != nil {
		return PortalResult{}, err
	}
	fd, err := ps.openPipeWireRemote()
	if err != nil {
		return PortalResult{}, err
	}

	return PortalResult{NodeID: nodeID, Width: width, Height: height, FD: fd}, nil
}

var requestCounter struct {
	mu sync.Mutex
	n  uint64
}

func nextHandleToken() string {
	requestCounter.mu.Lock()
	defer requestCounter.mu.Unlock()
	requestCounter.n++
	return fmt.Sprintf("deskmedia%d_%d", os.Getpid(), requestCounter.n)
}

// waitResponse subscribes to the Request object's Response signal and
// blocks for exactly one delivery, returning the portal's result dict.
// code 0 = success, 1 = user cancelled, 2 = other error.
func (ps *portalSession) waitResponse(requestPath dbus.ObjectPath) (map[string]dbus.Variant, error) {
	rule := fmt.Sprintf("type='signal',interface='%s',member='Response',path='%s'", requestIface, requestPath)
	if err := ps.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return nil, fmt.Errorf("screen: add match: %w", err)
	}

	sigCh := make(chan *dbus.Signal, 1)
	ps.conn.Signal(sigCh)
	defer ps.conn.RemoveSignal(sigCh)

	for sig := range sigCh {
		if sig.Path != requestPath || sig.Name != requestIface+".Response" {
			continue
		}
		var code uint32
		var results map[string]dbus.Variant
		if err := dbus.Store(sig.Body, &code, &results); err != nil {
			return nil, fmt.Errorf("screen: decode portal response: %w", err)
		}
		switch code {
		case 0:
			return results, nil
		case 1:
			return nil, fmt.Errorf("screen: portal request cancelled by user")
		default:
			return nil, fmt.Errorf("screen: portal request failed (code %d)", code)
		}
	}
	return nil, fmt.Errorf("screen: portal response channel closed")
}

func (ps *portalSession) createSession() error {
	obj := ps.conn.Object(portalDest, portalPath)
	token := nextHandleToken()
	sessionToken := nextHandleToken()

	call := obj.Call(portalIface+".CreateSession", 0, map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(token),
		"session_handle_token": dbus.MakeVariant(sessionToken),
	})
	var reqPath dbus.ObjectPath
	if err := call.Store(&reqPath); err != nil {
		return fmt.Errorf("screen: CreateSession: %w", err)
	}

	results, err := ps.waitResponse(reqPath)
	if err != nil {
		return err
	}
	handle, ok := results["session_handle"].Value().(string)
	if !ok {
		return fmt.Errorf("screen: CreateSession response missing session_handle")
	}
	ps.handle = dbus.ObjectPath(handle)
	return nil
}

func (ps *portalSession) selectSources() error {
	obj := ps.conn.Object(portalDest, portalPath)
	token := nextHandleToken()

	// types: 1=monitor, 2=window -> request both; cursor_mode 2=embedded;
	// persist_mode 0=do not persist (spec requires a non-persistent grant).
	call := obj.Call(portalIface+".SelectSources", 0, ps.handle, map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token),
		"types":        dbus.MakeVariant(uint32(1 | 2)),
		"cursor_mode":  dbus.MakeVariant(uint32(2)),
		"persist_mode": dbus.MakeVariant(uint32(0)),
	})
	var reqPath dbus.ObjectPath
	if err := call.Store(&reqPath); err != nil {
		return fmt.Errorf("screen: SelectSources: %w", err)
	}
	_, err := ps.waitResponse(reqPath)
	return err
}

func (ps *portalSession) start() (nodeID uint32, width, height int, err error) {
	obj := ps.conn.Object(portalDest, portalPath)
	token := nextHandleToken()

	call := obj.Call(portalIface+".Start", 0, ps.handle, "", map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token),
	})
	var reqPath dbus.ObjectPath
	if err = call.Store(&reqPath); err != nil {
		return 0, 0, 0, fmt.Errorf("screen: Start: %w", err)
	}

	results, err := ps.waitResponse(reqPath)
	if err != nil {
		return 0, 0, 0, err
	}

	streams, ok := results["streams"].Value().([][]interface{})
	if !ok || len(streams) == 0 {
		return 0, 0, 0, fmt.Errorf("screen: Start response missing streams")
	}
	id, ok := streams[0][0].(uint32)
	if !ok {
		return 0, 0, 0, fmt.Errorf("screen: stream node id not a uint32")
	}
	if props, ok := streams[0][1].(map[string]dbus.Variant); ok {
		if sz, ok := props["size"].Value().([]int32); ok && len(sz) == 2 {
			width, height = int(sz[0]), int(sz[1])
		}
	}
	return id, width, height, nil
}

func (ps *portalSession) openPipeWireRemote() (int, error) {
	obj := ps.conn.Object(portalDest, portalPath)
	var fd dbus.UnixFD
	if err := obj.Call(portalIface+".OpenPipeWireRemote", 0, ps.handle, map[string]dbus.Variant{}).Store(&fd); err != nil {
		return 0, fmt.Errorf("screen: OpenPipeWireRemote: %w", err)
	}
	return int(fd), nil
}
