package screen

import (
	"fmt"
	"log"
	"sync"
)

// Engine coordinates one peer connection, the capture subsystem, and the
// MJPEG preview server, fanning out ICE/connection-state events to a
// single consumer.
type Engine struct {
	mu sync.Mutex

	peer    *Peer
	capture *Capture
	preview *PreviewServer

	events chan UIEvent
}

// NewEngine returns an idle Engine.
func NewEngine() *Engine {
	return &Engine{capture: NewCapture(), events: make(chan UIEvent, 32)}
}

// Events returns the channel of UI-facing events for this engine's
// lifetime.
func (e *Engine) Events() <-chan UIEvent { return e.events }

// PortalStart negotiates a screencast session with the desktop portal. A
// user-cancelled picker surfaces as an error with no engine state change.
func (e *Engine) PortalStart() (PortalResult, error) {
	return PortalStart()
}

// Start builds the peer connection, binds the MJPEG preview listener, and
// spawns the capture workers against the already-negotiated portal
// session. Returns the preview server's bound port.
func (e *Engine) Start(portal PortalResult) (uint16, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.peer != nil {
		return 0, fmt.Errorf("screen: session already running")
	}

	peer, peerEvents, err := NewPeer()
	if err != nil {
		return 0, err
	}

	previewSrv, port, err := NewPreviewServer()
	if err != nil {
		peer.Close()
		return 0, err
	}

	e.peer = peer
	e.preview = previewSrv

	go previewSrv.Serve()
	e.capture.Start(peer.VideoTrack, peer.AudioTrack, previewSrv, portal)
	go e.runEventLoop(peerEvents)

	return port, nil
}

// HandleOffer proxies to the active peer.
func (e *Engine) HandleOffer(sdp string) (string, error) {
	e.mu.Lock()
	peer := e.peer
	e.mu.Unlock()
	if peer == nil {
		return "", fmt.Errorf("screen: no peer connection")
	}
	return peer.HandleOffer(sdp)
}

// HandleICE proxies to the active peer.
func (e *Engine) HandleICE(c IceCandidateIn) error {
	e.mu.Lock()
	peer := e.peer
	e.mu.Unlock()
	if peer == nil {
		return fmt.Errorf("screen: no peer connection")
	}
	return peer.HandleICE(c)
}

// Stop tears down capture, the preview server, and the peer connection.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.capture.Stop()

	if e.preview != nil {
		e.preview.Stop()
		e.preview = nil
	}
	if e.peer != nil {
		if err := e.peer.Close(); err != nil {
			log.Printf("[screen] peer close: %v", err)
		}
		e.peer = nil
	}
}

func (e *Engine) runEventLoop(peerEvents <-chan PeerEvent) {
	for ev := range peerEvents {
		switch ev.Kind {
		case EventIceCandidate:
			e.emit(UIEvent{Kind: UIIceCandidate, IceCandidate: ev.IceCandidate})
		case EventConnectionState:
			e.emit(UIEvent{Kind: UIConnectionState, ConnectionState: ev.ConnectionState})
		}
	}
}

func (e *Engine) emit(ev UIEvent) {
	select {
	case e.events <- ev:
	default:
	}
}
