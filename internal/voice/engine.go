package voice

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Engine coordinates one peer connection, the mic capture path, and the
// speaker playback path, fanning out ICE/connection-state/speaking
// events to a single consumer for the host application to forward to the
// frontend.
type Engine struct {
	mu sync.Mutex

	peer     *Peer
	capture  *Capture
	playback *Playback

	inputDevice  string
	outputDevice string

	events   chan UIEvent
	stopLoop chan struct{}
}

// NewEngine returns an idle Engine; no devices or peer connection are
// opened until EnsurePeer or StartPlayback is called.
func NewEngine() *Engine {
	return &Engine{
		capture:  NewCapture(),
		playback: NewPlayback(),
		events:   make(chan UIEvent, 32),
	}
}

// Events returns the channel of UI-facing events for this engine's
// lifetime. A new channel is not created across Stop/EnsurePeer cycles.
func (e *Engine) Events() <-chan UIEvent { return e.events }

// SetInputDevice records the input device name used by the next
// EnsurePeer call; it has no effect on an already-running capture.
func (e *Engine) SetInputDevice(name string) {
	e.mu.Lock()
	e.inputDevice = name
	e.mu.Unlock()
}

// SetOutputDevice records the output device name used by the next
// StartPlayback call; it has no effect on an already-running playback.
func (e *Engine) SetOutputDevice(name string) {
	e.mu.Lock()
	e.outputDevice = name
	e.mu.Unlock()
}

// SetMuted forwards to the capture path.
func (e *Engine) SetMuted(muted bool) { e.capture.SetMuted(muted) }

// SetDeafened forwards to the playback path.
func (e *Engine) SetDeafened(deafened bool) { e.playback.SetDeafened(deafened) }

// SetMasterVolume forwards to the playback path.
func (e *Engine) SetMasterVolume(vol float32) { e.playback.SetMasterVolume(vol) }

// SetMicGain forwards to the capture path.
func (e *Engine) SetMicGain(gain float32) { e.capture.SetMicGain(gain) }

// StartPlayback opens the output device if it is not already running.
func (e *Engine) StartPlayback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playback.IsRunning() {
		return nil
	}
	return e.playback.Start(e.outputDevice)
}

// EnsurePeer is idempotent: it starts playback, builds the peer
// connection, starts mic capture into the peer's local track, and spawns
// the event-forwarding loop. A second call while a peer already exists
// is a no-op.
func (e *Engine) EnsurePeer() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.peer != nil {
		return nil
	}

	if !e.playback.IsRunning() {
		if err := e.playback.Start(e.outputDevice); err != nil {
			return err
		}
	}

	peer, peerEvents, err := NewPeer()
	if err != nil {
		return err
	}

	if err := e.capture.Start(e.inputDevice, peer.LocalTrack); err != nil {
		peer.Close()
		return err
	}

	e.peer = peer
	e.stopLoop = make(chan struct{})
	go e.runEventLoop(peerEvents, e.capture.Events(), e.stopLoop)
	return nil
}

// RestartCapture stops and reopens the mic capture stream against the
// currently configured input device, keeping the existing peer
// connection and local track. A no-op when no peer connection exists.
func (e *Engine) RestartCapture() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.peer == nil {
		return nil
	}
	e.capture.Stop()
	return e.capture.Start(e.inputDevice, e.peer.LocalTrack)
}

// RestartPlayback stops and reopens the speaker output stream against the
// currently configured output device.
func (e *Engine) RestartPlayback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playback.Stop()
	return e.playback.Start(e.outputDevice)
}

// HandleOffer proxies to the active peer, creating one first if needed.
func (e *Engine) HandleOffer(sdp string) (string, error) {
	if err := e.EnsurePeer(); err != nil {
		return "", err
	}
	e.mu.Lock()
	peer := e.peer
	e.mu.Unlock()
	return peer.HandleOffer(sdp)
}

// HandleICE proxies to the active peer; it is an error to call this
// before a peer connection exists.
func (e *Engine) HandleICE(c IceCandidateIn) error {
	e.mu.Lock()
	peer := e.peer
	e.mu.Unlock()
	if peer == nil {
		return fmt.Errorf("voice: no peer connection")
	}
	return peer.HandleICE(c)
}

// Stop tears down capture, playback, the event loop, and the peer
// connection, in that order.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.capture.Stop()
	e.playback.Stop()

	if e.stopLoop != nil {
		close(e.stopLoop)
		e.stopLoop = nil
	}
	if e.peer != nil {
		if err := e.peer.Close(); err != nil {
			log.Printf("[voice] peer close: %v", err)
		}
		e.peer = nil
	}
}

func (e *Engine) runEventLoop(peerEvents <-chan PeerEvent, captureEvents <-chan CaptureEvent, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-peerEvents:
			if !ok {
				return
			}
			switch ev.Kind {
			case EventIceCandidate:
				e.emit(UIEvent{Kind: UIIceCandidate, IceCandidate: ev.IceCandidate})
			case EventRemoteTrack:
				log.Printf("[voice] remote track received, spawning decode task")
				go e.playback.decodeRemoteTrack(ev.RemoteTrack)
			case EventConnectionState:
				e.emit(UIEvent{Kind: UIConnectionState, ConnectionState: ev.ConnectionState})
			}
		case ev, ok := <-captureEvents:
			if !ok {
				return
			}
			e.emit(UIEvent{Kind: UISpeaking, Speaking: ev.Speaking})
		}
	}
}

func (e *Engine) emit(ev UIEvent) {
	select {
	case e.events <- ev:
	default:
	}
}

// ListDevices enumerates available input and output audio devices.
func ListDevices() (AudioDeviceList, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return AudioDeviceList{}, fmt.Errorf("voice: list devices: %w", err)
	}

	defaultIn, _ := portaudio.DefaultInputDevice()
	defaultOut, _ := portaudio.DefaultOutputDevice()

	var list AudioDeviceList
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			list.Inputs = append(list.Inputs, AudioDeviceInfo{
				Name:      d.Name,
				IsDefault: defaultIn != nil && d.Name == defaultIn.Name,
			})
		}
		if d.MaxOutputChannels > 0 {
			list.Outputs = append(list.Outputs, AudioDeviceInfo{
				Name:      d.Name,
				IsDefault: defaultOut != nil && d.Name == defaultOut.Name,
			})
		}
	}
	return list, nil
}
