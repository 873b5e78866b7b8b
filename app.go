package main

import (
	"context"
	"encoding/base64"
	"log"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	wailsrt "github.com/wailsapp/wails/v2/pkg/runtime"

	"deskmedia/internal/config"
	"deskmedia/internal/screen"
	"deskmedia/internal/voice"
)

// sessionState tracks one engine's lifecycle: Idle, Starting, Running,
// Stopping. Transitions are serialised through a single coarse lock per
// engine (voiceMu and screenMu on App).
type sessionState int

const (
	stateIdle sessionState = iota
	stateStarting
	stateRunning
	stateStopping
)

// App bridges the Go media engine with the Wails/Vue frontend. Wails-bound
// methods implement the command surface; the engines in
// internal/voice and internal/screen own all capture/encode/transport
// state. Keep this struct thin — delegate to the engines.
type App struct {
	ctx context.Context
	cfg config.Config

	voice      *voice.Engine
	voiceMu    sync.Mutex
	voiceState sessionState

	screenEngine *screen.Engine
	screenMu     sync.Mutex
	screenState  sessionState
}

// NewApp constructs an idle App. No devices, peer connections, or
// listeners are opened until a _start command runs.
func NewApp() *App {
	return &App{
		cfg:          config.Load(),
		voice:        voice.NewEngine(),
		screenEngine: screen.NewEngine(),
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.voice.SetInputDevice(a.cfg.InputDeviceName)
	a.voice.SetOutputDevice(a.cfg.OutputDeviceName)
	a.voice.SetMasterVolume(a.cfg.MasterVolume)
	a.voice.SetMicGain(a.cfg.MicGain)
	a.voice.SetMuted(a.cfg.Muted)
	a.voice.SetDeafened(a.cfg.Deafened)

	go a.forwardVoiceEvents()
	go a.forwardScreenEvents()
}

func (a *App) shutdown(_ context.Context) {
	a.voice.Stop()
	a.screenEngine.Stop()
}

func (a *App) forwardVoiceEvents() {
	for ev := range a.voice.Events() {
		switch ev.Kind {
		case voice.UIIceCandidate:
			wailsrt.EventsEmit(a.ctx, "voice:ice_candidate", ev.IceCandidate)
		case voice.UIConnectionState:
			wailsrt.EventsEmit(a.ctx, "voice:connection_state", map[string]any{"state": ev.ConnectionState})
		case voice.UISpeaking:
			wailsrt.EventsEmit(a.ctx, "voice:speaking", map[string]any{"speaking": ev.Speaking})
		}
	}
}

func (a *App) forwardScreenEvents() {
	for ev := range a.screenEngine.Events() {
		switch ev.Kind {
		case screen.UIIceCandidate:
			wailsrt.EventsEmit(a.ctx, "screen:ice_candidate", ev.IceCandidate)
		case screen.UIConnectionState:
			// Not in the stable event table but harmless to surface; the
			// frontend may ignore unknown events.
			wailsrt.EventsEmit(a.ctx, "screen:connection_state", map[string]any{"state": ev.ConnectionState})
		}
	}
}

// VoiceStart ensures the peer connection, playback device, and mic
// capture are all running. Idempotent: a second call while already
// running is a no-op.
func (a *App) VoiceStart() string {
	a.voiceMu.Lock()
	defer a.voiceMu.Unlock()

	if a.voiceState == stateRunning {
		return ""
	}
	a.voiceState = stateStarting
	if err := a.voice.EnsurePeer(); err != nil {
		a.voiceState = stateIdle
		log.Printf("[app] voice_start: %v", err)
		return err.Error()
	}
	a.voiceState = stateRunning
	return ""
}

// VoiceStop tears down the voice session. Always succeeds.
func (a *App) VoiceStop() string {
	a.voiceMu.Lock()
	defer a.voiceMu.Unlock()
	a.voiceState = stateStopping
	a.voice.Stop()
	a.voiceState = stateIdle
	return ""
}

// VoiceHandleOffer sets the remote SDP offer and returns the local
// answer, starting the voice session first if needed.
func (a *App) VoiceHandleOffer(sdp string) voice.SdpAnswer {
	answer, err := a.voice.HandleOffer(sdp)
	if err != nil {
		log.Printf("[app] voice_handle_offer: %v", err)
		return voice.SdpAnswer{}
	}
	a.voiceMu.Lock()
	a.voiceState = stateRunning
	a.voiceMu.Unlock()
	return voice.SdpAnswer{SDP: answer}
}

// VoiceHandleIce adds a remote ICE candidate to the voice peer.
func (a *App) VoiceHandleIce(candidate string, sdpMid *string, sdpMLineIndex *uint16) string {
	err := a.voice.HandleICE(voice.IceCandidateIn{Candidate: candidate, SDPMid: sdpMid, SDPMLineIndex: sdpMLineIndex})
	if err != nil {
		return err.Error()
	}
	return ""
}

// VoiceSetMute mutes or unmutes the mic capture path and persists the
// preference.
func (a *App) VoiceSetMute(muted bool) {
	a.voice.SetMuted(muted)
	a.cfg.Muted = muted
	_ = config.Save(a.cfg)
}

// VoiceSetDeafen silences playback and persists the preference.
func (a *App) VoiceSetDeafen(deafened bool) {
	a.voice.SetDeafened(deafened)
	a.cfg.Deafened = deafened
	_ = config.Save(a.cfg)
}

// VoiceSetMasterVolume sets playback gain and persists the preference.
func (a *App) VoiceSetMasterVolume(volume float64) {
	a.voice.SetMasterVolume(float32(volume))
	a.cfg.MasterVolume = float32(volume)
	_ = config.Save(a.cfg)
}

// VoiceSetMicGain sets capture gain and persists the preference.
func (a *App) VoiceSetMicGain(gain float64) {
	a.voice.SetMicGain(float32(gain))
	a.cfg.MicGain = float32(gain)
	_ = config.Save(a.cfg)
}

// VoiceListDevices enumerates available input/output audio devices.
func (a *App) VoiceListDevices() voice.AudioDeviceList {
	list, err := voice.ListDevices()
	if err != nil {
		log.Printf("[app] voice_list_devices: %v", err)
		return voice.AudioDeviceList{}
	}
	return list
}

// VoiceSetInputDevice switches the capture device, tearing down and
// restarting capture only if it is already running — this is the
// concrete mechanism behind device switching while running: the
// engine's is_running() stays true throughout from the caller's perspective.
func (a *App) VoiceSetInputDevice(deviceName string) string {
	a.voiceMu.Lock()
	defer a.voiceMu.Unlock()

	a.voice.SetInputDevice(deviceName)
	a.cfg.InputDeviceName = deviceName
	_ = config.Save(a.cfg)

	if a.voiceState != stateRunning {
		return ""
	}
	if err := a.voice.RestartCapture(); err != nil {
		log.Printf("[app] voice_set_input_device: %v", err)
		return err.Error()
	}
	return ""
}

// VoiceSetOutputDevice switches the playback device, tearing down and
// restarting playback only if it is already running.
func (a *App) VoiceSetOutputDevice(deviceName string) string {
	a.voiceMu.Lock()
	defer a.voiceMu.Unlock()

	a.voice.SetOutputDevice(deviceName)
	a.cfg.OutputDeviceName = deviceName
	_ = config.Save(a.cfg)

	if a.voiceState != stateRunning {
		return ""
	}
	if err := a.voice.RestartPlayback(); err != nil {
		log.Printf("[app] voice_set_output_device: %v", err)
		return err.Error()
	}
	return ""
}

// ScreenStart negotiates a screencast portal session and, on success,
// spawns capture and binds the MJPEG preview server. A user-cancelled
// picker returns an error and leaves the engine Idle with no preview
// listener bound.
func (a *App) ScreenStart() (screen.StartResult, error) {
	a.screenMu.Lock()
	defer a.screenMu.Unlock()

	if a.screenState == stateRunning {
		return screen.StartResult{}, nil
	}
	a.screenState = stateStarting

	portal, err := a.screenEngine.PortalStart()
	if err != nil {
		a.screenState = stateIdle
		log.Printf("[app] screen_start: portal: %v", err)
		return screen.StartResult{}, err
	}

	port, err := a.screenEngine.Start(portal)
	if err != nil {
		a.screenState = stateIdle
		log.Printf("[app] screen_start: %v", err)
		return screen.StartResult{}, err
	}

	a.screenState = stateRunning
	return screen.StartResult{PreviewPort: port}, nil
}

// ScreenStop tears down the screen session. Always succeeds.
func (a *App) ScreenStop() string {
	a.screenMu.Lock()
	defer a.screenMu.Unlock()
	a.screenState = stateStopping
	a.screenEngine.Stop()
	a.screenState = stateIdle
	return ""
}

// ScreenHandleOffer sets the remote SDP offer and returns the local
// answer for the screen peer.
func (a *App) ScreenHandleOffer(sdp string) voice.SdpAnswer {
	answer, err := a.screenEngine.HandleOffer(sdp)
	if err != nil {
		log.Printf("[app] screen_handle_offer: %v", err)
		return voice.SdpAnswer{}
	}
	return voice.SdpAnswer{SDP: answer}
}

// ScreenHandleIce adds a remote ICE candidate to the screen peer.
func (a *App) ScreenHandleIce(candidate string, sdpMid *string, sdpMLineIndex *uint16) string {
	err := a.screenEngine.HandleICE(screen.IceCandidateIn{Candidate: candidate, SDPMid: sdpMid, SDPMLineIndex: sdpMLineIndex})
	if err != nil {
		return err.Error()
	}
	return ""
}

// MixerDevice is the system-mixer-CLI device shape for list_audio_devices.
type MixerDevice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// MixerDeviceList is the result of list_audio_devices.
type MixerDeviceList struct {
	Inputs  []MixerDevice `json:"inputs"`
	Outputs []MixerDevice `json:"outputs"`
}

// ListAudioDevices shells out to the platform's system-mixer CLI. This is
// a thin platform shell: only the device-list shape is a core obligation;
// the mechanism is substitutable per target OS.
func (a *App) ListAudioDevices() MixerDeviceList {
	if runtime.GOOS != "linux" {
		return MixerDeviceList{}
	}
	out, err := exec.Command("pactl", "-f", "json", "list", "short", "sinks").Output()
	if err != nil {
		log.Printf("[app] list_audio_devices: %v", err)
		return MixerDeviceList{}
	}
	var outputs []MixerDevice
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		outputs = append(outputs, MixerDevice{ID: fields[0], Name: fields[1]})
	}
	return MixerDeviceList{Outputs: outputs}
}

// SetDefaultAudioDevice shells out to set the platform default sink by id
// (the default source is not changed); thin platform shell, substitutable
// per target OS.
func (a *App) SetDefaultAudioDevice(id string) bool {
	if runtime.GOOS != "linux" {
		return false
	}
	if err := exec.Command("pactl", "set-default-sink", id).Run(); err != nil {
		log.Printf("[app] set_default_audio_device: %v", err)
		return false
	}
	return true
}

// ReadClipboardImage reads the clipboard as text and, when that text is a
// "data:image/png;base64," URL with a valid base64 payload, returns the
// payload; otherwise it returns "". Image data held in the clipboard under
// an image type (rather than as such a text URL) is not read. Thin
// platform shell, substitutable per target OS.
func (a *App) ReadClipboardImage() string {
	text, err := wailsrt.ClipboardGetText(a.ctx)
	if err != nil || !strings.HasPrefix(text, "data:image/png;base64,") {
		return ""
	}
	payload := strings.TrimPrefix(text, "data:image/png;base64,")
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return ""
	}
	return payload
}

// GetConfig returns the current persisted configuration.
func (a *App) GetConfig() config.Config { return a.cfg }
