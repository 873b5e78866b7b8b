package voice

import (
	"fmt"
	"log"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack is the remote audio track handed to the engine's per-remote
// decode task when a peer adds one.
type RemoteTrack = *webrtc.TrackRemote

// OpusFmtpLine is the exact fmtp string the registered Opus codec and the
// local track must share, matching the peering SFU byte-for-byte.
const OpusFmtpLine = "minptime=10;useinbandfec=1;usedtx=1;maxaveragebitrate=128000"

// OpusCapability is the single codec entry registered for the voice peer.
var OpusCapability = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   48000,
	Channels:    2,
	SDPFmtpLine: OpusFmtpLine,
}

const opusPayloadType = 111

// Peer owns one WebRTC peer connection carrying a single send-only local
// Opus track and any number of remote Opus tracks.
type Peer struct {
	pc         *webrtc.PeerConnection
	LocalTrack *webrtc.TrackLocalStaticRTP
	events     chan PeerEvent
}

// NewPeer builds a peer connection with the voice codec registry, default
// interceptors (NACK included), one ICE server, and a send-only local
// track already attached. The returned channel carries IceCandidate,
// RemoteTrack, and ConnectionState events for a single consumer.
func NewPeer() (*Peer, <-chan PeerEvent, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: OpusCapability,
		PayloadType:        opusPayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, nil, fmt.Errorf("voice: register opus codec: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, nil, fmt.Errorf("voice: register interceptors: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("voice: new peer connection: %w", err)
	}

	localTrack, err := webrtc.NewTrackLocalStaticRTP(OpusCapability, "audio", "voice")
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("voice: new local track: %w", err)
	}

	sender, err := pc.AddTrack(localTrack)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("voice: add track: %w", err)
	}

	// RTCP must be drained or the sender's internal pipeline backs up.
	go drainRTCP(sender)

	events := make(chan PeerEvent, 16)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		events <- PeerEvent{
			Kind: EventIceCandidate,
			IceCandidate: IceCandidateOut{
				Candidate:     init.Candidate,
				SDPMid:        init.SDPMid,
				SDPMLineIndex: init.SDPMLineIndex,
			},
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("[voice] remote track received: %s", track.Codec().MimeType)
		events <- PeerEvent{Kind: EventRemoteTrack, RemoteTrack: track}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Printf("[voice] peer connection state: %s", s)
		events <- PeerEvent{Kind: EventConnectionState, ConnectionState: s.String()}
	})

	return &Peer{pc: pc, LocalTrack: localTrack, events: events}, events, nil
}

// HandleOffer sets the remote description to sdp, creates an answer, sets
// it as the local description, and returns the final local SDP.
func (p *Peer) HandleOffer(sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("voice: set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("voice: create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("voice: set local description: %w", err)
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("voice: no local description after negotiation")
	}
	return local.SDP, nil
}

// HandleICE adds a remote ICE candidate.
func (p *Peer) HandleICE(c IceCandidateIn) error {
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("voice: add ice candidate: %w", err)
	}
	return nil
}

// Close tears down the peer connection and its event channel.
func (p *Peer) Close() error {
	err := p.pc.Close()
	close(p.events)
	return err
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
