package screen

import (
	"fmt"
	"log"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

const (
	h264PayloadType = 102
	opusPayloadType = 111
	h264FmtpLine    = "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"
	opusFmtpLine    = "minptime=10;useinbandfec=1;usedtx=1;maxaveragebitrate=128000"
)

var h264Capability = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeH264,
	ClockRate:   90000,
	SDPFmtpLine: h264FmtpLine,
}

var screenOpusCapability = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   48000,
	Channels:    2,
	SDPFmtpLine: opusFmtpLine,
}

// Peer owns one WebRTC peer connection carrying a sample-based H.264
// video track (the peer library handles RTP packetisation) and a raw-RTP
// Opus audio track (the screen-audio encoder produces RTP directly).
type Peer struct {
	pc          *webrtc.PeerConnection
	VideoTrack  *webrtc.TrackLocalStaticSample
	AudioTrack  *webrtc.TrackLocalStaticRTP
	events      chan PeerEvent
}

// NewPeer builds a peer connection with both codecs registered, default
// interceptors, one ICE server, and both send-only local tracks already
// attached.
func NewPeer() (*Peer, <-chan PeerEvent, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: h264Capability,
		PayloadType:        h264PayloadType,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, nil, fmt.Errorf("screen: register h264 codec: %w", err)
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: screenOpusCapability,
		PayloadType:        opusPayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, nil, fmt.Errorf("screen: register opus codec: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, nil, fmt.Errorf("screen: register interceptors: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("screen: new peer connection: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticSample(h264Capability, "video", "screen")
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("screen: new video track: %w", err)
	}
	videoSender, err := pc.AddTrack(videoTrack)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("screen: add video track: %w", err)
	}
	go drainRTCP(videoSender)

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(screenOpusCapability, "audio", "screen")
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("screen: new audio track: %w", err)
	}
	audioSender, err := pc.AddTrack(audioTrack)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("screen: add audio track: %w", err)
	}
	go drainRTCP(audioSender)

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

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Printf("[screen] peer connection state: %s", s)
		events <- PeerEvent{Kind: EventConnectionState, ConnectionState: s.String()}
	})

	return &Peer{pc: pc, VideoTrack: videoTrack, AudioTrack: audioTrack, events: events}, events, nil
}

// HandleOffer sets the remote description to sdp, creates an answer, sets
// it as the local description, and returns the final local SDP.
func (p *Peer) HandleOffer(sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("screen: set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("screen: create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("screen: set local description: %w", err)
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("screen: no local description after negotiation")
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
		return fmt.Errorf("screen: add ice candidate: %w", err)
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
