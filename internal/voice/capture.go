package voice

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"gopkg.in/hraban/opus.v2"

	"deskmedia/internal/resampler"
	"deskmedia/internal/speaking"
)

const (
	frameMS            = 20
	opusFrameSamples   = opusSampleRate * frameMS / 1000 // 960
	opusSampleRate     = 48000
	opusChannels       = 2
	opusBitrate        = 128000
	opusMaxPacketBytes = 4000
)

// Capture owns one input device stream: it reads raw PCM, resamples to
// 48kHz stereo when the device differs, runs speaking detection on the
// mono downmix, Opus-encodes, and writes RTP packets to a local track.
type Capture struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	wg     sync.WaitGroup

	running atomic.Bool
	muted   atomic.Bool
	micGain atomic.Uint32 // float32 bits

	events chan CaptureEvent
}

// NewCapture returns a Capture with unity mic gain and unmuted state.
func NewCapture() *Capture {
	c := &Capture{events: make(chan CaptureEvent, 16)}
	c.micGain.Store(math.Float32bits(1.0))
	return c
}

// Events returns the channel of speaking-state transitions.
func (c *Capture) Events() <-chan CaptureEvent { return c.events }

// SetMuted mutes or unmutes the capture path. RTP timestamps keep
// advancing while muted so playback on the remote end does not glitch
// when unmuting resumes; no packets are sent and sequence numbers do
// not advance.
func (c *Capture) SetMuted(muted bool) { c.muted.Store(muted) }

// SetMicGain sets the linear gain applied to captured samples before
// resampling and encoding.
func (c *Capture) SetMicGain(gain float32) { c.micGain.Store(math.Float32bits(gain)) }

// IsRunning reports whether a capture stream is active.
func (c *Capture) IsRunning() bool { return c.running.Load() }

// Start opens deviceName (or the system default input when empty),
// spins up the encode loop, and begins writing Opus/RTP to track.
func (c *Capture) Start(deviceName string, track *webrtc.TrackLocalStaticRTP) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("voice: list devices: %w", err)
	}

	dev, err := findInputDevice(devices, deviceName)
	if err != nil {
		return err
	}

	deviceRate := int(dev.DefaultSampleRate)
	deviceChannels := dev.MaxInputChannels
	if deviceChannels > opusChannels {
		deviceChannels = opusChannels
	}
	if deviceChannels < 1 {
		deviceChannels = 1
	}

	needsResample := deviceRate != opusSampleRate
	inputFrames := opusFrameSamples
	var rs *resampler.Resampler
	if needsResample {
		inputFrames = ceilDiv(opusFrameSamples*deviceRate, opusSampleRate)
		rs = resampler.New(deviceRate, opusSampleRate, inputFrames, opusChannels)
	}

	enc, err := opus.NewEncoder(opusSampleRate, opusChannels, opus.AppVoIP)
	if err != nil {
		return fmt.Errorf("voice: new opus encoder: %w", err)
	}
	enc.SetBitrate(opusBitrate)
	enc.SetInBandFEC(true)
	enc.SetDTX(true)

	buf := make([]float32, inputFrames*deviceChannels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: deviceChannels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(deviceRate),
		FramesPerBuffer: inputFrames,
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("voice: open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("voice: start capture stream: %w", err)
	}

	c.stream = stream
	c.running.Store(true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.encodeLoop(buf, deviceChannels, rs, enc, track)
	}()

	log.Printf("[voice] capture started device=%s rate=%dHz channels=%d resample=%v",
		dev.Name, deviceRate, deviceChannels, needsResample)
	return nil
}

// Stop halts the stream and waits for the encode loop to exit before
// releasing the native stream, mirroring the audio engine's
// stop-before-close ordering to avoid touching a freed stream handle.
func (c *Capture) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}

	c.mu.Lock()
	if c.stream != nil {
		c.stream.Stop()
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	c.mu.Unlock()
}

func (c *Capture) encodeLoop(buf []float32, deviceChannels int, rs *resampler.Resampler, enc *opus.Encoder, track *webrtc.TrackLocalStaticRTP) {
	pcm := make([]int16, opusFrameSamples*opusChannels)
	opusBuf := make([]byte, opusMaxPacketBytes)
	det := speaking.New()

	var sequence uint16
	var timestamp uint32

	for c.running.Load() {
		if err := c.stream.Read(); err != nil {
			if c.running.Load() {
				log.Printf("[voice] capture read: %v", err)
			}
			return
		}

		gain := math.Float32frombits(c.micGain.Load())
		if gain != 1.0 {
			for i, s := range buf {
				buf[i] = s * gain
			}
		}

		stereo := toStereo(buf, deviceChannels)
		frame48k := stereo
		if rs != nil {
			frame48k = rs.Process(stereo)
		}

		mono := downmix(frame48k)
		if speaking, changed := det.Process(mono, frameMS); changed {
			select {
			case c.events <- CaptureEvent{Speaking: speaking}:
			default:
			}
		}

		if c.muted.Load() {
			timestamp += opusFrameSamples
			continue
		}

		n := len(frame48k)
		if n > len(pcm) {
			n = len(pcm)
		}
		for i := 0; i < n; i++ {
			pcm[i] = floatToInt16(frame48k[i])
		}

		encodedLen, err := enc.Encode(pcm[:n], opusBuf)
		if err != nil {
			log.Printf("[voice] opus encode: %v", err)
			continue
		}

		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayloadType,
				SequenceNumber: sequence,
				Timestamp:      timestamp,
			},
			Payload: append([]byte(nil), opusBuf[:encodedLen]...),
		}
		sequence++
		timestamp += opusFrameSamples

		if err := track.WriteRTP(pkt); err != nil {
			log.Printf("[voice] rtp write: %v", err)
		}
	}
}

func findInputDevice(devices []*portaudio.DeviceInfo, name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultInputDevice()
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("voice: input device %q not found", name)
}

func toStereo(buf []float32, deviceChannels int) []float32 {
	if deviceChannels == opusChannels {
		out := make([]float32, len(buf))
		copy(out, buf)
		return out
	}
	out := make([]float32, len(buf)*opusChannels)
	for i, s := range buf {
		out[i*opusChannels] = s
		out[i*opusChannels+1] = s
	}
	return out
}

func downmix(stereo []float32) []float32 {
	mono := make([]float32, len(stereo)/opusChannels)
	for i := range mono {
		mono[i] = (stereo[i*opusChannels] + stereo[i*opusChannels+1]) / 2
	}
	return mono
}

func floatToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}

func ceilDiv(a, b int) int {
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}
