package voice

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/pion/webrtc/v4"
	"gopkg.in/hraban/opus.v2"

	"deskmedia/internal/resampler"
)

const playbackRingMS = 500

// Playback owns the output device stream and the mix buffer that every
// remote track's decode goroutine writes into.
type Playback struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	wg     sync.WaitGroup
	ring   *sampleRing

	running      atomic.Bool
	deafened     atomic.Bool
	masterVolume atomic.Uint32 // float32 bits

	deviceRate     int
	deviceChannels int
}

// NewPlayback returns a Playback at unity master volume, not deafened.
func NewPlayback() *Playback {
	p := &Playback{deviceRate: opusSampleRate, deviceChannels: opusChannels}
	p.masterVolume.Store(math.Float32bits(1.0))
	return p
}

// SetDeafened silences the output device entirely; remote audio is still
// decoded and queued, only the device write is zeroed.
func (p *Playback) SetDeafened(deafened bool) { p.deafened.Store(deafened) }

// SetMasterVolume sets the linear gain applied at the device write stage.
func (p *Playback) SetMasterVolume(vol float32) { p.masterVolume.Store(math.Float32bits(vol)) }

// IsRunning reports whether the output stream is active.
func (p *Playback) IsRunning() bool { return p.running.Load() }

// Start opens deviceName (or the system default output when empty) and
// begins the playback loop.
func (p *Playback) Start(deviceName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("voice: list devices: %w", err)
	}

	dev, err := findOutputDevice(devices, deviceName)
	if err != nil {
		return err
	}

	deviceRate := int(dev.DefaultSampleRate)
	deviceChannels := dev.MaxOutputChannels
	if deviceChannels > opusChannels {
		deviceChannels = opusChannels
	}
	if deviceChannels < 1 {
		deviceChannels = 1
	}
	p.deviceRate = deviceRate
	p.deviceChannels = deviceChannels

	ringSize := deviceRate * deviceChannels * playbackRingMS / 1000
	if ringSize < 16384 {
		ringSize = 16384
	}
	p.ring = newSampleRing(ringSize)

	framesPerBuffer := opusFrameSamples * deviceRate / opusSampleRate
	if framesPerBuffer < 1 {
		framesPerBuffer = 1
	}
	buf := make([]float32, framesPerBuffer*deviceChannels)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: deviceChannels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(deviceRate),
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("voice: open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("voice: start playback stream: %w", err)
	}

	p.stream = stream
	p.running.Store(true)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.playbackLoop(buf)
	}()

	log.Printf("[voice] playback started device=%s rate=%dHz channels=%d", dev.Name, deviceRate, deviceChannels)
	return nil
}

// Stop halts and releases the output stream, matching the
// stop-before-close ordering used by Capture.
func (p *Playback) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	p.mu.Lock()
	if p.stream != nil {
		p.stream.Stop()
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	p.ring = nil
	p.mu.Unlock()
}

func (p *Playback) playbackLoop(buf []float32) {
	for p.running.Load() {
		vol := math.Float32frombits(p.masterVolume.Load())
		deaf := p.deafened.Load()
		ring := p.ring

		for i := range buf {
			if deaf || ring == nil {
				buf[i] = 0
				continue
			}
			if s, ok := ring.pop(); ok {
				buf[i] = s * vol
			} else {
				buf[i] = 0
			}
		}

		if err := p.stream.Write(); err != nil {
			if p.running.Load() {
				log.Printf("[voice] playback write: %v", err)
			}
			return
		}
	}
}

// decodeRemoteTrack runs for the lifetime of one remote audio track: it
// decodes Opus, resamples 48kHz stereo down to the device format, and
// pushes the result into the shared mix ring. Returns when the track
// closes or a read error is not recoverable.
func (p *Playback) decodeRemoteTrack(track *webrtc.TrackRemote) {
	dec, err := opus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		log.Printf("[voice] new opus decoder: %v", err)
		return
	}

	p.mu.Lock()
	deviceRate := p.deviceRate
	deviceChannels := p.deviceChannels
	p.mu.Unlock()

	needsResample := deviceRate != opusSampleRate
	var rs *resampler.Resampler
	if needsResample {
		rs = resampler.New(opusSampleRate, deviceRate, opusFrameSamples, opusChannels)
	}

	pcm := make([]int16, opusFrameSamples*opusChannels)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			log.Printf("[voice] opus decode: %v", err)
			continue
		}

		samples := make([]float32, n*opusChannels)
		for i := range samples {
			samples[i] = float32(pcm[i]) / 32768.0
		}

		if rs != nil {
			samples = rs.Process(samples)
		}

		output := adaptChannels(samples, opusChannels, deviceChannels)

		p.mu.Lock()
		ring := p.ring
		p.mu.Unlock()
		if ring == nil {
			continue
		}
		for _, s := range output {
			ring.push(s)
		}
	}
}

// adaptChannels converts interleaved samples from fromCh to toCh channels:
// downmix by averaging, upmix by duplicating the first channel.
func adaptChannels(samples []float32, fromCh, toCh int) []float32 {
	if fromCh == toCh {
		return samples
	}
	frames := len(samples) / fromCh
	out := make([]float32, 0, frames*toCh)
	for i := 0; i < frames; i++ {
		if toCh == 1 {
			var sum float32
			for c := 0; c < fromCh; c++ {
				sum += samples[i*fromCh+c]
			}
			out = append(out, sum/float32(fromCh))
			continue
		}
		for c := 0; c < toCh; c++ {
			if c < fromCh {
				out = append(out, samples[i*fromCh+c])
			} else {
				out = append(out, samples[i*fromCh])
			}
		}
	}
	return out
}

func findOutputDevice(devices []*portaudio.DeviceInfo, name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultOutputDevice()
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("voice: output device %q not found", name)
}

// sampleRing is a mutex-guarded circular float32 buffer. Concurrent
// decode goroutines from every remote track push into it; the device
// write loop pops at a fixed rate. Samples from distinct tracks land in
// FIFO order, interleaved rather than summed.
type sampleRing struct {
	mu   sync.Mutex
	buf  []float32
	r, w int
	full bool
}

func newSampleRing(size int) *sampleRing {
	return &sampleRing{buf: make([]float32, size)}
}

func (q *sampleRing) push(s float32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.buf[q.w] = s
	q.w = (q.w + 1) % len(q.buf)
	if q.w == q.r {
		q.full = true
	}
	return true
}

func (q *sampleRing) pop() (float32, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.r == q.w && !q.full {
		return 0, false
	}
	s := q.buf[q.r]
	q.r = (q.r + 1) % len(q.buf)
	q.full = false
	return s, true
}
