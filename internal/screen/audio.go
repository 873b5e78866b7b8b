package screen

import (
	"log"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"gopkg.in/hraban/opus.v2"

	"deskmedia/internal/pwcapture"
	"deskmedia/internal/resampler"
)

const (
	screenAudioOpusPT   = 111
	screenAudioRate     = 48000
	screenAudioChannels = 2
	screenAudioBitrate  = 128000
	screenFrameSamples  = screenAudioRate * 20 / 1000 // 960, 20ms
	screenRingMS        = 400
	screenMaxPacket     = 4000
)

// audioRing is a lock-free-ish SPSC-style ring guarded by a mutex, sized
// for ~400ms of stereo 48kHz float samples. Overflowing
// pushes are dropped rather than blocking the PipeWire callback thread.
type audioRing struct {
	mu   sync.Mutex
	buf  []float32
	r, w int
	full bool
}

func newAudioRing(size int) *audioRing { return &audioRing{buf: make([]float32, size)} }

func (q *audioRing) push(s float32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return
	}
	q.buf[q.w] = s
	q.w = (q.w + 1) % len(q.buf)
	if q.w == q.r {
		q.full = true
	}
}

func (q *audioRing) pop() (float32, bool) {
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

// audioWorker runs the system-audio PipeWire stream (sink-monitor capture,
// not the portal fd) and a parallel Opus/RTP encode loop. Failure to
// connect is logged and non-fatal to the overall screen session.
func (c *Capture) audioWorker(stop <-chan struct{}, track *webrtc.TrackLocalStaticRTP) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ring := newAudioRing(screenAudioRate * screenAudioChannels * screenRingMS / 1000)
	var fmtMu sync.Mutex
	rate, channels := screenAudioRate, screenAudioChannels

	sess := pwcapture.NewAudioSession(
		func(f pwcapture.AudioFormat) {
			fmtMu.Lock()
			if f.Rate > 0 {
				rate = f.Rate
			}
			if f.Channels > 0 {
				channels = f.Channels
			}
			fmtMu.Unlock()
			log.Printf("[screen] audio format negotiated rate=%d channels=%d", f.Rate, f.Channels)
		},
		func(raw []byte) bool {
			n := len(raw) / 4
			for i := 0; i < n; i++ {
				bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
				ring.push(float32frombits(bits))
			}
			select {
			case <-stop:
				return false
			default:
				return true
			}
		},
	)

	go func() {
		<-stop
		sess.Stop()
	}()

	encodeStop := make(chan struct{})
	go func() {
		defer close(encodeStop)
		c.screenAudioEncodeLoop(stop, ring, &fmtMu, &rate, &channels, track)
	}()

	if err := sess.Run(); err != nil {
		log.Printf("[screen] audio worker: %v (system audio disabled for this session)", err)
	}
	<-encodeStop
}

func (c *Capture) screenAudioEncodeLoop(stop <-chan struct{}, ring *audioRing, fmtMu *sync.Mutex, rate, channels *int, track *webrtc.TrackLocalStaticRTP) {
	enc, err := opus.NewEncoder(screenAudioRate, screenAudioChannels, opus.AppAudio)
	if err != nil {
		log.Printf("[screen] new opus encoder: %v", err)
		return
	}
	enc.SetBitrate(screenAudioBitrate)
	enc.SetInBandFEC(true)
	enc.SetDTX(true)

	pcm := make([]int16, screenFrameSamples*screenAudioChannels)
	opusBuf := make([]byte, screenMaxPacket)

	var sequence uint16
	var timestamp uint32

	ticker := newFrameTicker(stop)
	defer ticker.stop()

	for ticker.wait() {
		fmtMu.Lock()
		devRate, devCh := *rate, *channels
		fmtMu.Unlock()

		frameLen := screenFrameSamples * devCh
		raw := make([]float32, frameLen)
		got := 0
		for i := 0; i < frameLen; i++ {
			if s, ok := ring.pop(); ok {
				raw[i] = s
				got++
			}
		}
		if got == 0 {
			continue
		}

		stereo := adaptToStereo(raw, devCh)
		if devRate != screenAudioRate {
			rs := resampler.New(devRate, screenAudioRate, len(stereo)/screenAudioChannels, screenAudioChannels)
			stereo = rs.Process(stereo)
		}

		n := len(stereo)
		if n > len(pcm) {
			n = len(pcm)
		}
		for i := 0; i < n; i++ {
			v := stereo[i]
			if v > 1 {
				v = 1
			}
			if v < -1 {
				v = -1
			}
			pcm[i] = int16(v * 32767)
		}

		encodedLen, err := enc.Encode(pcm[:n], opusBuf)
		if err != nil {
			log.Printf("[screen] opus encode: %v", err)
			continue
		}

		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    screenAudioOpusPT,
				SequenceNumber: sequence,
				Timestamp:      timestamp,
			},
			Payload: append([]byte(nil), opusBuf[:encodedLen]...),
		}
		sequence++
		timestamp += screenFrameSamples

		if err := track.WriteRTP(pkt); err != nil {
			log.Printf("[screen] rtp write: %v", err)
		}
	}
}

func adaptToStereo(samples []float32, fromCh int) []float32 {
	if fromCh == screenAudioChannels {
		return samples
	}
	frames := len(samples) / fromCh
	out := make([]float32, frames*screenAudioChannels)
	for i := 0; i < frames; i++ {
		if fromCh == 1 {
			out[i*2] = samples[i]
			out[i*2+1] = samples[i]
			continue
		}
		out[i*2] = samples[i*fromCh]
		out[i*2+1] = samples[i*fromCh+1]
	}
	return out
}

func float32frombits(b uint32) float32 {
	return math.Float32frombits(b)
}

// frameTicker fires once per 20ms encode frame and stops early when stop
// is closed, so screenAudioEncodeLoop's for-loop exits promptly.
type frameTicker struct {
	t      *time.Ticker
	stopCh <-chan struct{}
}

func newFrameTicker(stop <-chan struct{}) *frameTicker {
	return &frameTicker{t: time.NewTicker(20 * time.Millisecond), stopCh: stop}
}

func (f *frameTicker) wait() bool {
	select {
	case <-f.stopCh:
		return false
	case <-f.t.C:
		return true
	}
}

func (f *frameTicker) stop() { f.t.Stop() }
