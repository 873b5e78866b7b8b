package screen

import (
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"deskmedia/internal/hwenc"
	"deskmedia/internal/pixconv"
	"deskmedia/internal/pwcapture"
)

const (
	cropScanInterval   = 30                    // frames between alpha-crop rescans
	idrInterval        = 60                    // ~2s at 30fps
	previewInterval    = 33 * time.Millisecond  // ~30fps preview cadence
	sampleFrameDur     = 33 * time.Millisecond
	videoChanCapacity  = 4
)

// rawFrame is one PipeWire buffer already copied out of the SPA mapped
// memory by the crop/extraction step, ready for the encoder worker.
type rawFrame struct {
	data      []byte
	width     int
	height    int
	isBGRA    bool
}

// Capture owns the three workers: the video PipeWire worker, the H.264
// encoder worker, and the (best-effort) system-audio PipeWire worker. Each
// session gets a fresh stop flag so workers from a previous session never
// observe a new session's state.
type Capture struct {
	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewCapture returns an idle Capture.
func NewCapture() *Capture { return &Capture{} }

// Start spawns the video, encoder, and system-audio workers bound to a
// fresh stop flag. portal carries the node id, negotiated size, and
// PipeWire file descriptor obtained from PortalStart.
func (c *Capture) Start(videoTrack *webrtc.TrackLocalStaticSample, audioTrack *webrtc.TrackLocalStaticRTP, preview *PreviewServer, portal PortalResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stop := make(chan struct{})
	c.stop = stop

	frames := make(chan rawFrame, videoChanCapacity)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.videoWorker(stop, portal.FD, frames)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.encoderWorker(stop, frames, videoTrack, preview)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.audioWorker(stop, audioTrack)
	}()
}

// Stop signals every worker's stop flag and waits for them to exit.
func (c *Capture) Stop() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	c.wg.Wait()
}

// videoWorker runs a dedicated PipeWire video main loop: it tracks the
// negotiated VideoSize, rescans the alpha-crop decision every
// cropScanInterval frames, extracts/crops each buffer, and attempts a
// non-blocking send to frames, dropping the frame when the channel is
// full. frames is never closed; the loop quits only when stop is closed,
// and keeps running if the encoder worker has already returned.
func (c *Capture) videoWorker(stop chan struct{}, portalFD int, frames chan<- rawFrame) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var mu sync.Mutex
	var size pwcapture.VideoSize
	frameIdx := 0
	decision := CropDecision{Kind: CropFull}

	var sess *pwcapture.VideoSession
	sess = pwcapture.NewVideoSession(portalFD,
		func(s pwcapture.VideoSize) {
			mu.Lock()
			size = s
			mu.Unlock()
			log.Printf("[screen] video format negotiated %dx%d", s.Width, s.Height)
		},
		func(buf pwcapture.VideoBuffer) bool {
			mu.Lock()
			w := size.Width
			isBGRA := size.IsBGRA
			mu.Unlock()
			if w == 0 {
				return true
			}
			h := buf.ContentH
			if h <= 0 || h > size.Height {
				h = size.Height
			}

			frameIdx++
			if frameIdx%cropScanInterval == 1 {
				decision = DetectCrop(buf.Data, w, h)
			}

			var extracted VideoFrame
			switch decision.Kind {
			case CropEmptyFrame:
				return true
			case CropRegion:
				extracted = ExtractCrop(buf.Data, buf.Stride, h, decision)
			default:
				extracted = ExtractCrop(buf.Data, buf.Stride, h, CropDecision{Kind: CropFull, X: 0, Y: 0, W: w, H: h})
			}
			if extracted.Data == nil {
				return true
			}

			select {
			case frames <- rawFrame{data: extracted.Data, width: extracted.Width, height: extracted.Height, isBGRA: isBGRA}:
			default:
				// bounded channel full: drop the frame.
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

	if err := sess.Run(portalFD); err != nil {
		log.Printf("[screen] video worker: %v", err)
	}
}

// encoderWorker awaits the first frame to size the encoder, then encodes
// every subsequent frame, forcing an IDR every idrInterval frames and
// emitting a preview thumbnail every previewInterval.
func (c *Capture) encoderWorker(stop <-chan struct{}, frames <-chan rawFrame, track *webrtc.TrackLocalStaticSample, preview *PreviewServer) {
	var enc hwenc.Encoder
	var encW, encH int
	frameIdx := 0
	lastPreview := time.Time{}

	for {
		select {
		case <-stop:
			if enc != nil {
				enc.Close()
			}
			return
		case f, ok := <-frames:
			if !ok {
				if enc != nil {
					enc.Close()
				}
				return
			}

			w := f.width &^ 1
			h := f.height &^ 1
			if enc == nil {
				var err error
				enc, err = hwenc.Select(hwenc.DefaultParams(w, h))
				if err != nil {
					log.Printf("[screen] encoder init failed: %v", err)
					return
				}
				encW, encH = w, h
			}
			if w != encW || h != encH {
				// Resolution changes require an encoder rebuild; out of
				// scope here — drop the frame.
				continue
			}

			if time.Since(lastPreview) >= previewInterval {
				if jpg, err := EncodeThumbnail(f.data, f.width, f.height, f.isBGRA); err != nil {
					log.Printf("[screen] preview encode: %v", err)
				} else if preview != nil {
					preview.Publish(jpg)
				}
				lastPreview = time.Now()
			}

			var i420 []byte
			if f.isBGRA {
				i420 = pixconv.BGRAToI420(f.data, w, h)
			} else {
				i420 = pixconv.RGBAToI420(f.data, w, h)
			}

			frameIdx++
			forceKey := frameIdx%idrInterval == 1
			out, err := enc.Encode(i420, forceKey)
			if err != nil {
				log.Printf("[screen] h264 encode: %v", err)
				continue
			}
			if len(out) == 0 {
				continue
			}

			if err := track.WriteSample(webrtc.Sample{Data: out, Duration: sampleFrameDur}); err != nil {
				log.Printf("[screen] video sample write: %v", err)
			}
		}
	}
}
