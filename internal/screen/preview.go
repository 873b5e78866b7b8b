package screen

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"net"
	"sync"
)

const previewJPEGQuality = 55
const previewMaxWidth = 480

// previewHub is a latest-wins broadcaster: each connected HTTP client gets
// its own goroutine that blocks on a per-client signal, always reading the
// newest published frame rather than queuing every one ("latest-wins").
type previewHub struct {
	mu      sync.Mutex
	latest  []byte
	clients map[chan struct{}]struct{}
}

func newPreviewHub() *previewHub {
	return &previewHub{clients: make(map[chan struct{}]struct{})}
}

// Publish stores jpeg as the newest frame and wakes every subscribed
// client. A client still reading the previous frame simply sees the
// newer one next time it asks.
func (h *previewHub) Publish(jpeg []byte) {
	h.mu.Lock()
	h.latest = jpeg
	for ch := range h.clients {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *previewHub) subscribe() (chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}
}

func (h *previewHub) current() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// PreviewServer binds a loopback TCP listener on an ephemeral port and
// serves multipart/x-mixed-replace JPEG updates to any number of clients,
// to any number of clients.
type PreviewServer struct {
	hub      *previewHub
	listener net.Listener
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewPreviewServer binds the listener and returns the server along with
// the bound port; the accept loop is started by Serve.
func NewPreviewServer() (*PreviewServer, uint16, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("screen: preview listen: %w", err)
	}
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	return &PreviewServer{hub: newPreviewHub(), listener: ln, stop: make(chan struct{})}, port, nil
}

// Publish forwards a new JPEG thumbnail to all connected preview clients.
func (s *PreviewServer) Publish(jpeg []byte) { s.hub.Publish(jpeg) }

// Serve runs the accept loop until Stop is called.
func (s *PreviewServer) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				log.Printf("[screen] preview accept: %v", err)
				return
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop closes the listener and waits for all connection handlers to
// exit.
func (s *PreviewServer) Stop() {
	close(s.stop)
	s.listener.Close()
	s.wg.Wait()
}

func (s *PreviewServer) handleConn(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	header := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: multipart/x-mixed-replace; boundary=frame\r\n" +
		"Cache-Control: no-cache, no-store\r\n" +
		"Connection: close\r\n" +
		"Access-Control-Allow-Origin: *\r\n\r\n"
	if _, err := conn.Write([]byte(header)); err != nil {
		return
	}

	ch, unsubscribe := s.hub.subscribe()
	defer unsubscribe()

	if cur := s.hub.current(); cur != nil {
		if !writeFrame(conn, cur) {
			return
		}
	}

	for {
		select {
		case <-s.stop:
			return
		case <-ch:
			frame := s.hub.current()
			if frame == nil {
				continue
			}
			if !writeFrame(conn, frame) {
				return
			}
		}
	}
}

func writeFrame(conn net.Conn, jpg []byte) bool {
	part := fmt.Sprintf("--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpg))
	if _, err := conn.Write([]byte(part)); err != nil {
		return false
	}
	if _, err := conn.Write(jpg); err != nil {
		return false
	}
	_, err := conn.Write([]byte("\r\n"))
	return err == nil
}

// EncodeThumbnail nearest-neighbour downscales a packed BGRA/RGBA frame to
// at most previewMaxWidth wide, converts to RGB, and JPEG-encodes at
// previewJPEGQuality, for the periodic preview emission in the encoder worker.
func EncodeThumbnail(data []byte, width, height int, isBGRA bool) ([]byte, error) {
	dstW := width
	dstH := height
	if dstW > previewMaxWidth {
		dstH = height * previewMaxWidth / width
		dstW = previewMaxWidth
	}
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	for y := 0; y < dstH; y++ {
		srcY := y * height / dstH
		for x := 0; x < dstW; x++ {
			srcX := x * width / dstW
			off := (srcY*width + srcX) * 4
			var r, g, b byte
			if isBGRA {
				b, g, r = data[off], data[off+1], data[off+2]
			} else {
				r, g, b = data[off], data[off+1], data[off+2]
			}
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: previewJPEGQuality}); err != nil {
		return nil, fmt.Errorf("screen: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
