package capture

import (
	"strconv"
	"strings"
	"sync"
	"time"

	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/logger"
)

// PatternVideoSource is the reference VideoSource implementation: it
// produces a deterministic BGRA test pattern at a fixed frame rate on a
// bounded channel. It stands in for the platform-native screen/window
// grabber the spec treats as an external dependency (§1 non-goals), using
// the same stop-channel/done-channel decode-loop shutdown shape the
// teacher pack's camera decode loop uses.
type PatternVideoSource struct {
	id     string
	width  int
	height int
	fps    int
	drops  DropCounter

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewPatternVideoSource opens a video source for the given opaque id
// (monitor or window handle) at width x height and fps. Per spec §6, id
// must be prefixed "monitor:" or "window:"; any other prefix is
// SourceNotFound.
func NewPatternVideoSource(id string, width, height, fps int, drops DropCounter) (*PatternVideoSource, error) {
	if !strings.HasPrefix(id, "monitor:") && !strings.HasPrefix(id, "window:") {
		return nil, rerrors.NewStartupError(rerrors.SourceNotFound, "capture.new_video_source", errUnknownSourcePrefix(id))
	}
	if width <= 0 || height <= 0 {
		return nil, rerrors.NewStartupError(rerrors.FormatNotSupported, "capture.new_video_source", errBadDims{w: width, h: height})
	}
	if fps <= 0 {
		fps = 30
	}
	return &PatternVideoSource{id: id, width: width, height: height, fps: fps, drops: drops}, nil
}

// Dimensions implements VideoSource.
func (s *PatternVideoSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Start implements VideoSource.
func (s *PatternVideoSource) Start() (<-chan RawVideoFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, rerrors.NewPolicyError(rerrors.AlreadyStarted, "capture.video_source.start")
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	out := make(chan RawVideoFrame, videoChanCapacity)
	go s.run(out)
	return out, nil
}

// Stop implements VideoSource.
func (s *PatternVideoSource) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.running = false
	s.mu.Unlock()

	close(stop)
	<-done
}

func (s *PatternVideoSource) run(out chan<- RawVideoFrame) {
	defer close(out)
	defer close(s.done)

	stride := s.width * 4
	interval := time.Second / time.Duration(s.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var frame uint64
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			buf := renderPattern(s.width, s.height, stride, frame)
			select {
			case out <- RawVideoFrame{Data: buf, Width: s.width, Height: s.height, Stride: stride, CaptureAt: now}:
			default:
				if s.drops != nil {
					s.drops.RecordCaptureDrop()
				}
				logger.Warn("video capture channel full, dropping frame", "source", s.id)
			}
			frame++
		}
	}
}

// renderPattern fills a BGRA buffer with a moving diagonal gradient so
// downstream conversion/encode tests have distinguishable, non-degenerate
// frames without depending on a real screen-grab backend.
func renderPattern(width, height, stride int, frame uint64) []byte {
	buf := make([]byte, stride*height)
	shift := byte(frame % 256)
	for y := 0; y < height; y++ {
		row := buf[y*stride:]
		for x := 0; x < width; x++ {
			v := byte((x + y)) + shift
			row[x*4+0] = v       // B
			row[x*4+1] = v / 2   // G
			row[x*4+2] = 255 - v // R
			row[x*4+3] = 255     // A
		}
	}
	return buf
}

type errBadDims struct {
	w, h int
}

func (e errBadDims) Error() string {
	return "video source requires positive width and height, got " +
		strconv.Itoa(e.w) + "x" + strconv.Itoa(e.h)
}

type errUnknownSourcePrefix string

func (e errUnknownSourcePrefix) Error() string {
	return "capture source id " + strconv.Quote(string(e)) + ` must be prefixed "monitor:" or "window:"`
}
