package call

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"telecare/internal/logger"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
)

// oggPageDuration is the pacing interval for Opus pages.
const oggPageDuration = 20 * time.Millisecond

// FileSource plays an Ogg/Opus file as the local audio stream. It stands in
// for a microphone on headless call endpoints; acquisition fails when the
// file is missing or not valid Ogg, mirroring a denied media device.
type FileSource struct {
	track *webrtc.TrackLocalStaticSample

	mu     sync.Mutex
	file   *os.File
	done   chan struct{}
	closed bool
}

// NewFileSource opens the audio file and starts pumping samples onto the
// track. The pump loops the file until Close.
func NewFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audio source failed: %w", err)
	}
	ogg, _, err := oggreader.NewWith(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("audio source is not valid ogg: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "telecare",
	)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	s := &FileSource{
		track: track,
		file:  file,
		done:  make(chan struct{}),
	}
	go s.pump(path, ogg)
	return s, nil
}

// Track returns the local audio track to attach to a peer connection.
func (s *FileSource) Track() webrtc.TrackLocal { return s.track }

// Close stops the pump and releases the file.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return s.file.Close()
}

func (s *FileSource) pump(path string, ogg *oggreader.OggReader) {
	log := logger.For("call.media").WithField("source", path)
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			// Loop from the start.
			if _, err := s.file.Seek(0, io.SeekStart); err != nil {
				return
			}
			ogg, _, err = oggreader.NewWith(s.file)
			if err != nil {
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			log.WithError(err).Warn("reading audio page failed")
			return
		}
		sampleCount := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		sampleDuration := time.Duration(sampleCount) * time.Millisecond / 48
		if err := s.track.WriteSample(media.Sample{Data: page, Duration: sampleDuration}); err != nil {
			return
		}
	}
}
