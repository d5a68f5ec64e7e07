package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/JohanEM99/video-meet/internal/call"
)

const (
	streamID         = "meet"
	oggPageDuration  = 20 * time.Millisecond
	opusSampleRate   = 48000
	defaultFrameRate = 30
)

// Device stands in for a camera and microphone: it plays an IVF video file
// and an Ogg/Opus audio file in a loop. Either may be empty, and with both
// empty the participant only receives.
type Device struct {
	VideoFile string
	AudioFile string
}

// Acquire opens the configured files and starts pumping their samples.
// A file that cannot be opened or parsed fails the whole acquisition.
func (d *Device) Acquire(ctx context.Context) (call.Media, error) {
	m := &LocalMedia{}
	m.audioOn.Store(true)
	m.videoOn.Store(true)

	var sources []func(context.Context)

	if d.VideoFile != "" {
		src, track, err := openVideo(d.VideoFile, &m.videoOn)
		if err != nil {
			m.closeFiles()
			return nil, err
		}
		m.tracks = append(m.tracks, track)
		m.files = append(m.files, src.file)
		sources = append(sources, src.pump)
	}

	if d.AudioFile != "" {
		src, track, err := openAudio(d.AudioFile, &m.audioOn)
		if err != nil {
			m.closeFiles()
			return nil, err
		}
		m.tracks = append(m.tracks, track)
		m.files = append(m.files, src.file)
		sources = append(sources, src.pump)
	}

	if err := ctx.Err(); err != nil {
		m.closeFiles()
		return nil, err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	for _, pump := range sources {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			pump(pumpCtx)
		}()
	}

	slog.Info("local media ready", "video", d.VideoFile, "audio", d.AudioFile, "tracks", len(m.tracks))
	return m, nil
}

// LocalMedia is the running output of a Device.
type LocalMedia struct {
	tracks []*pion.TrackLocalStaticSample
	files  []*os.File

	audioOn atomic.Bool
	videoOn atomic.Bool

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Tracks returns the local tracks to add to a peer connection.
func (m *LocalMedia) Tracks() []*pion.TrackLocalStaticSample {
	return m.tracks
}

// SetAudioEnabled mutes or unmutes. Muted audio keeps its pace but sends nothing.
func (m *LocalMedia) SetAudioEnabled(on bool) { m.audioOn.Store(on) }

// SetVideoEnabled turns the video off or on.
func (m *LocalMedia) SetVideoEnabled(on bool) { m.videoOn.Store(on) }

func (m *LocalMedia) AudioEnabled() bool { return m.audioOn.Load() }
func (m *LocalMedia) VideoEnabled() bool { return m.videoOn.Load() }

// Stop ends the pumps and closes the files. It is idempotent.
func (m *LocalMedia) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
		m.closeFiles()
	})
}

func (m *LocalMedia) closeFiles() {
	for _, f := range m.files {
		f.Close()
	}
	m.files = nil
}

type source struct {
	file *os.File
	pump func(ctx context.Context)
}

func deviceError(path string, err error) error {
	return call.WrapError("open "+path, call.ErrDeviceAccess, err.Error())
}

func openVideo(path string, enabled *atomic.Bool) (*source, *pion.TrackLocalStaticSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, deviceError(path, err)
	}

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, nil, deviceError(path, err)
	}

	var mime string
	switch header.FourCC {
	case "VP80":
		mime = pion.MimeTypeVP8
	case "VP90":
		mime = pion.MimeTypeVP9
	case "AV01":
		mime = pion.MimeTypeAV1
	default:
		f.Close()
		return nil, nil, deviceError(path, fmt.Errorf("unsupported codec %q", header.FourCC))
	}

	track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: mime}, "video", streamID)
	if err != nil {
		f.Close()
		return nil, nil, deviceError(path, err)
	}

	interval := time.Second / defaultFrameRate
	if header.TimebaseNumerator > 0 && header.TimebaseDenominator > 0 {
		interval = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}

	pump := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		rewound := false
		for {
			frame, _, err := ivf.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				if rewound {
					slog.Warn("video file has no frames", "file", path)
					return
				}
				rewound = true
				if ivf, err = rewindIVF(f); err != nil {
					slog.Warn("video rewind failed", "file", path, "error", err)
					return
				}
				continue
			}
			if err != nil {
				slog.Warn("video read failed", "file", path, "error", err)
				return
			}
			rewound = false

			if enabled.Load() {
				if err := track.WriteSample(media.Sample{Data: frame, Duration: interval}); err != nil {
					slog.Debug("video write failed", "error", err)
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}

	return &source{file: f, pump: pump}, track, nil
}

func rewindIVF(f *os.File) (*ivfreader.IVFReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	ivf, _, err := ivfreader.NewWith(f)
	return ivf, err
}

func openAudio(path string, enabled *atomic.Bool) (*source, *pion.TrackLocalStaticSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, deviceError(path, err)
	}

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, nil, deviceError(path, err)
	}

	track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		f.Close()
		return nil, nil, deviceError(path, err)
	}

	pump := func(ctx context.Context) {
		ticker := time.NewTicker(oggPageDuration)
		defer ticker.Stop()

		var lastGranule uint64
		rewound := false
		for {
			page, header, err := ogg.ParseNextPage()
			if errors.Is(err, io.EOF) {
				if rewound {
					slog.Warn("audio file has no pages", "file", path)
					return
				}
				rewound = true
				if ogg, err = rewindOgg(f); err != nil {
					slog.Warn("audio rewind failed", "file", path, "error", err)
					return
				}
				lastGranule = 0
				continue
			}
			if err != nil {
				slog.Warn("audio read failed", "file", path, "error", err)
				return
			}
			rewound = false

			// The granule position is the running sample count at 48 kHz.
			samples := header.GranulePosition - lastGranule
			lastGranule = header.GranulePosition
			duration := time.Duration(samples) * time.Second / opusSampleRate

			if enabled.Load() && samples > 0 {
				if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
					slog.Debug("audio write failed", "error", err)
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}

	return &source{file: f, pump: pump}, track, nil
}

func rewindOgg(f *os.File) (*oggreader.OggReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	ogg, _, err := oggreader.NewWith(f)
	return ogg, err
}
