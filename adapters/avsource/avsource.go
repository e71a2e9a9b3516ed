// Package avsource adapts a joy4 demuxer into a packetstream source
// adapter: a Startable whose read loop turns demuxed frames into packets
// and hands them to the stream via its emitter, pacing playback against
// the packets' own presentation timestamps.
package avsource

import (
	"io"
	"os"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/mp4"

	"github.com/pkg/errors"

	"github.com/lanikai/packetstream"
	"github.com/lanikai/packetstream/internal/logging"
)

var log = logging.DefaultLogger.WithTag("avsource")

var errNoVideoTrack = errors.New("avsource: no H.264 video track found")

// Source demuxes an MP4 file and emits its H.264 video packets, looping
// back to the start on EOF. It implements packetstream.Adapter and
// packetstream.Startable, so it is meant to be attached with
// Stream.AttachSource(src, true, true).
type Source struct {
	packetstream.NoopStateObserver

	emitter packetstream.PacketSignal

	file    *os.File
	demuxer *mp4.Demuxer
	video   av.VideoCodecData
	trackID int

	quit chan struct{}
	done chan struct{}
}

// Open opens filename and locates its first H.264 video track. The
// returned Source is not yet running; call Start (or register it with
// Stream.AttachSource using syncState=true so the stream drives it).
func Open(filename string) (*Source, error) {
	log.Info("opening %s", filename)
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	demuxer := mp4.NewDemuxer(file)
	codecs, err := demuxer.Streams()
	if err != nil {
		file.Close()
		return nil, err
	}

	s := &Source{file: file, demuxer: demuxer}
	s.trackID = -1
	for i, codec := range codecs {
		if codec.Type() == av.H264 {
			s.video = codec.(av.VideoCodecData)
			s.trackID = i
			break
		}
	}
	if s.trackID < 0 {
		file.Close()
		return nil, errNoVideoTrack
	}

	log.Info("H264 stream: %dx%d", s.video.Width(), s.video.Height())
	return s, nil
}

func (s *Source) Emitter() *packetstream.PacketSignal { return &s.emitter }

// Start begins the read loop on its own goroutine. Satisfies
// packetstream.Startable.
func (s *Source) Start() error {
	if s.quit != nil {
		return nil
	}
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.readLoop(s.quit, s.done)
	return nil
}

// Stop signals the read loop to exit and waits for it to finish.
func (s *Source) Stop() error {
	if s.quit == nil {
		return nil
	}
	close(s.quit)
	<-s.done
	s.quit = nil
	return nil
}

// Close releases the underlying file. Safe to call after Stop.
func (s *Source) Close() error {
	return s.file.Close()
}

func (s *Source) readLoop(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var start time.Time
	for {
		select {
		case <-quit:
			return
		default:
		}

		pkt, err := s.demuxer.ReadPacket()
		if err != nil {
			if err == io.EOF {
				s.demuxer.SeekToTime(0)
				start = time.Now().Add(50 * time.Millisecond)
				continue
			}
			log.Error("read %s: %v", s.file.Name(), err)
			return
		}
		if pkt.Idx != int8(s.trackID) {
			continue
		}

		if start.IsZero() {
			start = time.Now().Add(-pkt.Time)
		} else {
			select {
			case <-quit:
				return
			case <-time.After(time.Until(start.Add(pkt.Time))):
			}
		}

		data := pkt.Data
		if len(data) > 4 {
			data = data[4:]
		}

		if pkt.IsKeyFrame {
			if cd, ok := s.video.(h264parser.CodecData); ok {
				s.emit(cd.SPS())
				s.emit(cd.PPS())
			}
		}
		s.emit(data)
	}
}

func (s *Source) emit(data []byte) {
	if len(data) == 0 {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	p := packetstream.NewRawPacketNamed("H264Packet", cp, 0)
	s.emitter.Emit(packetstream.PacketEvent{Sender: s, Packet: p})
}
