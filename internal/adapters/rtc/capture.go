package rtc

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mkhas/Rescue/internal/core"
)

const maxRTPPacket = 1600

// RTPSource is the local capture device: RTP fed into local UDP ports
// (a gstreamer/ffmpeg pipeline, typically) and forwarded into shared
// TrackLocalStaticRTP tracks. One source serves every peer connection.
type RTPSource struct {
	tracks []webrtc.TrackLocal
	conns  []*net.UDPConn
	wg     sync.WaitGroup
	once   sync.Once
}

// OpenRTPSource binds the configured ports. Zero for a port disables that
// kind; both disabled means there is nothing to capture.
func OpenRTPSource(audioPort, videoPort int) (*RTPSource, error) {
	if audioPort == 0 && videoPort == 0 {
		return nil, core.ErrMediaUnavailable
	}

	streamID := "capture-" + uuid.NewString()
	src := &RTPSource{}

	type binding struct {
		port  int
		codec webrtc.RTPCodecCapability
		id    string
	}
	bindings := []binding{
		{audioPort, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio"},
		{videoPort, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video"},
	}

	for _, b := range bindings {
		if b.port == 0 {
			continue
		}
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: b.port})
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("%w: bind %s port %d: %v", core.ErrMediaUnavailable, b.id, b.port, err)
		}
		track, err := webrtc.NewTrackLocalStaticRTP(b.codec, b.id, streamID)
		if err != nil {
			_ = conn.Close()
			src.Close()
			return nil, fmt.Errorf("%w: %s track: %v", core.ErrMediaUnavailable, b.id, err)
		}
		src.conns = append(src.conns, conn)
		src.tracks = append(src.tracks, track)

		src.wg.Add(1)
		go src.pump(conn, track, b.id)
	}

	log.Info().Str("module", "rtc.capture").Int("audio_port", audioPort).Int("video_port", videoPort).Msg("capture source open")
	return src, nil
}

// pump reads RTP off the socket and writes it into the shared track.
// A read error after Close is the normal exit path.
func (s *RTPSource) pump(conn *net.UDPConn, track *webrtc.TrackLocalStaticRTP, kind string) {
	defer s.wg.Done()
	buf := make([]byte, maxRTPPacket)
	pkt := &rtp.Packet{}
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Str("module", "rtc.capture").Str("kind", kind).Msg("capture read error")
			}
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			log.Debug().Err(err).Str("module", "rtc.capture").Str("kind", kind).Msg("bad RTP packet")
			continue
		}
		if err := track.WriteRTP(pkt); err != nil {
			log.Warn().Err(err).Str("module", "rtc.capture").Str("kind", kind).Msg("capture write error")
			return
		}
	}
}

func (s *RTPSource) Tracks() []webrtc.TrackLocal {
	return s.tracks
}

// Close releases the sockets exactly once and waits for the pumps to drain.
func (s *RTPSource) Close() {
	s.once.Do(func() {
		for _, conn := range s.conns {
			_ = conn.Close()
		}
		s.wg.Wait()
		log.Info().Str("module", "rtc.capture").Msg("capture source closed")
	})
}

var _ core.MediaSource = (*RTPSource)(nil)
