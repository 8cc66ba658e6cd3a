package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/akrusz/meditation-pal/internal/session"
	"github.com/akrusz/meditation-pal/pkg/audio"
)

// startTimeout bounds how long a new connection may take to send its start
// message before the server hangs up.
const startTimeout = 10 * time.Second

// clientMessage is a JSON control message from the client. Binary messages on
// the same connection carry microphone audio as little-endian float32 samples
// at the server's configured capture rate.
type clientMessage struct {
	// Type is one of "start", "end", "playback_finished",
	// "playback_progress".
	Type string `json:"type"`

	// SessionID names the session to start or resume. Required on "start".
	SessionID string `json:"session_id,omitempty"`

	// Playing reports whether facilitator audio is currently audible, for
	// "playback_progress".
	Playing bool `json:"playing,omitempty"`
}

// serverMessage is a JSON event to the client. Facilitator audio travels as
// binary Opus packets bracketed by "audio_start" and "audio_end" messages.
type serverMessage struct {
	// Type is one of "transcript", "facilitator", "audio_start",
	// "audio_end", "cancel", "mute", "busy", "ended", "error".
	Type string `json:"type"`

	// Text carries the transcript or facilitator line.
	Text string `json:"text,omitempty"`

	// Codec and SampleRate describe the binary audio that follows an
	// "audio_start" message. Codec is "opus" or "pcm_s16le".
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`

	// Muted reports the new state on a "mute" message.
	Muted bool `json:"muted,omitempty"`

	// Error describes the failure on an "error" message.
	Error string `json:"error,omitempty"`
}

// handleSession upgrades to a websocket and bridges the connection to a live
// session: inbound microphone frames and control messages one way, session
// events and synthesized audio the other.
//
// A connection for an ID that is already live resumes that session, so a
// dropped client can reconnect mid-sit.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id, err := readStart(ctx, conn)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	sess, resumed := s.manager.Get(id)
	if !resumed {
		sess, err = s.manager.Start(ctx, id)
		if err != nil {
			_ = wsjson.Write(ctx, conn, serverMessage{Type: "error", Error: err.Error()})
			conn.Close(websocket.StatusInternalError, "session start failed")
			return
		}
	}

	log := slog.With("session_id", id)
	log.Info("client connected", "resumed", resumed)

	go s.writeEvents(ctx, cancel, conn, sess, id, log)

	if err := s.readFrames(ctx, conn, sess, id); err != nil && ctx.Err() == nil {
		log.Info("client disconnected", "err", err)
	}
}

// readStart waits for the initial start message and returns the session ID.
func readStart(ctx context.Context, conn *websocket.Conn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	var msg clientMessage
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		return "", fmt.Errorf("read start message: %w", err)
	}
	if msg.Type != "start" {
		return "", fmt.Errorf("expected start message, got %q", msg.Type)
	}
	if msg.SessionID == "" {
		return "", fmt.Errorf("start message missing session_id")
	}
	return msg.SessionID, nil
}

// readFrames pumps inbound messages into the session until the connection or
// context ends. Frame timestamps derive from the cumulative sample count, so
// the session's clock keeps advancing across reconnects.
func (s *Server) readFrames(ctx context.Context, conn *websocket.Conn, sess *session.Session, id string) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		switch typ {
		case websocket.MessageBinary:
			samples := audio.Float32FromLE(data)
			if len(samples) == 0 {
				continue
			}
			frame := audio.Frame{
				Samples:    samples,
				SampleRate: s.sampleRate,
				Timestamp:  s.advanceClock(id, len(samples)),
			}
			if err := sess.PushFrame(ctx, frame); err != nil {
				return err
			}

		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Warn("malformed control message", "session_id", id, "err", err)
				continue
			}
			switch msg.Type {
			case "end":
				sess.End()
			case "playback_finished":
				sess.PlaybackFinished()
			case "playback_progress":
				sess.PlaybackProgress(msg.Playing)
			default:
				slog.Warn("unknown control message", "session_id", id, "type", msg.Type)
			}
		}
	}
}

// writeEvents forwards session events to the client until the session ends or
// the connection drops.
func (s *Server) writeEvents(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *session.Session, id string, log *slog.Logger) {
	defer cancel()
	encoders := make(map[int]*opusEncoder)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sess.Events():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session ended")
				return
			}
			if err := s.writeEvent(ctx, conn, encoders, ev); err != nil {
				log.Info("event write failed", "err", err)
				return
			}
			if ev.Kind == session.EventEnded {
				s.dropClock(id)
				conn.Close(websocket.StatusNormalClosure, "session ended")
				return
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, encoders map[int]*opusEncoder, ev session.Event) error {
	switch ev.Kind {
	case session.EventUserTranscript:
		return wsjson.Write(ctx, conn, serverMessage{Type: "transcript", Text: ev.Text})

	case session.EventFacilitatorText:
		return wsjson.Write(ctx, conn, serverMessage{Type: "facilitator", Text: ev.Text})

	case session.EventFacilitatorAudio:
		return s.writeClip(ctx, conn, encoders, ev)

	case session.EventPlaybackCancel:
		return wsjson.Write(ctx, conn, serverMessage{Type: "cancel"})

	case session.EventMuteChanged:
		return wsjson.Write(ctx, conn, serverMessage{Type: "mute", Muted: ev.Muted})

	case session.EventBusy:
		return wsjson.Write(ctx, conn, serverMessage{Type: "busy", Text: ev.Text})

	case session.EventEnded:
		return wsjson.Write(ctx, conn, serverMessage{Type: "ended"})
	}
	return nil
}

// writeClip sends one facilitator clip as an audio_start message, a run of
// binary Opus packets, and an audio_end message. If the encoder cannot be
// created the clip falls back to a single raw PCM message.
func (s *Server) writeClip(ctx context.Context, conn *websocket.Conn, encoders map[int]*opusEncoder, ev session.Event) error {
	rate := opusRate(ev.Clip.SampleRate)
	enc, ok := encoders[rate]
	if !ok {
		var err error
		enc, err = newOpusEncoder(rate)
		if err != nil {
			slog.Warn("opus encoder unavailable, sending raw pcm", "err", err)
			return s.writeClipPCM(ctx, conn, ev)
		}
		encoders[rate] = enc
	}

	packets, err := enc.encodeClip(ev.Clip.PCM, ev.Clip.SampleRate)
	if err != nil {
		slog.Warn("opus encode failed, sending raw pcm", "err", err)
		return s.writeClipPCM(ctx, conn, ev)
	}

	if err := wsjson.Write(ctx, conn, serverMessage{Type: "audio_start", Codec: "opus", SampleRate: rate}); err != nil {
		return err
	}
	for _, pkt := range packets {
		if err := conn.Write(ctx, websocket.MessageBinary, pkt); err != nil {
			return err
		}
	}
	return wsjson.Write(ctx, conn, serverMessage{Type: "audio_end"})
}

func (s *Server) writeClipPCM(ctx context.Context, conn *websocket.Conn, ev session.Event) error {
	if err := wsjson.Write(ctx, conn, serverMessage{Type: "audio_start", Codec: "pcm_s16le", SampleRate: ev.Clip.SampleRate}); err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageBinary, ev.Clip.PCM); err != nil {
		return err
	}
	return wsjson.Write(ctx, conn, serverMessage{Type: "audio_end"})
}
