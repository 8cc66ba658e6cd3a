package web

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/akrusz/meditation-pal/pkg/audio"
)

// dialSession connects a websocket client to the test server.
func dialSession(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/session/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// waitType reads until a JSON message of the wanted type arrives, discarding
// binary audio and other JSON messages.
func waitType(t *testing.T, ctx context.Context, conn *websocket.Conn, want string) serverMessage {
	t.Helper()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read while waiting for %q: %v", want, err)
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

// readClipPackets consumes binary packets until audio_end and returns how
// many arrived. Call after reading audio_start.
func readClipPackets(t *testing.T, ctx context.Context, conn *websocket.Conn) int {
	t.Helper()
	packets := 0
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read clip: %v", err)
		}
		if typ == websocket.MessageBinary {
			packets++
			continue
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type == "audio_end" {
			return packets
		}
	}
}

// frameBytes builds one 100 ms microphone frame of constant amplitude as
// little-endian float32 samples at 16 kHz.
func frameBytes(amp float64) []byte {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(amp)
	}
	return audio.Float32ToLE(samples)
}

func sendFrames(t *testing.T, ctx context.Context, conn *websocket.Conn, amp float64, count int) {
	t.Helper()
	b := frameBytes(amp)
	for range count {
		if err := conn.Write(ctx, websocket.MessageBinary, b); err != nil {
			t.Fatalf("send frame: %v", err)
		}
	}
}

func TestWebSocket_SessionFlow(t *testing.T) {
	f := newTestServer(t)
	f.stt.Text = "I feel steadier now"

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	conn := dialSession(t, ctx, srv)

	if err := wsjson.Write(ctx, conn, clientMessage{Type: "start", SessionID: "flow-sit"}); err != nil {
		t.Fatal(err)
	}

	// Opening line: text, then an Opus clip.
	opener := waitType(t, ctx, conn, "facilitator")
	if opener.Text == "" {
		t.Error("opener text is empty")
	}
	start := waitType(t, ctx, conn, "audio_start")
	if start.Codec != "opus" || start.SampleRate != 16000 {
		t.Errorf("audio_start = %+v", start)
	}
	if got := readClipPackets(t, ctx, conn); got == 0 {
		t.Error("no opus packets for opener clip")
	}
	if err := wsjson.Write(ctx, conn, clientMessage{Type: "playback_finished"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	// One second of room tone, five seconds of speech, then silence long
	// enough to close out the utterance.
	sendFrames(t, ctx, conn, 0.001, 10)
	sendFrames(t, ctx, conn, 0.1, 51)
	sendFrames(t, ctx, conn, 0.001, 25)

	transcript := waitType(t, ctx, conn, "transcript")
	if transcript.Text != "I feel steadier now" {
		t.Errorf("transcript = %q", transcript.Text)
	}
	reply := waitType(t, ctx, conn, "facilitator")
	if reply.Text != "Let that settle for a moment." {
		t.Errorf("reply = %q", reply.Text)
	}
	waitType(t, ctx, conn, "audio_start")
	readClipPackets(t, ctx, conn)

	if err := wsjson.Write(ctx, conn, clientMessage{Type: "end"}); err != nil {
		t.Fatal(err)
	}
	waitType(t, ctx, conn, "ended")
}

func TestWebSocket_RequiresStart(t *testing.T) {
	f := newTestServer(t)

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialSession(t, ctx, srv)

	if err := wsjson.Write(ctx, conn, clientMessage{Type: "end"}); err != nil {
		t.Fatal(err)
	}

	_, _, err := conn.Read(ctx)
	if err == nil {
		t.Fatal("expected connection to close")
	}
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v, want policy violation", got)
	}
}

func TestWebSocket_ResumeAfterDisconnect(t *testing.T) {
	f := newTestServer(t)

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn := dialSession(t, ctx, srv)
	if err := wsjson.Write(ctx, conn, clientMessage{Type: "start", SessionID: "resume-sit"}); err != nil {
		t.Fatal(err)
	}
	waitType(t, ctx, conn, "audio_start")
	readClipPackets(t, ctx, conn)
	_ = conn.Close(websocket.StatusNormalClosure, "going away")

	// The session outlives the connection.
	deadline := time.After(2 * time.Second)
	for {
		if _, ok := f.manager.Get("resume-sit"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("session gone after disconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}

	conn2 := dialSession(t, ctx, srv)
	if err := wsjson.Write(ctx, conn2, clientMessage{Type: "start", SessionID: "resume-sit"}); err != nil {
		t.Fatal(err)
	}
	if err := wsjson.Write(ctx, conn2, clientMessage{Type: "end"}); err != nil {
		t.Fatal(err)
	}
	waitType(t, ctx, conn2, "ended")

	deadline = time.After(2 * time.Second)
	for {
		if _, ok := f.manager.Get("resume-sit"); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("session still active after end")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
