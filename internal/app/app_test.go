package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/akrusz/meditation-pal/internal/config"
	"github.com/akrusz/meditation-pal/internal/observe"
	tsmock "github.com/akrusz/meditation-pal/internal/transcript/mock"
	llmmock "github.com/akrusz/meditation-pal/pkg/provider/llm/mock"
	sttmock "github.com/akrusz/meditation-pal/pkg/provider/stt/mock"
	ttsmock "github.com/akrusz/meditation-pal/pkg/provider/tts/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNewProviders_Mocks(t *testing.T) {
	t.Parallel()

	p, err := NewProviders(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.STT.(*sttmock.Provider); !ok {
		t.Errorf("stt = %T, want mock", p.STT)
	}
	if _, ok := p.TTS.(*ttsmock.Provider); !ok {
		t.Errorf("tts = %T, want mock", p.TTS)
	}
	if _, ok := p.LLM.(*llmmock.Provider); !ok {
		t.Errorf("llm = %T, want mock", p.LLM)
	}
}

func TestNewProviders_UnknownNameRejected(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Providers.LLM.Name = "psychic"
	if _, err := NewProviders(cfg); err == nil {
		t.Error("unknown llm provider accepted")
	}
}

func TestNewProviders_ClipLibraryWrapsBackend(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Facilitation.ClipDir = t.TempDir()
	p, err := NewProviders(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.TTS.(*ttsmock.Provider); ok {
		t.Error("tts not wrapped in clip library")
	}
}

func TestNew_WiresInMemoryStore(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	providers, err := NewProviders(cfg)
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(context.Background(), cfg, providers, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown()

	if a.Manager() == nil || a.Server() == nil {
		t.Fatal("subsystems not wired")
	}

	srv := httptest.NewServer(a.Server().Handler())
	defer srv.Close()
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestNew_BadPromptConfigRejected(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Facilitation.Focuses = []string{"chakras"}
	providers, err := NewProviders(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), cfg, providers, WithMetrics(testMetrics(t))); err == nil {
		t.Error("invalid prompt config accepted")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:0"
	providers, err := NewProviders(cfg)
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(context.Background(), cfg, providers,
		WithMetrics(testMetrics(t)),
		WithStore(tsmock.NewStore()),
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on clean shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}
