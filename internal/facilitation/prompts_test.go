package facilitation

import (
	"strings"
	"testing"
)

func TestBuilder_SystemPromptComposition(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(PromptConfig{
		Focuses:        []string{"body_sensations", "emotions"},
		Qualities:      []string{"compassionate"},
		OrientPleasant: true,
		Directiveness:  5,
		Verbosity:      VerbosityMedium,
	})
	if err != nil {
		t.Fatal(err)
	}

	prompt := b.SystemPrompt()
	for _, want := range []string{
		"meditation facilitator",
		"Body & sensations",
		"Emotions & feeling tone",
		"Compassionate",
		"Orient toward pleasant",
		"Balanced between following",
		"1-2 sentences",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestBuilder_DefaultsToOpenAwareness(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(PromptConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.SystemPrompt(), "Whatever arises") {
		t.Error("empty focus list did not default to open awareness")
	}
}

func TestBuilder_RejectsUnknownDimensions(t *testing.T) {
	t.Parallel()

	if _, err := NewBuilder(PromptConfig{Focuses: []string{"chakras"}}); err == nil {
		t.Error("unknown focus accepted")
	}
	if _, err := NewBuilder(PromptConfig{Qualities: []string{"stern"}}); err == nil {
		t.Error("unknown quality accepted")
	}
	if _, err := NewBuilder(PromptConfig{Verbosity: "verbose"}); err == nil {
		t.Error("unknown verbosity accepted")
	}
}

func TestBuilder_MinimalOpenersAtLowDirectiveness(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(PromptConfig{Directiveness: 0})
	if err != nil {
		t.Fatal(err)
	}
	for range 20 {
		opener := b.Opener()
		found := false
		for _, m := range minimalOpeners {
			if opener == m {
				found = true
			}
		}
		if !found {
			t.Fatalf("opener %q not from the minimal pool", opener)
		}
	}
}

func TestNearestDirectiveness(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want int }{
		{0, 0}, {1, 0}, {2, 3}, {3, 3}, {4, 3}, {6, 5}, {8, 7}, {9, 10}, {10, 10},
	}
	for _, tc := range cases {
		if got := nearestDirectiveness(tc.in); got != tc.want {
			t.Errorf("nearestDirectiveness(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseHoldSignal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		signal  HoldSignal
		cleaned string
	}{
		{"[HOLD] I'll be right here.", HoldActivate, "I'll be right here."},
		{"[hold] resting with you", HoldActivate, "resting with you"},
		{"[HOLD?] Want me to hold space?", HoldConfirm, "Want me to hold space?"},
		{"What's that tension like?", HoldNone, "What's that tension like?"},
		{"  [HOLD]   ", HoldActivate, ""},
	}
	for _, tc := range cases {
		signal, cleaned := ParseHoldSignal(tc.in)
		if signal != tc.signal || cleaned != tc.cleaned {
			t.Errorf("ParseHoldSignal(%q) = %v %q, want %v %q", tc.in, signal, cleaned, tc.signal, tc.cleaned)
		}
	}
}
