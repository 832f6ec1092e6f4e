package oracle

import (
	"strings"
	"testing"

	"github.com/solmae/animus/pkg/types"
)

const validFrameJSON = `{
  "reflection": "He seems harmless enough.",
  "dialogue": "State your business.",
  "intent": "Investigate",
  "mood_shift": {"label": "wary", "arousal": 0.1, "valence": -0.05},
  "urgency": 0.4,
  "trust_delta": 0.05,
  "emotional_weight": 0.6,
  "topics": ["the stranger's arrival"]
}`

func TestParseFrame_Valid(t *testing.T) {
	frame, err := parseFrame(validFrameJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Intent != types.IntentInvestigate {
		t.Errorf("intent = %q, want Investigate", frame.Intent)
	}
	if frame.Dialogue != "State your business." {
		t.Errorf("dialogue = %q", frame.Dialogue)
	}
	if frame.MoodShift.Label != "wary" {
		t.Errorf("mood label = %q, want wary", frame.MoodShift.Label)
	}
	if frame.TrustDelta != 0.05 {
		t.Errorf("trust delta = %v, want 0.05", frame.TrustDelta)
	}
	if len(frame.Topics) != 1 || frame.Topics[0] != "the stranger's arrival" {
		t.Errorf("topics = %v", frame.Topics)
	}
}

func TestParseFrame_MarkdownFences(t *testing.T) {
	raw := "```json\n" + validFrameJSON + "\n```"
	frame, err := parseFrame(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Intent != types.IntentInvestigate {
		t.Errorf("intent = %q, want Investigate", frame.Intent)
	}
}

func TestParseFrame_ProseAroundObject(t *testing.T) {
	raw := "Here is my response:\n" + validFrameJSON + "\nI hope that helps!"
	frame, err := parseFrame(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Urgency != 0.4 {
		t.Errorf("urgency = %v, want 0.4", frame.Urgency)
	}
}

func TestParseFrame_MissingRequiredField(t *testing.T) {
	raw := `{"reflection": "hmm", "dialogue": "hi", "urgency": 0.2}`
	if _, err := parseFrame(raw); err == nil {
		t.Fatal("expected schema error for missing intent")
	}
}

func TestParseFrame_UnknownIntent(t *testing.T) {
	raw := `{"reflection": "hmm", "dialogue": "hi", "intent": "Dance", "urgency": 0.2}`
	if _, err := parseFrame(raw); err == nil {
		t.Fatal("expected schema error for unknown intent")
	}
}

func TestParseFrame_NotJSON(t *testing.T) {
	if _, err := parseFrame("I will guard the gate."); err == nil {
		t.Fatal("expected error for prose reply")
	}
}

func TestSanitizeFrame_EmptyDialogue(t *testing.T) {
	f := sanitizeFrame(types.CognitiveFrame{Dialogue: "   "})
	if f.Dialogue != "..." {
		t.Fatalf("dialogue = %q, want ...", f.Dialogue)
	}
}

func TestSanitizeFrame_ClampsNumericFields(t *testing.T) {
	f := sanitizeFrame(types.CognitiveFrame{
		Dialogue:        "hi",
		Urgency:         1.7,
		TrustDelta:      0.5,
		EmotionalWeight: -0.2,
		MoodShift:       types.MoodShift{Arousal: 2.0, Valence: -3.0},
	})
	if f.Urgency != 1 {
		t.Errorf("urgency = %v, want 1", f.Urgency)
	}
	if f.TrustDelta != MaxTrustDelta {
		t.Errorf("trust delta = %v, want %v", f.TrustDelta, MaxTrustDelta)
	}
	if f.EmotionalWeight != 0 {
		t.Errorf("emotional weight = %v, want 0", f.EmotionalWeight)
	}
	if f.MoodShift.Arousal != 1 || f.MoodShift.Valence != -1 {
		t.Errorf("mood shift = %+v, want arousal 1 valence -1", f.MoodShift)
	}

	f = sanitizeFrame(types.CognitiveFrame{Dialogue: "hi", TrustDelta: -0.9})
	if f.TrustDelta != -MaxTrustDelta {
		t.Errorf("trust delta = %v, want %v", f.TrustDelta, -MaxTrustDelta)
	}
}

func TestSurvivalOverrides_CriticalHunger(t *testing.T) {
	f := applySurvivalOverrides(types.CognitiveFrame{
		Reflection: "A fair trade.",
		Intent:     types.IntentTrade,
		Urgency:    0.3,
	}, types.Vitals{Hunger: 0.9})

	if f.Intent != types.IntentInvestigate {
		t.Errorf("intent = %q, want Investigate", f.Intent)
	}
	if f.Urgency != 0.9 {
		t.Errorf("urgency = %v, want 0.9", f.Urgency)
	}
	if !strings.Contains(f.Reflection, "Hunger override") {
		t.Errorf("reflection = %q, want hunger override marker", f.Reflection)
	}
}

func TestSurvivalOverrides_HungerKeepsHigherUrgency(t *testing.T) {
	f := applySurvivalOverrides(types.CognitiveFrame{
		Intent:  types.IntentGuard,
		Urgency: 0.95,
	}, types.Vitals{Hunger: 0.9})
	if f.Urgency != 0.95 {
		t.Errorf("urgency = %v, want 0.95 preserved", f.Urgency)
	}
}

func TestSurvivalOverrides_HungerSparesFleeAndAssist(t *testing.T) {
	for _, intent := range []types.Intent{types.IntentFlee, types.IntentAssist} {
		f := applySurvivalOverrides(types.CognitiveFrame{Intent: intent}, types.Vitals{Hunger: 0.95})
		if f.Intent != intent {
			t.Errorf("intent = %q, want %q untouched", f.Intent, intent)
		}
	}
}

func TestSurvivalOverrides_CriticalFatigue(t *testing.T) {
	f := applySurvivalOverrides(types.CognitiveFrame{
		Intent:   types.IntentGuard,
		Dialogue: "Halt.",
		Urgency:  0.2,
	}, types.Vitals{Fatigue: 0.95})

	if f.Intent != types.IntentIgnore {
		t.Errorf("intent = %q, want Ignore", f.Intent)
	}
	if f.Dialogue != "I... need to rest..." {
		t.Errorf("dialogue = %q", f.Dialogue)
	}
	if f.Urgency != 1.0 {
		t.Errorf("urgency = %v, want 1.0", f.Urgency)
	}
}

func TestSurvivalOverrides_FatigueSparesFlee(t *testing.T) {
	f := applySurvivalOverrides(types.CognitiveFrame{
		Intent:   types.IntentFlee,
		Dialogue: "Run!",
	}, types.Vitals{Fatigue: 0.95})
	if f.Intent != types.IntentFlee || f.Dialogue != "Run!" {
		t.Errorf("frame overridden, want untouched: %+v", f)
	}
}

func TestSurvivalOverrides_FatigueWinsOverHunger(t *testing.T) {
	f := applySurvivalOverrides(types.CognitiveFrame{
		Reflection: "Trouble ahead.",
		Intent:     types.IntentGuard,
		Urgency:    0.3,
	}, types.Vitals{Hunger: 0.9, Fatigue: 0.95})

	if f.Intent != types.IntentIgnore {
		t.Errorf("intent = %q, want Ignore when both vitals are critical", f.Intent)
	}
	if f.Dialogue != "I... need to rest..." {
		t.Errorf("dialogue = %q", f.Dialogue)
	}
	if f.Urgency != 1.0 {
		t.Errorf("urgency = %v, want 1.0", f.Urgency)
	}
	// The hunger pass still left its reflection marker before fatigue won.
	if !strings.Contains(f.Reflection, "Hunger override") {
		t.Errorf("reflection = %q, want hunger marker preserved", f.Reflection)
	}
}

func TestSurvivalOverrides_ChecksModelIntentNotOverridden(t *testing.T) {
	// Assist escapes the hunger override, but fatigue still applies because
	// the fatigue check reads the model's intent, which is not Flee.
	f := applySurvivalOverrides(types.CognitiveFrame{
		Intent: types.IntentAssist,
	}, types.Vitals{Hunger: 0.9, Fatigue: 0.95})
	if f.Intent != types.IntentIgnore {
		t.Errorf("intent = %q, want Ignore", f.Intent)
	}
}

func TestSurvivalOverrides_BelowThresholdsUntouched(t *testing.T) {
	in := types.CognitiveFrame{Intent: types.IntentTrade, Dialogue: "Deal?", Urgency: 0.4}
	f := applySurvivalOverrides(in, types.Vitals{Hunger: 0.8, Fatigue: 0.9})
	if f.Intent != in.Intent || f.Dialogue != in.Dialogue || f.Urgency != in.Urgency {
		t.Errorf("frame changed at threshold boundary: %+v", f)
	}
}

func TestFallbackFrame(t *testing.T) {
	f := FallbackFrame(types.Mood{Label: "anxious", Arousal: 0.8, Valence: 0.2})

	if f.Intent != types.IntentGuard {
		t.Errorf("intent = %q, want Guard", f.Intent)
	}
	if f.Dialogue != "..." {
		t.Errorf("dialogue = %q, want ...", f.Dialogue)
	}
	if f.Urgency != 0.5 {
		t.Errorf("urgency = %v, want 0.5", f.Urgency)
	}
	if f.TrustDelta != 0 {
		t.Errorf("trust delta = %v, want 0", f.TrustDelta)
	}
	if f.MoodShift.Label != "anxious" {
		t.Errorf("mood label = %q, want anxious", f.MoodShift.Label)
	}
	if f.MoodShift.Arousal != 0 || f.MoodShift.Valence != 0 {
		t.Errorf("mood shift deltas = %+v, want zero", f.MoodShift)
	}
}
