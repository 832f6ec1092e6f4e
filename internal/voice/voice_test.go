package voice

import (
	"math"
	"testing"

	"github.com/solmae/animus/pkg/types"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func neutralPersonality() types.Personality {
	return types.Personality{
		Curiosity: 0.5, Empathy: 0.5, RiskTolerance: 0.5, Aggression: 0.5,
		Discipline: 0.5, Romanticism: 0.5, Opportunism: 0.5, Paranoia: 0.5,
	}
}

func TestFingerprintNeutral(t *testing.T) {
	fp := Fingerprint(neutralPersonality(), "")
	if !near(fp.Stability, 0) || !near(fp.Similarity, 0) || !near(fp.Style, 0) {
		t.Errorf("neutral personality modifiers = %+v, want all zero", fp)
	}
	if !near(fp.Speed, 1.0) {
		t.Errorf("Speed = %v, want 1.0", fp.Speed)
	}
	if fp.Pitch != "normal" {
		t.Errorf("Pitch = %q, want %q", fp.Pitch, "normal")
	}
}

func TestFingerprintFormulas(t *testing.T) {
	tests := []struct {
		name           string
		mutate         func(*types.Personality)
		wantStability  float64
		wantSimilarity float64
		wantStyle      float64
		wantSpeed      float64
		wantPitch      string
	}{
		{
			name:           "disciplined",
			mutate:         func(p *types.Personality) { p.Discipline = 0.9 },
			wantStability:  0.12,
			wantSimilarity: 0.08,
			wantStyle:      0,
			wantSpeed:      1.0,
			wantPitch:      "controlled, precise",
		},
		{
			name: "aggressive paranoid",
			mutate: func(p *types.Personality) {
				p.Aggression = 0.9
				p.Paranoia = 0.9
			},
			wantStability:  -0.18,
			wantSimilarity: 0,
			wantStyle:      0,
			wantSpeed:      1.06,
			wantPitch:      "harsh, aggressive",
		},
		{
			name: "expressive",
			mutate: func(p *types.Personality) {
				p.Romanticism = 0.9
				p.Curiosity = 0.9
			},
			wantStability:  0,
			wantSimilarity: 0,
			wantStyle:      0.2,
			wantSpeed:      1.0,
			wantPitch:      "expressive, dramatic",
		},
		{
			name: "stability clamped high",
			mutate: func(p *types.Personality) {
				p.Discipline = 0.95
				p.Aggression = 0.05
				p.Paranoia = 0.05
			},
			wantStability:  0.3,
			wantSimilarity: 0.09,
			wantStyle:      0,
			wantSpeed:      0.9325,
			wantPitch:      "controlled, precise",
		},
		{
			name: "speed clamped",
			mutate: func(p *types.Personality) {
				p.RiskTolerance = 2.5
			},
			wantStability:  0,
			wantSimilarity: 0,
			wantStyle:      0,
			wantSpeed:      1.3,
			wantPitch:      "normal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := neutralPersonality()
			tt.mutate(&p)
			fp := Fingerprint(p, "")
			if !near(fp.Stability, tt.wantStability) {
				t.Errorf("Stability = %v, want %v", fp.Stability, tt.wantStability)
			}
			if !near(fp.Similarity, tt.wantSimilarity) {
				t.Errorf("Similarity = %v, want %v", fp.Similarity, tt.wantSimilarity)
			}
			if !near(fp.Style, tt.wantStyle) {
				t.Errorf("Style = %v, want %v", fp.Style, tt.wantStyle)
			}
			if !near(fp.Speed, tt.wantSpeed) {
				t.Errorf("Speed = %v, want %v", fp.Speed, tt.wantSpeed)
			}
			if fp.Pitch != tt.wantPitch {
				t.Errorf("Pitch = %q, want %q", fp.Pitch, tt.wantPitch)
			}
		})
	}
}

func TestFingerprintFactionAdjust(t *testing.T) {
	tests := []struct {
		faction       string
		wantStability float64
		wantSim       float64
		wantStyle     float64
	}{
		{"guards", 0.1, 0.05, 0},
		{"traders", -0.05, 0, 0.1},
		{"outcasts", -0.15, 0, 0.05},
		{"citizens", 0, 0, 0},
		{"unknown", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.faction, func(t *testing.T) {
			fp := Fingerprint(neutralPersonality(), tt.faction)
			if !near(fp.Stability, tt.wantStability) {
				t.Errorf("Stability = %v, want %v", fp.Stability, tt.wantStability)
			}
			if !near(fp.Similarity, tt.wantSim) {
				t.Errorf("Similarity = %v, want %v", fp.Similarity, tt.wantSim)
			}
			if !near(fp.Style, tt.wantStyle) {
				t.Errorf("Style = %v, want %v", fp.Style, tt.wantStyle)
			}
		})
	}
}

func TestMoodAdjust(t *testing.T) {
	angry := MoodAdjust("angry")
	if !near(angry.Stability, -0.2) || !near(angry.Style, 0.3) {
		t.Errorf("angry adjustment = %+v, want {-0.2 0.3}", angry)
	}
	if got := MoodAdjust("ANGRY"); got != angry {
		t.Errorf("lookup is case-sensitive: got %+v, want %+v", got, angry)
	}
	if got := MoodAdjust("transcendent"); got != (MoodAdjustment{}) {
		t.Errorf("unknown mood adjustment = %+v, want neutral", got)
	}
}

func TestSettings(t *testing.T) {
	adam := ProfileByKey("adam")

	v := Settings(adam, types.VoiceFingerprint{}, types.Mood{Label: "angry"})
	if v.ID != adam.ID {
		t.Errorf("ID = %q, want %q", v.ID, adam.ID)
	}
	if !near(v.Stability, 0.4) {
		t.Errorf("Stability = %v, want 0.4", v.Stability)
	}
	if !near(v.Style, 0.3) {
		t.Errorf("Style = %v, want 0.3", v.Style)
	}
	if !near(v.Similarity, 0.8) {
		t.Errorf("Similarity = %v, want 0.8", v.Similarity)
	}
	if !near(v.Speed, 1.0) {
		t.Errorf("zero-value fingerprint Speed = %v, want 1.0", v.Speed)
	}
}

func TestSettingsFloorsStability(t *testing.T) {
	elli := ProfileByKey("elli")
	fp := types.VoiceFingerprint{Stability: -0.3, Speed: 1}
	v := Settings(elli, fp, types.Mood{Label: "nervous"})
	if !near(v.Stability, 0.1) {
		t.Errorf("Stability = %v, want floor 0.1", v.Stability)
	}
}

func TestProfileByKeyUnknown(t *testing.T) {
	p := ProfileByKey("nobody")
	if p.Key != DefaultVoiceKey {
		t.Errorf("unknown key resolved to %q, want %q", p.Key, DefaultVoiceKey)
	}
}

func TestAssignerRoleMapping(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{"guard_captain", "arnold"},
		{"Guard Captain", "arnold"},
		{"Opportunistic Trader", "antoni"},
		{"Suspicious Watchman", "adam"},
		{"completely unknown", "adam"},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			a := NewAssigner()
			got := a.Assign("agent", tt.role)
			if got.Key != tt.want {
				t.Errorf("Assign(%q) = %q, want %q", tt.role, got.Key, tt.want)
			}
		})
	}
}

func TestAssignerDistinctVoices(t *testing.T) {
	a := NewAssigner()
	n := len(Profiles())

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		p := a.Assign(string(rune('a'+i)), "guard")
		if seen[p.Key] {
			t.Fatalf("voice %q assigned twice before pool exhausted", p.Key)
		}
		seen[p.Key] = true
	}

	// Pool exhausted: the next assignment reuses the least-used voice.
	extra := a.Assign("overflow", "guard")
	if !seen[extra.Key] {
		t.Errorf("overflow assignment %q not from the library", extra.Key)
	}
}

func TestAssignerIdempotentAndRelease(t *testing.T) {
	a := NewAssigner()

	first := a.Assign("npc-1", "guard")
	again := a.Assign("npc-1", "guard")
	if first.Key != again.Key {
		t.Errorf("second Assign = %q, want %q", again.Key, first.Key)
	}

	// The preferred guard voice is taken, so a second guard rotates.
	other := a.Assign("npc-2", "guard")
	if other.Key == first.Key {
		t.Errorf("npc-2 shares voice %q with npc-1", other.Key)
	}

	a.Release("npc-1")
	freed := a.Assign("npc-3", "guard")
	if freed.Key != first.Key {
		t.Errorf("after release, Assign = %q, want freed %q", freed.Key, first.Key)
	}

	if _, ok := a.Assigned("npc-1"); ok {
		t.Error("released agent still has an assignment")
	}
}
