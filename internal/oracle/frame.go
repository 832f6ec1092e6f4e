package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/solmae/animus/pkg/types"
)

// frameInstructions is appended to every cognition system prompt so the frame
// contract and its parser live in the same package.
const frameInstructions = `CRITICAL INSTRUCTIONS:
Respond with a single JSON object using exactly these fields:
- "reflection": your private thoughts (string, never shown to the player)
- "dialogue": your spoken words (string, may be empty if you stay silent)
- "intent": one of Investigate, Guard, Trade, Assist, Flee, Attack, Socialize, Ignore
- "mood_shift": {"label": string, "arousal": number, "valence": number} (optional)
- "urgency": action priority from 0.0 to 1.0
- "trust_delta": trust change toward the player from -0.2 to 0.2 (optional)
- "emotional_weight": how memorable this exchange is from 0.0 to 1.0 (optional)
- "topics": subjects worth remembering (array of short strings, optional)

Respond with valid JSON only. No additional text.`

// frameSchemaJSON is the wire contract for model replies. Numeric ranges are
// left open here; out-of-range values are clamped during sanitisation rather
// than rejected, so only structural damage counts as malformed.
const frameSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["reflection", "dialogue", "intent", "urgency"],
  "properties": {
    "reflection": {"type": "string"},
    "dialogue": {"type": "string"},
    "intent": {
      "type": "string",
      "enum": ["Investigate", "Guard", "Trade", "Assist", "Flee", "Attack", "Socialize", "Ignore"]
    },
    "mood_shift": {
      "type": "object",
      "properties": {
        "label": {"type": "string"},
        "arousal": {"type": "number"},
        "valence": {"type": "number"}
      }
    },
    "urgency": {"type": "number"},
    "trust_delta": {"type": "number"},
    "emotional_weight": {"type": "number"},
    "topics": {"type": "array", "items": {"type": "string"}}
  }
}`

var frameSchema = jsonschema.MustCompileString("frame.schema.json", frameSchemaJSON)

// parseFrame validates raw model output against the frame schema and decodes
// it. Models often wrap JSON in markdown fences or prose; everything outside
// the outermost object braces is discarded first.
func parseFrame(raw string) (types.CognitiveFrame, error) {
	text := extractJSON(raw)

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return types.CognitiveFrame{}, fmt.Errorf("oracle: decode frame: %w", err)
	}
	if err := frameSchema.Validate(doc); err != nil {
		return types.CognitiveFrame{}, fmt.Errorf("oracle: frame schema: %w", err)
	}

	var frame types.CognitiveFrame
	if err := json.Unmarshal([]byte(text), &frame); err != nil {
		return types.CognitiveFrame{}, fmt.Errorf("oracle: decode frame: %w", err)
	}
	return frame, nil
}

// extractJSON returns the substring from the first '{' to the last '}'. If no
// object braces are present the input is returned unchanged and left to fail
// JSON decoding.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// MaxTrustDelta bounds the per-exchange trust adjustment in either direction.
const MaxTrustDelta = 0.2

// sanitizeFrame bounds the numeric fields and guarantees a non-empty spoken
// line.
func sanitizeFrame(f types.CognitiveFrame) types.CognitiveFrame {
	if strings.TrimSpace(f.Dialogue) == "" {
		f.Dialogue = "..."
	}
	f.Urgency = types.ClampUnit(f.Urgency)
	f.TrustDelta = types.Clamp(f.TrustDelta, -MaxTrustDelta, MaxTrustDelta)
	f.EmotionalWeight = types.ClampUnit(f.EmotionalWeight)
	f.MoodShift.Arousal = types.Clamp(f.MoodShift.Arousal, -1, 1)
	f.MoodShift.Valence = types.Clamp(f.MoodShift.Valence, -1, 1)
	return f
}

const (
	hungerOverrideThreshold  = 0.8
	fatigueOverrideThreshold = 0.9
)

// applySurvivalOverrides lets critical vitals veto the model's chosen intent.
// Both checks read the intent the model produced, so critical fatigue wins
// over a hunger override when both fire.
func applySurvivalOverrides(f types.CognitiveFrame, v types.Vitals) types.CognitiveFrame {
	intent := f.Intent

	if v.Hunger > hungerOverrideThreshold && intent != types.IntentFlee && intent != types.IntentAssist {
		f.Intent = types.IntentInvestigate
		f.Reflection += " [Meta: Hunger override - must find food]"
		if f.Urgency < 0.9 {
			f.Urgency = 0.9
		}
	}

	if v.Fatigue > fatigueOverrideThreshold && intent != types.IntentFlee {
		f.Intent = types.IntentIgnore
		f.Dialogue = "I... need to rest..."
		f.Urgency = 1.0
	}

	return f
}

// FallbackFrame builds the substitute frame used when cognition fails: the
// agent holds its current mood, guards, and says nothing meaningful. The
// frame carries no trust delta, so fallback exchanges never move reputation.
func FallbackFrame(mood types.Mood) types.CognitiveFrame {
	return types.CognitiveFrame{
		Reflection:      "Defaulting to cautious behavior.",
		Dialogue:        "...",
		Intent:          types.IntentGuard,
		MoodShift:       types.MoodShift{Label: mood.Label},
		Urgency:         0.5,
		EmotionalWeight: 0.3,
	}
}
