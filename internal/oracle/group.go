package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/resilience"
	"github.com/solmae/animus/pkg/provider/llm"
	"github.com/solmae/animus/pkg/types"
)

// groupInstructions is appended to every group orchestration system prompt.
// The response vocabulary mirrors [types.ResponseType].
const groupInstructions = `CRITICAL INSTRUCTIONS:
Respond with a single JSON array. Each element is one NPC turn, in speaking
order, using exactly these fields:
- "speaker": the participant id of the NPC speaking (string)
- "type": one of direct_reply, agreement, disagreement, elaboration, interruption, redirect, silent
  - direct_reply: respond directly to what was said
  - agreement: express agreement and build on the point
  - disagreement: politely disagree and explain why
  - elaboration: add details or context to the discussion
  - interruption: interject with urgency
  - redirect: change the subject to something else
  - silent: the participant stays quiet this round
- "addressed_to": who the line is aimed at, a participant id or the player id (string, optional)
- "dialogue": the spoken words (string, empty when silent)

Only use participant ids from the roster. Each participant speaks at most
once. Respond with valid JSON only. No additional text.`

// groupSchemaJSON is the wire contract for orchestration replies. The type
// enum is not enforced here; unknown types are dropped per entry during
// sanitisation so one bad element cannot void an otherwise usable plan.
const groupSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["speaker", "type"],
    "properties": {
      "speaker": {"type": "string"},
      "type": {"type": "string"},
      "addressed_to": {"type": "string"},
      "dialogue": {"type": "string"}
    }
  }
}`

var groupSchema = jsonschema.MustCompileString("group.schema.json", groupSchemaJSON)

// OrchestrateRequest carries one group planning pass: the orchestration
// persona and the conversation state assembled by the caller.
type OrchestrateRequest struct {
	// GroupID attributes log lines. Not sent to the provider.
	GroupID string

	// System is the orchestration block. The oracle appends the turn format
	// instructions.
	System string

	// Prompt is the conversation state sent as the user message.
	Prompt string
}

// Orchestrate runs one group planning pass and returns the ordered speaker
// turns. Unlike [Oracle.Cognize] there is no synthetic fallback here; the
// caller owns the degraded path because only it knows the participants, so
// failures surface as errors tagged [fault.OracleTimeout] or
// [fault.OracleMalformed].
func (o *Oracle) Orchestrate(ctx context.Context, req OrchestrateRequest) ([]types.GroupUtterance, error) {
	cctx, cancel := context.WithTimeout(ctx, o.cognizeTimeout)
	defer cancel()

	creq := llm.CompletionRequest{
		SystemPrompt: req.System + "\n\n" + groupInstructions,
		Messages:     []llm.Message{{Role: "user", Content: req.Prompt}},
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
	}

	var content string
	err := o.llmBreaker.Execute(func() error {
		resp, callErr := o.llm.Complete(cctx, creq)
		if callErr != nil {
			return callErr
		}
		if resp != nil {
			content = resp.Content
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		o.log.Warn("orchestration rejected, breaker open", "group", req.GroupID)
		return nil, fault.Wrap(fault.OracleTimeout, "oracle: orchestrate", err)
	case errors.Is(err, context.DeadlineExceeded) || cctx.Err() != nil:
		o.log.Warn("orchestration timed out",
			"group", req.GroupID, "timeout", o.cognizeTimeout)
		return nil, fault.Wrap(fault.OracleTimeout, "oracle: orchestrate", err)
	default:
		o.log.Warn("orchestration provider error", "group", req.GroupID, "error", err)
		return nil, fmt.Errorf("oracle: orchestrate: %w", err)
	}

	turns, err := parseTurns(content)
	if err != nil {
		o.log.Warn("orchestration reply malformed", "group", req.GroupID, "error", err)
		return nil, err
	}
	return turns, nil
}

// parseTurns validates raw model output against the turn schema, decodes it
// and drops per-entry damage. An empty or fully damaged plan is malformed.
func parseTurns(raw string) ([]types.GroupUtterance, error) {
	text := extractJSONArray(raw)

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fault.Wrap(fault.OracleMalformed, "oracle: decode turns", err)
	}
	if err := groupSchema.Validate(doc); err != nil {
		return nil, fault.Wrap(fault.OracleMalformed, "oracle: turn schema", err)
	}

	var turns []types.GroupUtterance
	if err := json.Unmarshal([]byte(text), &turns); err != nil {
		return nil, fault.Wrap(fault.OracleMalformed, "oracle: decode turns", err)
	}

	kept := turns[:0]
	for _, t := range turns {
		t.Speaker = strings.TrimSpace(t.Speaker)
		t.Dialogue = strings.TrimSpace(t.Dialogue)
		if t.Speaker == "" || !t.Type.Valid() {
			continue
		}
		if t.Type != types.ResponseSilent && t.Dialogue == "" {
			t.Dialogue = "..."
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return nil, fault.New(fault.OracleMalformed, "oracle: turn plan empty")
	}
	return kept, nil
}

// extractJSONArray returns the substring from the first '[' to the last ']'.
// If no array brackets are present the input is returned unchanged and left
// to fail JSON decoding.
func extractJSONArray(s string) string {
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
