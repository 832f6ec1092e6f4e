package types

// Intent is the action category an agent settles on after a cognition pass.
type Intent string

const (
	IntentInvestigate Intent = "Investigate"
	IntentGuard       Intent = "Guard"
	IntentTrade       Intent = "Trade"
	IntentAssist      Intent = "Assist"
	IntentFlee        Intent = "Flee"
	IntentAttack      Intent = "Attack"
	IntentSocialize   Intent = "Socialize"
	IntentIgnore      Intent = "Ignore"
)

// AllIntents lists every intent in a stable order.
var AllIntents = []Intent{
	IntentInvestigate,
	IntentGuard,
	IntentTrade,
	IntentAssist,
	IntentFlee,
	IntentAttack,
	IntentSocialize,
	IntentIgnore,
}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentInvestigate, IntentGuard, IntentTrade, IntentAssist,
		IntentFlee, IntentAttack, IntentSocialize, IntentIgnore:
		return true
	}
	return false
}

// MoodShift is the delta a cognition pass applies to the agent's mood.
// Arousal and valence are added to the current values and clamped to [0, 1];
// a non-empty label replaces the current one.
type MoodShift struct {
	Label   string  `json:"label,omitempty"`
	Arousal float64 `json:"arousal"`
	Valence float64 `json:"valence"`
}

// CognitiveFrame is the structured output of one cognition pass: the agent's
// private reflection, its spoken line, and the validated effect fields the
// second pass applies. A frame is inert data; all state changes happen in the
// effects pass, never here.
type CognitiveFrame struct {
	// Reflection is the agent's private reasoning. Never shown to players.
	Reflection string `json:"reflection"`

	// Dialogue is the spoken response. Empty dialogue is substituted with
	// "..." during validation so clients always receive a line.
	Dialogue string `json:"dialogue"`

	// Intent is the chosen action category.
	Intent Intent `json:"intent"`

	// MoodShift is the affect delta to apply.
	MoodShift MoodShift `json:"mood_shift"`

	// Urgency in [0, 1]; at or above 0.85 the action is logged as a world
	// event.
	Urgency float64 `json:"urgency"`

	// TrustDelta in [-0.2, 0.2] adjusts the player's reputation with this
	// agent.
	TrustDelta float64 `json:"trust_delta"`

	// EmotionalWeight in [0, 1] is assigned to memories created from this
	// exchange.
	EmotionalWeight float64 `json:"emotional_weight"`

	// Topics are subjects extracted from the exchange, stored as new
	// memories about the speaker.
	Topics []string `json:"topics,omitempty"`
}

// ResponseType classifies how a group participant responds to a message.
type ResponseType string

const (
	ResponseDirectReply  ResponseType = "direct_reply"
	ResponseAgreement    ResponseType = "agreement"
	ResponseDisagreement ResponseType = "disagreement"
	ResponseElaboration  ResponseType = "elaboration"
	ResponseInterruption ResponseType = "interruption"
	ResponseRedirect     ResponseType = "redirect"
	ResponseSilent       ResponseType = "silent"
)

// Valid reports whether r is a known response type.
func (r ResponseType) Valid() bool {
	switch r {
	case ResponseDirectReply, ResponseAgreement, ResponseDisagreement,
		ResponseElaboration, ResponseInterruption, ResponseRedirect,
		ResponseSilent:
		return true
	}
	return false
}

// RaisesTension reports whether this response type increases group tension.
func (r ResponseType) RaisesTension() bool {
	return r == ResponseDisagreement || r == ResponseInterruption
}

// GroupUtterance is one ordered entry in a group conversation response.
type GroupUtterance struct {
	Speaker     string       `json:"speaker"`
	SpeakerName string       `json:"speaker_name,omitempty"`
	Type        ResponseType `json:"type"`
	AddressedTo string       `json:"addressed_to,omitempty"`
	Dialogue    string       `json:"dialogue"`
}
