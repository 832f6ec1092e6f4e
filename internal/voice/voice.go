// Package voice derives synthesis fingerprints from agent personality and
// resolves them, together with the current mood, into concrete TTS delivery
// settings.
//
// A fingerprint is a set of modifiers around a base voice profile: steady
// or erratic delivery, timbre adherence, expressiveness, speaking rate. It
// is computed once from the agent's traits and stored on the agent; the
// per-utterance mood adjustment is applied at synthesis time so the same
// agent sounds different angry than calm.
package voice

import (
	"sort"
	"strings"
	"sync"

	"github.com/solmae/animus/pkg/provider/tts"
	"github.com/solmae/animus/pkg/types"
)

const (
	// DefaultVoiceKey is the base profile used when no role mapping matches.
	DefaultVoiceKey = "adam"

	// Fingerprint modifier bounds.
	minStabilityMod  = -0.3
	maxStabilityMod  = 0.3
	minSimilarityMod = -0.2
	maxSimilarityMod = 0.2
	minStyleMod      = -0.2
	maxStyleMod      = 0.4
	minSpeed         = 0.7
	maxSpeed         = 1.3

	// pitchThreshold is the trait value above which a trait dominates the
	// delivery description.
	pitchThreshold = 0.7
)

// Profile is one base voice in the library: a provider voice id plus the
// neutral delivery settings the fingerprint modifies.
type Profile struct {
	Key         string  `json:"key"`
	ID          string  `json:"voice_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Stability   float64 `json:"stability"`
	Similarity  float64 `json:"similarity"`
	Style       float64 `json:"style"`
}

// library lists every base voice in a stable order. Assignment rotation
// walks this order, so the sequence of distinct voices handed out for a
// given spawn order is reproducible.
var library = []Profile{
	{Key: "adam", ID: "pNInz6obpgDQGcFmaJgB", Name: "Adam", Description: "deep, authoritative", Stability: 0.6, Similarity: 0.8},
	{Key: "arnold", ID: "VR6AewLTigWG4xSOukaG", Name: "Arnold", Description: "gruff, commanding", Stability: 0.7, Similarity: 0.85},
	{Key: "clyde", ID: "2EiwWnXFnvU5JabPnv8n", Name: "Clyde", Description: "grizzled veteran", Stability: 0.65, Similarity: 0.75},
	{Key: "antoni", ID: "ErXwobaYiN019PkySvjV", Name: "Antoni", Description: "warm, friendly", Stability: 0.5, Similarity: 0.7},
	{Key: "josh", ID: "TxGEqnHWrfWFTfGW9XjX", Name: "Josh", Description: "young, energetic", Stability: 0.4, Similarity: 0.65},
	{Key: "ethan", ID: "g5CIjZEefAph4nQFvHAz", Name: "Ethan", Description: "plain, unassuming", Stability: 0.45, Similarity: 0.7},
	{Key: "sam", ID: "yoZ06aMxZJJ28mfd3POQ", Name: "Sam", Description: "raspy, mysterious", Stability: 0.35, Similarity: 0.6},
	{Key: "daniel", ID: "onwK4e9ZLuTAKqWW03F9", Name: "Daniel", Description: "refined, scholarly", Stability: 0.55, Similarity: 0.8},
	{Key: "charlie", ID: "IKne3meq5aSn9XLyUdCD", Name: "Charlie", Description: "casual traveler", Stability: 0.45, Similarity: 0.65},
	{Key: "harry", ID: "SOYHLrjzK2X1ezoPC6cr", Name: "Harry", Description: "low, gravelly", Stability: 0.6, Similarity: 0.7},
	{Key: "james", ID: "ZQe5CZNOzWyzPSCn5a3c", Name: "James", Description: "rugged", Stability: 0.5, Similarity: 0.7},
	{Key: "rachel", ID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel", Description: "calm, professional", Stability: 0.55, Similarity: 0.8},
	{Key: "emily", ID: "LcfcDJNUP1GQjkzn1xUU", Name: "Emily", Description: "calm, measured", Stability: 0.5, Similarity: 0.75},
	{Key: "domi", ID: "AZnzlk1XvdvUeBnXmlld", Name: "Domi", Description: "strong, confident", Stability: 0.6, Similarity: 0.8},
	{Key: "charlotte", ID: "XB0fDUnXU5powFXDhCwa", Name: "Charlotte", Description: "elegant", Stability: 0.55, Similarity: 0.85},
	{Key: "bella", ID: "EXAVITQu4vr4xnSDxMaL", Name: "Bella", Description: "soft, gentle", Stability: 0.45, Similarity: 0.7},
	{Key: "elli", ID: "MF3mGyEYCl7XYWbV9V6O", Name: "Elli", Description: "young, emotional", Stability: 0.35, Similarity: 0.6},
	{Key: "grace", ID: "oWAxZDx7w5VEj9dCyTzz", Name: "Grace", Description: "homely, welcoming", Stability: 0.5, Similarity: 0.7},
	{Key: "serena", ID: "pMsXgVXv3BLzUgSXRplE", Name: "Serena", Description: "soft, pleasant", Stability: 0.5, Similarity: 0.75},
	{Key: "glinda", ID: "z9fAnlkpzviPz146aGWa", Name: "Glinda", Description: "mystical", Stability: 0.4, Similarity: 0.65},
	{Key: "mimi", ID: "zrHiDhphv9ZnVXBqCLjz", Name: "Mimi", Description: "foreign merchant", Stability: 0.45, Similarity: 0.7},
}

var libraryByKey = func() map[string]Profile {
	m := make(map[string]Profile, len(library))
	for _, p := range library {
		m[p.Key] = p
	}
	return m
}()

// roleVoices maps a normalized role to its preferred base voice. Roles
// absent from the map fall back to substring matching and finally to
// [DefaultVoiceKey].
var roleVoices = map[string]string{
	"guard": "adam", "guard_captain": "arnold", "soldier": "clyde",
	"warrior": "arnold", "gatekeeper": "adam", "guarded_gatekeeper": "adam",
	"watchman": "adam", "knight": "arnold", "captain": "arnold", "sentry": "adam",

	"merchant": "antoni", "trader": "antoni", "shopkeeper": "josh",
	"innkeeper": "antoni", "tavern_keeper": "antoni", "bartender": "antoni",
	"vendor": "josh", "peddler": "charlie", "settler": "ethan",

	"scholar": "daniel", "sage": "daniel", "priest": "daniel",
	"healer": "daniel", "fortune_teller": "sam", "mystic": "sam",
	"wizard": "daniel", "alchemist": "daniel",

	"outcast": "sam", "thief": "sam", "beggar": "ethan",
	"rogue": "sam", "criminal": "sam", "smuggler": "sam",
	"assassin": "sam", "spy": "sam",

	"noble": "daniel", "lord": "daniel", "aristocrat": "daniel",

	"citizen": "ethan", "civilian": "ethan", "farmer": "josh",
	"craftsman": "harry", "blacksmith": "harry", "villager": "ethan",
	"peasant": "ethan", "miner": "harry", "fisherman": "charlie",

	"elder": "clyde", "foreigner": "james",
}

// factionAdjust nudges a fresh fingerprint toward the faction's shared
// register. Applied after the trait formulas, outside their clamps; the
// synthesis-time clamp still bounds the effective settings.
type factionAdjust struct {
	stability  float64
	similarity float64
	style      float64
}

var factionAdjusts = map[string]factionAdjust{
	"guards":   {stability: 0.1, similarity: 0.05},
	"traders":  {stability: -0.05, style: 0.1},
	"citizens": {},
	"outcasts": {stability: -0.15, style: 0.05},
}

// Fingerprint computes the synthesis modifiers for a personality. Disciplined
// agents speak steadily, aggressive and paranoid ones erratically; romanticism
// and curiosity raise expressiveness; risk tolerance and aggression speed
// delivery up. faction may be empty.
func Fingerprint(p types.Personality, faction string) types.VoiceFingerprint {
	fp := types.VoiceFingerprint{
		Stability: types.Clamp(
			(p.Discipline-0.5)*0.3-(p.Aggression-0.5)*0.2-(p.Paranoia-0.5)*0.25,
			minStabilityMod, maxStabilityMod),
		Similarity: types.Clamp(
			(p.Empathy-0.5)*0.15+(p.Discipline-0.5)*0.2,
			minSimilarityMod, maxSimilarityMod),
		Style: types.Clamp(
			(p.Romanticism-0.5)*0.3+(p.Curiosity-0.5)*0.2,
			minStyleMod, maxStyleMod),
		Speed: types.Clamp(
			1+(p.RiskTolerance-0.5)*0.2+(p.Aggression-0.5)*0.15,
			minSpeed, maxSpeed),
		Pitch: pitchDescription(p),
	}
	if adj, ok := factionAdjusts[faction]; ok {
		fp.Stability += adj.stability
		fp.Similarity += adj.similarity
		fp.Style += adj.style
	}
	return fp
}

// pitchDescription summarizes delivery from the dominant trait. Checked in
// a fixed order so agents high in several traits describe consistently.
func pitchDescription(p types.Personality) string {
	switch {
	case p.Aggression > pitchThreshold:
		return "harsh, aggressive"
	case p.Empathy > pitchThreshold:
		return "warm, gentle"
	case p.Paranoia > pitchThreshold:
		return "nervous, hushed"
	case p.Discipline > pitchThreshold:
		return "controlled, precise"
	case p.Romanticism > pitchThreshold:
		return "expressive, dramatic"
	}
	return "normal"
}

// MoodAdjustment shifts stability and style for the duration of one
// utterance.
type MoodAdjustment struct {
	Stability float64
	Style     float64
}

// moodSettings maps mood labels to their delivery shift. Labels outside the
// table (the oracle may emit anything) read neutral.
var moodSettings = map[string]MoodAdjustment{
	"angry":       {Stability: -0.2, Style: 0.3},
	"sad":         {Stability: 0.1, Style: 0.15},
	"happy":       {Stability: -0.1, Style: 0.25},
	"fearful":     {Stability: -0.25, Style: 0.1},
	"neutral":     {},
	"suspicious":  {Stability: -0.1, Style: 0.05},
	"friendly":    {Stability: 0.05, Style: 0.2},
	"threatening": {Stability: 0.1, Style: 0.15},
	"nervous":     {Stability: -0.3, Style: 0.1},
	"confident":   {Stability: 0.15, Style: 0.1},
	"paranoid":    {Stability: -0.2, Style: 0.05},
	"alert":       {Stability: 0.1, Style: 0.05},
	"calm":        {Stability: 0.1},
	"curious":     {Stability: -0.05, Style: 0.15},
}

// MoodAdjust returns the delivery shift for a mood label. Lookup is
// case-insensitive; unknown labels return the neutral adjustment.
func MoodAdjust(label string) MoodAdjustment {
	if adj, ok := moodSettings[strings.ToLower(label)]; ok {
		return adj
	}
	return MoodAdjustment{}
}

// Settings resolves a base profile, a fingerprint and the current mood into
// the concrete delivery settings sent to the TTS backend. Stability and
// similarity are floored at 0.1 so no combination silences the voice
// entirely.
func Settings(base Profile, fp types.VoiceFingerprint, mood types.Mood) tts.Voice {
	adj := MoodAdjust(mood.Label)
	speed := fp.Speed
	if speed == 0 {
		speed = 1
	}
	return tts.Voice{
		ID:         base.ID,
		Speed:      types.Clamp(speed, minSpeed, maxSpeed),
		Stability:  types.Clamp(base.Stability+fp.Stability+adj.Stability, 0.1, 1),
		Similarity: types.Clamp(base.Similarity+fp.Similarity, 0.1, 1),
		Style:      types.Clamp(base.Style+fp.Style+adj.Style, 0, 1),
	}
}

// ProfileByKey returns the library profile for key, or the default profile
// when key is unknown.
func ProfileByKey(key string) Profile {
	if p, ok := libraryByKey[key]; ok {
		return p
	}
	return libraryByKey[DefaultVoiceKey]
}

// Profiles returns the full base voice library in its stable order.
func Profiles() []Profile {
	out := make([]Profile, len(library))
	copy(out, library)
	return out
}

// baseKeyForRole resolves a role string to a library key: exact match on the
// normalized role, then substring match either direction, then the default.
func baseKeyForRole(role string) string {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(role)), " ", "_")
	if norm == "" {
		return DefaultVoiceKey
	}
	if key, ok := roleVoices[norm]; ok {
		return key
	}
	// Substring pass over sorted keys for deterministic resolution.
	keys := make([]string, 0, len(roleVoices))
	for k := range roleVoices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(norm, k) || strings.Contains(k, norm) {
			return roleVoices[k]
		}
	}
	return DefaultVoiceKey
}

// Assigner hands out base voices so that concurrent agents sound distinct.
// The role-preferred voice is used when free; otherwise the first unused
// library voice, and once all are taken the least-used one. Assignment is
// idempotent per agent.
type Assigner struct {
	mu       sync.Mutex
	usage    map[string]int
	assigned map[string]string
}

// NewAssigner returns an empty Assigner.
func NewAssigner() *Assigner {
	return &Assigner{
		usage:    make(map[string]int),
		assigned: make(map[string]string),
	}
}

// Assign returns the base profile for an agent, reserving it on first call.
func (a *Assigner) Assign(agentID, role string) Profile {
	a.mu.Lock()
	defer a.mu.Unlock()

	if key, ok := a.assigned[agentID]; ok {
		return ProfileByKey(key)
	}

	key := baseKeyForRole(role)
	if a.usage[key] > 0 {
		if alt := a.unusedKey(); alt != "" {
			key = alt
		} else {
			key = a.leastUsedKey()
		}
	}
	a.usage[key]++
	a.assigned[agentID] = key
	return ProfileByKey(key)
}

// Assigned returns the base profile already reserved for an agent.
func (a *Assigner) Assigned(agentID string) (Profile, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key, ok := a.assigned[agentID]
	if !ok {
		return Profile{}, false
	}
	return ProfileByKey(key), true
}

// Release frees an agent's reservation so the voice can be reassigned.
func (a *Assigner) Release(agentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key, ok := a.assigned[agentID]
	if !ok {
		return
	}
	delete(a.assigned, agentID)
	if a.usage[key] <= 1 {
		delete(a.usage, key)
	} else {
		a.usage[key]--
	}
}

func (a *Assigner) unusedKey() string {
	for _, p := range library {
		if a.usage[p.Key] == 0 {
			return p.Key
		}
	}
	return ""
}

func (a *Assigner) leastUsedKey() string {
	best := library[0].Key
	low := a.usage[best]
	for _, p := range library[1:] {
		if a.usage[p.Key] < low {
			best, low = p.Key, a.usage[p.Key]
		}
	}
	return best
}
