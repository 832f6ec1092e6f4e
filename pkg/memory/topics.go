package memory

import (
	"strings"

	"github.com/solmae/animus/pkg/types"
)

// categoryKeywords maps each memory category to the phrases that signal it
// in player text. A phrase match marks the whole message as memorable under
// that category.
var categoryKeywords = map[types.MemoryCategory][]string{
	types.MemoryFamily: {
		"family", "father", "mother", "brother", "sister", "son", "daughter",
		"wife", "husband", "parents", "children", "killed", "died", "lost",
	},
	types.MemoryGoal: {
		"want to", "need to", "looking for", "searching", "find", "seeking",
		"goal", "mission", "quest", "dream",
	},
	types.MemoryFear: {
		"afraid", "fear", "scared", "terrified", "nightmare", "dread",
		"worry", "anxious",
	},
	types.MemoryEvent: {
		"happened", "attacked", "survived", "escaped", "witnessed", "saw",
		"remember when", "last year", "last month", "yesterday",
	},
	types.MemoryPreference: {
		"like", "love", "hate", "prefer", "favorite", "enjoy", "despise",
	},
	types.MemorySecret: {
		"secret", "don't tell", "between us", "confidential", "trust you",
		"never told anyone", "no one knows", "dark past", "hidden",
		"used to be", "changed my ways",
	},
	types.MemoryOrigin: {
		"from", "hometown", "village", "city", "born", "grew up", "raised",
		"northern", "southern", "eastern", "western",
	},
	types.MemoryProfession: {
		"work", "job", "trade", "merchant", "soldier", "farmer", "hunter",
		"blacksmith", "healer", "bandit", "thief", "spy", "captain", "guard",
		"knight",
	},
	types.MemoryCrime: {
		"robbed", "stole", "killed", "murdered", "crime", "criminal",
		"outlaw", "bandit", "thief", "guilty",
	},
}

// Topic is one memorable theme detected in player text.
type Topic struct {
	// Category is the memory category the matched keywords belong to.
	Category types.MemoryCategory

	// Keywords are the phrases that matched, in table order.
	Keywords []string

	// Weight is the category base weight plus 0.05 per matched phrase,
	// capped at 1.
	Weight float64
}

// ExtractTopics scans text for category keywords and returns one Topic per
// matched category, in the stable category order. Matching is
// case-insensitive substring containment; no stemming.
func ExtractTopics(text string) []Topic {
	lower := strings.ToLower(text)
	var topics []Topic
	for _, cat := range types.AllMemoryCategories {
		var matched []string
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}
		weight := cat.EmotionalWeight() + float64(len(matched))*0.05
		topics = append(topics, Topic{
			Category: cat,
			Keywords: matched,
			Weight:   types.ClampUnit(weight),
		})
	}
	return topics
}

// TopicCategories returns just the category names of the given topics, for
// passing to [WithCategories].
func TopicCategories(topics []Topic) []string {
	cats := make([]string, 0, len(topics))
	for _, t := range topics {
		cats = append(cats, string(t.Category))
	}
	return cats
}
