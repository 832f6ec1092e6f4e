package quest

import (
	"strings"

	"github.com/solmae/animus/pkg/types"
)

// template holds the title and description variants for one quest type.
// Placeholders ({item}, {location}, {target}, {subject}, {victim},
// {recipient}) are filled at generation time; {target} is always a threat.
type template struct {
	titles       []string
	descriptions []string
}

var templates = map[types.QuestType]template{
	types.QuestFetch: {
		titles: []string{
			"Retrieve Lost {item}",
			"Gather {item} from the {location}",
			"Find and Return {item}",
		},
		descriptions: []string{
			"I need someone to retrieve {item} from {location}. It's important to me.",
			"There's {item} out in {location} that I desperately need. Can you get it?",
			"I've lost my {item} somewhere near {location}. Please find it for me.",
		},
	},
	types.QuestProtect: {
		titles: []string{
			"Guard the {target}",
			"Escort to {location}",
			"Defend Against {target}",
		},
		descriptions: []string{
			"I need protection while traveling to {location}. The roads aren't safe.",
			"{target} needs guarding. There have been threats lately.",
			"Something dangerous lurks near {location}. I need someone capable to handle it.",
		},
	},
	types.QuestInvestigate: {
		titles: []string{
			"Uncover the Truth about {subject}",
			"Investigate {location}",
			"Find Information on {subject}",
		},
		descriptions: []string{
			"Strange things are happening at {location}. I need someone to look into it.",
			"I've heard rumors about {subject}. Can you find out what's really going on?",
			"There's something suspicious about {subject}. Investigate discreetly.",
		},
	},
	types.QuestRevenge: {
		titles: []string{
			"Justice for {victim}",
			"Hunt Down {target}",
			"Settle the Score",
		},
		descriptions: []string{
			"Someone wronged me, and I want justice. Find {target} and make them pay.",
			"{target} took something precious from me. I want it back, or them punished.",
			"I remember what {target} did. Help me get revenge.",
		},
	},
	types.QuestTrade: {
		titles: []string{
			"Deliver {item} to {recipient}",
			"Broker a Deal",
			"Secure Trade Route",
		},
		descriptions: []string{
			"I have {item} that needs to reach {recipient} safely. Interested?",
			"There's profit to be made if you can negotiate with {recipient} on my behalf.",
			"The trade routes have been disrupted. Clear them and there's coin in it for you.",
		},
	},
	types.QuestRescue: {
		titles: []string{
			"Save {victim}",
			"Rescue Mission to {location}",
			"Free the Captive",
		},
		descriptions: []string{
			"{victim} has been taken. I need someone to bring them back.",
			"Someone I care about is trapped in {location}. Please help.",
			"They're holding {victim} somewhere. Find them before it's too late.",
		},
	},
}

var (
	items = []string{
		"supplies", "medicine", "weapons", "gold", "documents",
		"artifact", "tools", "food", "water",
	}
	locations = []string{
		"the northern pass", "the old ruins", "the docks",
		"the forest edge", "the abandoned mine", "the merchant district",
	}
	threats = []string{
		"bandits", "wild beasts", "raiders", "unknown assailants", "rival faction",
	}
)

// contextAdditions are appended to a description when the giver holds a
// strong memory about the player in the matching category, so quests read
// like they come from a shared history.
var contextAdditions = map[types.MemoryCategory]string{
	types.MemoryCrime:      " I know you have... experience with this sort of thing. That's why I'm asking you.",
	types.MemorySecret:     " You've trusted me before. Now I'm trusting you with this.",
	types.MemoryFamily:     " I remember what you told me about your family. This might be personal for you.",
	types.MemoryGoal:       " This aligns with what you've been looking for, doesn't it?",
	types.MemoryProfession: " Your skills make you perfect for this task.",
}

// fills are the placeholder values for one generated quest. Title and
// description use different fallbacks when no memory supplied a detail.
type fills struct {
	item      string
	location  string
	threat    string
	subject   string
	victim    string
	recipient string
}

func (f fills) apply(s string, forTitle bool) string {
	subject, victim, recipient := f.subject, f.victim, f.recipient
	if subject == "" {
		if forTitle {
			subject = "the mystery"
		} else {
			subject = "the situation"
		}
	}
	if victim == "" {
		if forTitle {
			victim = "the prisoner"
		} else {
			victim = "someone important"
		}
	}
	if recipient == "" {
		if forTitle {
			recipient = "my contact"
		} else {
			recipient = "a trusted ally"
		}
	}
	return strings.NewReplacer(
		"{item}", f.item,
		"{location}", f.location,
		"{target}", f.threat,
		"{subject}", subject,
		"{victim}", victim,
		"{recipient}", recipient,
	).Replace(s)
}

// typeFor picks the quest type the giver's memories about the player call
// for: dark knowledge breeds investigation and revenge, family talk breeds
// rescue work, ambitions breed errands.
func typeFor(dice Dice, memories []types.Memory) types.QuestType {
	has := map[types.MemoryCategory]bool{}
	for _, m := range memories {
		has[m.Category] = true
	}
	pick := func(opts ...types.QuestType) types.QuestType {
		return opts[dice.IntN(len(opts))]
	}
	switch {
	case has[types.MemoryCrime] || has[types.MemorySecret]:
		return pick(types.QuestInvestigate, types.QuestRevenge)
	case has[types.MemoryFamily]:
		return pick(types.QuestRescue, types.QuestProtect)
	case has[types.MemoryGoal]:
		return pick(types.QuestFetch, types.QuestTrade)
	case has[types.MemoryFear]:
		return pick(types.QuestProtect, types.QuestInvestigate)
	}
	return pick(types.QuestFetch, types.QuestTrade, types.QuestProtect)
}

// personalize mines memory contents for concrete details to slot into the
// templates.
func personalize(memories []types.Memory) fills {
	var f fills
	for _, m := range memories {
		content := strings.ToLower(m.Content)
		if strings.Contains(content, "bandit") || strings.Contains(content, "thief") {
			f.subject = "the bandits"
		}
		if strings.Contains(content, "family") {
			f.victim = "a family member"
		}
		if strings.Contains(content, "merchant") || strings.Contains(content, "trade") {
			f.recipient = "a merchant contact"
		}
	}
	return f
}

// contextFor returns the description addition for the giver's weightiest
// memory about the player, or "" when none applies.
func contextFor(memories []types.Memory) string {
	if len(memories) == 0 {
		return ""
	}
	top := memories[0]
	for _, m := range memories[1:] {
		if m.EmotionalWeight > top.EmotionalWeight {
			top = m
		}
	}
	return contextAdditions[top.Category]
}

// ── chains ──

// chainStage is one step of a storyline.
type chainStage struct {
	Title       string
	Description string
	Type        types.QuestType
	Difficulty  types.QuestDifficulty
}

// chainTemplate is a multi-stage storyline offered by givers of one faction.
type chainTemplate struct {
	Key     string
	Name    string
	Faction string
	Stages  []chainStage
}

// chainTemplates holds the built-in storylines in a stable order. Stage
// difficulty ramps from easy to hard so the payoff lands on the finale.
var chainTemplates = []chainTemplate{
	{
		Key:     "merchant_opportunity",
		Name:    "The Trade Route",
		Faction: "traders",
		Stages: []chainStage{
			{"Scout the Route", "Survey the road to the northern pass and map where a caravan could move safely.", types.QuestInvestigate, types.QuestEasy},
			{"Clear the Dangers", "Something is preying on travelers along the surveyed road. Deal with it.", types.QuestProtect, types.QuestMedium},
			{"Negotiate the Terms", "Meet the buyers at the far end and settle prices before they lose interest.", types.QuestTrade, types.QuestMedium},
			{"The First Delivery", "Escort the first caravan end to end. Everything rides on this one.", types.QuestProtect, types.QuestHard},
		},
	},
	{
		Key:     "bandit_hunt",
		Name:    "Hunting the Outlaws",
		Faction: "guards",
		Stages: []chainStage{
			{"Gather Intelligence", "Listen around the taverns and markets. Someone knows where the outlaws drink.", types.QuestInvestigate, types.QuestEasy},
			{"Track the Hideout", "Follow the trail from the last raid back to wherever they sleep.", types.QuestInvestigate, types.QuestMedium},
			{"Assault the Camp", "Hit the camp before they scatter. Leave them nothing to come back to.", types.QuestRevenge, types.QuestMedium},
			{"Capture the Leader", "Their leader slipped the net. Bring them in alive to face judgment.", types.QuestRevenge, types.QuestHard},
		},
	},
	{
		Key:     "rebellion",
		Name:    "Spark of Rebellion",
		Faction: "outcasts",
		Stages: []chainStage{
			{"Recruit Allies", "Find others who have had enough. Quietly. Names stay between us.", types.QuestInvestigate, types.QuestEasy},
			{"Gather Supplies", "An uprising runs on food, medicine and steel. Stockpile all three.", types.QuestFetch, types.QuestMedium},
			{"Sabotage", "Their strength is supply. Cut it where they won't notice until too late.", types.QuestRevenge, types.QuestMedium},
			{"The Uprising", "It begins at dawn. Stand with us when it does.", types.QuestProtect, types.QuestHard},
		},
	},
	{
		Key:     "mystery",
		Name:    "The Dark Secret",
		Faction: "citizens",
		Stages: []chainStage{
			{"Find the Clues", "People have been disappearing near the old quarter. Start where they were last seen.", types.QuestInvestigate, types.QuestEasy},
			{"Interrogate the Witness", "One person saw something and stopped talking. Change their mind.", types.QuestInvestigate, types.QuestMedium},
			{"Infiltrate", "The trail leads behind doors we can't open. You'll have to get inside.", types.QuestInvestigate, types.QuestMedium},
			{"Expose the Truth", "Bring what you found into the light, whatever it costs them.", types.QuestRevenge, types.QuestHard},
		},
	},
}

// chainsFor returns the storylines suited to a faction, or all of them when
// the faction has none of its own.
func chainsFor(factionID string) []chainTemplate {
	var out []chainTemplate
	for _, c := range chainTemplates {
		if c.Faction == factionID {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return chainTemplates
	}
	return out
}
