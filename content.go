package main

// Static reference data: the physical-action pool, the trivia bank, and the
// emoji shown on choice tiles. All immutable at runtime.

type actionDef struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Seconds     int    `json:"seconds"`
	Points      int    `json:"points"`
}

var defaultActions = []actionDef{
	{
		Label:       "Mirror the lead performer",
		Description: "Copy everything the main actor does without breaking character.",
		Seconds:     60,
		Points:      12,
	},
	{
		Label:       "Hydrate break",
		Description: "Drink water (or nearest beverage) slowly and deliberately.",
		Seconds:     45,
		Points:      8,
	},
	{
		Label:       "Balance challenge",
		Description: "Stand on one foot and hold your pose the entire time.",
		Seconds:     75,
		Points:      14,
	},
	{
		Label:       "Feet above head",
		Description: "Find a safe way to elevate your legs higher than your head.",
		Seconds:     90,
		Points:      16,
	},
	{
		Label:       "Freestyle dance",
		Description: "Improvise moves that match the video's energy without stopping.",
		Seconds:     80,
		Points:      15,
	},
}

type triviaQuestion struct {
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
	Correct  int      `json:"-"`
	Points   int      `json:"-"`
}

var defaultTrivia = []triviaQuestion{
	{
		Question: "How many ribs does the average human have?",
		Answers:  []string{"24", "18", "32"},
		Correct:  0,
		Points:   10,
	},
	{
		Question: "Which planet spins on its side compared to the others?",
		Answers:  []string{"Neptune", "Uranus", "Mars"},
		Correct:  1,
		Points:   8,
	},
	{
		Question: "What is the only metal that is liquid at room temperature?",
		Answers:  []string{"Mercury", "Gallium", "Sodium"},
		Correct:  0,
		Points:   10,
	},
	{
		Question: "How many minutes are in a standard day?",
		Answers:  []string{"1440", "1360", "1520"},
		Correct:  0,
		Points:   6,
	},
	{
		Question: "Which color completes the CMYK model? Cyan, Magenta, Yellow and…",
		Answers:  []string{"Black", "Blue", "Khaki"},
		Correct:  0,
		Points:   7,
	},
	{
		Question: "What gas do plants absorb during photosynthesis?",
		Answers:  []string{"Oxygen", "Hydrogen", "Carbon dioxide"},
		Correct:  2,
		Points:   6,
	},
	{
		Question: "Which instrument has 47 strings and 7 pedals?",
		Answers:  []string{"Harp", "Cello", "Lute"},
		Correct:  0,
		Points:   9,
	},
	{
		Question: "How many bones are babies born with?",
		Answers:  []string{"206", "270", "150"},
		Correct:  1,
		Points:   11,
	},
}

// eventEmoji decorates choice tiles; keys are high-level event names.
var eventEmoji = map[string]string{
	"Puff":      "🌬️",
	"Sniff":     "🐾",
	"Mask":      "🤿",
	"Action":    "📨",
	"Chill":     "🧊",
	"Replay":    "🔁",
	"Trivia":    "❓",
	"Peace":     "🕊️",
	"Redo Last": "🔂",
	"Grid":      "🔠",
}

// vibeKeys are the visual theme bundles known to the client. Theme data
// itself (palettes, fonts, animations) lives in the client CSS; the server
// only assigns a key per quadrant.
var vibeKeys = []string{
	"neon-arena",
	"midnight-court",
	"chromatic-rush",
	"glass-studio",
	"sunset-drive",
	"monolith-grid",
	"aerobic-broadcast",
	"lunar-laboratory",
	"ink-theatre",
	"soft-echo",
}
