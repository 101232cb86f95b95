package quiz

// Question is one round's prompt. Correct indexes into Answers; it only
// travels in the authoring direction — snapshots expose it through
// State.Correct during the reveal and never before.
type Question struct {
	Prompt  string   `json:"prompt"`
	Answers []string `json:"answers"`
	Correct int      `json:"correct"`
}

// The built-in bank keeps rooms playable without authored content. Displays
// can override it through the room config.
var defaultBank = []Question{
	{
		Prompt:  "Which planet has the most moons?",
		Answers: []string{"Earth", "Mars", "Saturn", "Venus"},
		Correct: 2,
	},
	{
		Prompt:  "What year did the first website go online?",
		Answers: []string{"1983", "1991", "1995", "1999"},
		Correct: 1,
	},
	{
		Prompt:  "Which of these is not a programming language?",
		Answers: []string{"Rust", "Go", "Falcon", "Komodo"},
		Correct: 3,
	},
	{
		Prompt:  "How many keys does a standard piano have?",
		Answers: []string{"66", "76", "88", "92"},
		Correct: 2,
	},
	{
		Prompt:  "Which ocean is the deepest?",
		Answers: []string{"Atlantic", "Indian", "Arctic", "Pacific"},
		Correct: 3,
	},
	{
		Prompt:  "What is the chemical symbol for gold?",
		Answers: []string{"Go", "Gd", "Au", "Ag"},
		Correct: 2,
	},
	{
		Prompt:  "Which country invented tea bags?",
		Answers: []string{"China", "United Kingdom", "United States", "India"},
		Correct: 2,
	},
	{
		Prompt:  "How long is one day on Venus, roughly?",
		Answers: []string{"12 Earth hours", "1 Earth day", "243 Earth days", "10 Earth years"},
		Correct: 2,
	},
	{
		Prompt:  "Which animal sleeps the least?",
		Answers: []string{"Giraffe", "Koala", "Cat", "Sloth"},
		Correct: 0,
	},
	{
		Prompt:  "What does HTTP stand for?",
		Answers: []string{"Hypertext Transfer Protocol", "High Throughput Transfer Process", "Hyperlink Text Parser", "Host Transfer Type Protocol"},
		Correct: 0,
	},
}
