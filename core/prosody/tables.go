package prosody

// Option is a labelled value the model picks by index.
type Option struct {
	Label string
	Value string
}

var (
	StyleDegrees = []Option{
		{Label: "x-weak", Value: "0.5"},
		{Label: "weak", Value: "0.75"},
		{Label: "default", Value: "1"},
		{Label: "strong", Value: "1.5"},
		{Label: "x-strong", Value: "2"},
	}
	Pitches = []Option{
		{Label: "x-low", Value: "x-low"},
		{Label: "low", Value: "low"},
		{Label: "default", Value: "medium"},
		{Label: "high", Value: "high"},
		{Label: "x-high", Value: "x-high"},
	}
	Rates = []Option{
		{Label: "x-slow", Value: "x-slow"},
		{Label: "slow", Value: "slow"},
		{Label: "default", Value: "medium"},
		{Label: "fast", Value: "fast"},
		{Label: "x-fast", Value: "x-fast"},
	}
	Emphases = []Option{
		{Label: "reduced", Value: "reduced"},
		{Label: "none", Value: "none"},
		{Label: "moderate", Value: "moderate"},
		{Label: "strong", Value: "strong"},
	}
)

// DefaultStyles are the styles offered when a voice does not list its own.
var DefaultStyles = []string{
	"angry", "cheerful", "excited", "friendly", "hopeful",
	"sad", "shouting", "terrified", "unfriendly", "whispering",
}

// pick maps a 1-based index onto options, clamping out of range values.
func pick[T any](options []T, index int) T {
	index = min(max(index, 1), len(options))
	return options[index-1]
}
