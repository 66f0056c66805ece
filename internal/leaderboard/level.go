// Package leaderboard maps yearly commit totals onto developer tiers.
package leaderboard

const defaultMessage = "Keep coding!"

// Tier is one rung of the commit ladder. MaxCommits is inclusive;
// zero marks the open-ended top tier.
type Tier struct {
	Name        string `json:"name"`
	Emoji       string `json:"emoji"`
	Color       string `json:"color"`
	Description string `json:"description"`
	Message     string `json:"message"`
	MinCommits  int    `json:"minCommits"`
	MaxCommits  int    `json:"maxCommits,omitempty"`
}

// Level is a tier resolved for a commit count.
type Level struct {
	Tier
	Index   int `json:"index"`
	Commits int `json:"commits"`
	// NextAt is the commit count that unlocks the next tier, zero at the top.
	NextAt int `json:"nextAt,omitempty"`
}

var tiers = []Tier{
	{
		Name:        "Code Ninja",
		Emoji:       "🥷",
		Color:       "blue",
		Description: "Silent but deadly coder",
		Message:     "Keep slashing bugs, Ninja!",
		MinCommits:  0,
		MaxCommits:  1000,
	},
	{
		Name:        "Code Samurai",
		Emoji:       "⚔️",
		Color:       "purple",
		Description: "Master of repositories",
		Message:     "Your code cuts through complexity like a blade!",
		MinCommits:  1001,
		MaxCommits:  5000,
	},
	{
		Name:        "Open Source Master",
		Emoji:       "🧠",
		Color:       "gold",
		Description: "Inspires through code",
		Message:     "You're inspiring the next generation of developers!",
		MinCommits:  5001,
		MaxCommits:  10000,
	},
	{
		Name:        "Legendary Developer",
		Emoji:       "🚀",
		Color:       "platinum",
		Description: "Leaves commits in the stars",
		Message:     "Your commits echo through the cosmos!",
		MinCommits:  10001,
	},
}

// Tiers returns a copy of the tier table, lowest first.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// LevelFor returns the tier whose range holds commits. Negative counts
// resolve to the lowest tier.
func LevelFor(commits int) Level {
	index := 0
	for i, tier := range tiers {
		if commits >= tier.MinCommits && (tier.MaxCommits == 0 || commits <= tier.MaxCommits) {
			index = i
			break
		}
	}

	level := Level{Tier: tiers[index], Index: index, Commits: commits}
	if index+1 < len(tiers) {
		level.NextAt = tiers[index+1].MinCommits
	}
	return level
}

// MotivationalMessage returns the message for the tier named name.
func MotivationalMessage(name string) string {
	for _, tier := range tiers {
		if tier.Name == name {
			return tier.Message
		}
	}
	return defaultMessage
}
