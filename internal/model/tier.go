package model

// Tier is a discrete revenue-size bucket a contractor's business falls into.
type Tier string

const (
	Tier0To5M    Tier = "0_5_million"
	Tier5To10M   Tier = "5_10_million"
	Tier10To20M  Tier = "10_20_million"
	Tier20To30M  Tier = "20_30_million"
	Tier31To50M  Tier = "31_50_million"
	Tier51To75M  Tier = "51_75_million"
	Tier76To150M Tier = "76_150_million"
	Tier150MPlus Tier = "150_plus_million"
)

// TierLadder is the default ordered ladder from smallest to largest tier.
// The analyzer iterates an injected transition list derived from a ladder,
// never this variable directly.
var TierLadder = []Tier{
	Tier0To5M,
	Tier5To10M,
	Tier10To20M,
	Tier20To30M,
	Tier31To50M,
	Tier51To75M,
	Tier76To150M,
	Tier150MPlus,
}

// TierTransition is one (from, to) pair the analyzer mines a pattern for.
type TierTransition struct {
	From Tier `json:"from" yaml:"from" mapstructure:"from"`
	To   Tier `json:"to" yaml:"to" mapstructure:"to"`
}

// ConsecutiveTransitions builds the transition list of adjacent pairs in a ladder.
func ConsecutiveTransitions(ladder []Tier) []TierTransition {
	if len(ladder) < 2 {
		return nil
	}
	transitions := make([]TierTransition, 0, len(ladder)-1)
	for i := 0; i < len(ladder)-1; i++ {
		transitions = append(transitions, TierTransition{From: ladder[i], To: ladder[i+1]})
	}
	return transitions
}

// tierIndex maps each tier to its position in the default ladder.
var tierIndex = func() map[Tier]int {
	m := make(map[Tier]int, len(TierLadder))
	for i, t := range TierLadder {
		m[t] = i
	}
	return m
}()

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierIndex[t]
	return ok
}

// Next returns the tier one step up the ladder, or empty if t is the top
// tier or unknown.
func (t Tier) Next() Tier {
	i, ok := tierIndex[t]
	if !ok || i >= len(TierLadder)-1 {
		return ""
	}
	return TierLadder[i+1]
}

// TierDistance returns the absolute ladder distance between two tiers.
// Unknown tiers are treated as maximally distant.
func TierDistance(a, b Tier) int {
	ia, okA := tierIndex[a]
	ib, okB := tierIndex[b]
	if !okA || !okB {
		return len(TierLadder)
	}
	d := ia - ib
	if d < 0 {
		d = -d
	}
	return d
}
