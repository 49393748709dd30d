// internal/alias/alias.go
package alias

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	// DefaultAttempts bounds each retry phase.
	DefaultAttempts = 100
)

var adjectives = []string{
	"Silent", "Golden", "Crimson", "Swift", "Bold", "Lucky", "Shadow", "Iron",
	"Clever", "Frozen", "Wild", "Brave", "Hidden", "Cosmic", "Electric", "Mighty",
	"Rapid", "Sneaky", "Stormy", "Thunder", "Velvet", "Wandering", "Ancient", "Blazing",
	"Calm", "Daring", "Eager", "Fierce", "Gentle", "Hungry", "Icy", "Jolly",
	"Keen", "Lone", "Mystic", "Noble", "Proud", "Quiet", "Restless", "Savage",
	"Tidal", "Urban", "Vivid", "Wise", "Young", "Zealous", "Atomic", "Lunar",
}

var nouns = []string{
	"Whale", "Shark", "Dolphin", "Orca", "Kraken", "Marlin", "Octopus", "Barracuda",
	"Falcon", "Eagle", "Hawk", "Raven", "Wolf", "Tiger", "Lion", "Panther",
	"Bear", "Bull", "Fox", "Viper", "Cobra", "Dragon", "Phoenix", "Griffin",
	"Titan", "Ninja", "Samurai", "Pirate", "Captain", "Admiral", "Trader", "Hunter",
	"Ranger", "Wizard", "Knight", "Baron", "Duke", "Monk", "Sage", "Nomad",
	"Comet", "Meteor", "Rocket", "Glacier", "Volcano", "Cyclone", "Tsunami", "Storm",
}

// Generator produces "<Adjective> <Noun>" labels for unlabeled addresses.
type Generator struct {
	rnd      *rand.Rand
	now      func() time.Time
	attempts int
}

type Option func(*Generator)

// WithRand fixes the random source.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rnd = r }
}

// WithClock overrides the clock used by the final fallback.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithAttempts overrides the per-phase attempt bound.
func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
		now:      time.Now,
		attempts: DefaultAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a label not contained in existing. After two bounded
// phases (plain, then with a two-digit suffix) it falls back to a label
// derived from the clock, so it never loops forever.
func (g *Generator) Generate(existing map[string]struct{}) string {
	for i := 0; i < g.attempts; i++ {
		label := g.pair()
		if _, taken := existing[label]; !taken {
			return label
		}
	}

	for i := 0; i < g.attempts; i++ {
		label := fmt.Sprintf("%s %02d", g.pair(), g.rnd.IntN(100))
		if _, taken := existing[label]; !taken {
			return label
		}
	}

	return "Trader " + g.now().Format("150405")
}

func (g *Generator) pair() string {
	return adjectives[g.rnd.IntN(len(adjectives))] + " " + nouns[g.rnd.IntN(len(nouns))]
}

// Combinations is the size of the plain label space.
func Combinations() int {
	return len(adjectives) * len(nouns)
}
