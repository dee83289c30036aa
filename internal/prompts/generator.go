// Package prompts generates the search-style prompts sent to AI answer
// engines during a scan.
package prompts

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// BusinessInput holds the business attributes prompts are built from
type BusinessInput struct {
	Name        string
	Industry    string
	Location    string
	Description string
	Keywords    []string
}

// Strategy selects which prompts a scan will run
type Strategy interface {
	// Generate returns the prompt list for a business
	Generate(input BusinessInput) []string
}

// templates are phrased the way users actually ask AI assistants.
// %[1]s is the industry or keyword, %[2]s the location.
var templates = []string{
	"What is the best %[1]s in %[2]s?",
	"Who should I hire for %[1]s in %[2]s?",
	"Recommend a %[1]s near %[2]s",
	"Top rated %[1]s companies in %[2]s",
	"I need a reliable %[1]s in %[2]s, any suggestions?",
	"List the most popular %[1]s services in %[2]s",
}

// ShuffleStrategy expands templates against the business keywords and picks
// a bounded random sample. A fixed seed makes the selection reproducible.
// One strategy instance is shared by every pool worker, so the rng is
// guarded: *rand.Rand is not safe for concurrent use.
type ShuffleStrategy struct {
	maxPrompts int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewShuffleStrategy creates a shuffle-and-slice prompt strategy
func NewShuffleStrategy(maxPrompts int, seed int64) *ShuffleStrategy {
	if maxPrompts <= 0 {
		maxPrompts = 10
	}
	return &ShuffleStrategy{
		maxPrompts: maxPrompts,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Generate builds the candidate prompt set, shuffles it and returns at most
// maxPrompts entries
func (s *ShuffleStrategy) Generate(input BusinessInput) []string {
	subjects := make([]string, 0, len(input.Keywords)+1)
	if input.Industry != "" {
		subjects = append(subjects, strings.ToLower(input.Industry))
	}
	for _, kw := range input.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			subjects = append(subjects, kw)
		}
	}
	if len(subjects) == 0 {
		subjects = append(subjects, "local business")
	}

	location := input.Location
	if location == "" {
		location = "my area"
	}

	candidates := make([]string, 0, len(subjects)*len(templates))
	seen := make(map[string]bool)
	for _, subject := range subjects {
		for _, tmpl := range templates {
			p := fmt.Sprintf(tmpl, subject, location)
			if !seen[p] {
				seen[p] = true
				candidates = append(candidates, p)
			}
		}
	}

	s.mu.Lock()
	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	s.mu.Unlock()

	if len(candidates) > s.maxPrompts {
		candidates = candidates[:s.maxPrompts]
	}
	return candidates
}
