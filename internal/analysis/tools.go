package analysis

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

var reWhitespace = regexp.MustCompile(`\s+`)

// Tally counts invocations per tool name.
// Returns usages sorted by (Count DESC, Name ASC).
// Returns empty slice for empty input (never nil).
func Tally(calls []models.ToolCall) []models.ToolUsage {
	if len(calls) == 0 {
		return []models.ToolUsage{}
	}

	counts := make(map[string]int)
	for _, c := range calls {
		counts[c.Function.Name]++
	}

	usages := make([]models.ToolUsage, 0, len(counts))
	for name, n := range counts {
		usages = append(usages, models.ToolUsage{Name: name, Count: n})
	}

	sort.Slice(usages, func(i, j int) bool {
		if usages[i].Count != usages[j].Count {
			return usages[i].Count > usages[j].Count
		}
		return usages[i].Name < usages[j].Name
	})

	return usages
}

// DistinctTools returns the number of different tool names in calls.
func DistinctTools(calls []models.ToolCall) int {
	return len(Tally(calls))
}

// PromptFingerprint computes a stable SHA-256 fingerprint for a prompt, so
// resubmissions of the same prompt can be found in the history.
func PromptFingerprint(prompt string) string {
	hash := sha256.Sum256([]byte(NormalizePrompt(prompt)))
	return fmt.Sprintf("%x", hash)
}

// NormalizePrompt collapses whitespace runs to one space, trims and
// lower-cases. Digits and punctuation are kept, so "run 1" and "run 2!" stay
// distinct.
func NormalizePrompt(prompt string) string {
	p := reWhitespace.ReplaceAllString(prompt, " ")
	return strings.ToLower(strings.TrimSpace(p))
}
