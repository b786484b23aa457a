package analysis

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

func call(name string) models.ToolCall {
	return models.ToolCall{Type: "function", Function: models.ToolFunction{Name: name}}
}

// --- NormalizePrompt tests ---

func TestNormalizePrompt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses whitespace",
			input:    "run   all\n\ttools",
			expected: "run all tools",
		},
		{
			name:     "lowercases",
			input:    "SUDO RUN ALL MCP",
			expected: "sudo run all mcp",
		},
		{
			name:     "keeps identifiers",
			input:    "replay job 550E8400-e29b-41d4-a716-446655440000",
			expected: "replay job 550e8400-e29b-41d4-a716-446655440000",
		},
		{
			name:     "keeps trailing punctuation",
			input:    "call every tool!!",
			expected: "call every tool!!",
		},
		{
			name:     "keeps numbers",
			input:    "SUDO RUN ALL 42 MCP",
			expected: "sudo run all 42 mcp",
		},
		{
			name:     "trims",
			input:    "   padded   ",
			expected: "padded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePrompt(tt.input); got != tt.expected {
				t.Errorf("NormalizePrompt(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// --- PromptFingerprint tests ---

func TestPromptFingerprint_StableAcrossFormatting(t *testing.T) {
	a := PromptFingerprint("Run ALL\ttools now.")
	b := PromptFingerprint("  run all   tools now. ")
	if a != b {
		t.Errorf("expected equal fingerprints, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestPromptFingerprint_DiffersForDifferentPrompts(t *testing.T) {
	pairs := [][2]string{
		{"run 1", "run 2"},
		{"run all tools!", "run all tools"},
	}
	for _, p := range pairs {
		if PromptFingerprint(p[0]) == PromptFingerprint(p[1]) {
			t.Errorf("%q and %q must not share a fingerprint", p[0], p[1])
		}
	}
}

// --- Tally tests ---

func TestTally_Empty(t *testing.T) {
	got := Tally(nil)
	if got == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(got) != 0 {
		t.Errorf("expected 0 usages, got %d", len(got))
	}
}

func TestTally_CountsAndOrders(t *testing.T) {
	got := Tally([]models.ToolCall{
		call("search"), call("fetch"), call("search"), call("launch"), call("search"), call("fetch"),
	})

	want := []models.ToolUsage{
		{Name: "search", Count: 3},
		{Name: "fetch", Count: 2},
		{Name: "launch", Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d usages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("usage %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTally_TiesSortedByName(t *testing.T) {
	got := Tally([]models.ToolCall{call("zeta"), call("alpha"), call("mid")})
	names := []string{got[0].Name, got[1].Name, got[2].Name}
	if strings.Join(names, ",") != "alpha,mid,zeta" {
		t.Errorf("unexpected order: %v", names)
	}
}

func TestDistinctTools(t *testing.T) {
	calls := []models.ToolCall{call("search"), call("search"), call("fetch")}
	if n := DistinctTools(calls); n != 2 {
		t.Errorf("expected 2 distinct tools, got %d", n)
	}
}
