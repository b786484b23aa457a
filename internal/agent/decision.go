package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

// ParseDecision decodes an LLM reply into a PromptDecision. Markdown code
// fences around the JSON are tolerated; every field must be present.
func ParseDecision(reply string) (models.PromptDecision, error) {
	var raw struct {
		Prompt  *string `json:"prompt"`
		Success *bool   `json:"FLAG_SUCCESS"`
		Stop    *bool   `json:"FLAG_STOP"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(reply)), &raw); err != nil {
		return models.PromptDecision{}, fmt.Errorf("reply is not a valid JSON object: %v", err)
	}

	var missing []string
	if raw.Prompt == nil {
		missing = append(missing, "prompt")
	}
	if raw.Success == nil {
		missing = append(missing, "FLAG_SUCCESS")
	}
	if raw.Stop == nil {
		missing = append(missing, "FLAG_STOP")
	}
	if len(missing) > 0 {
		return models.PromptDecision{}, fmt.Errorf("reply is missing required fields: %s", strings.Join(missing, ", "))
	}

	return models.PromptDecision{Prompt: *raw.Prompt, Success: *raw.Success, Stop: *raw.Stop}, nil
}

// stripCodeFences removes a wrapping ``` block, dropping any fence lines
// inside it. Text that is not fully fenced is only trimmed.
func stripCodeFences(text string) string {
	stripped := strings.TrimSpace(text)
	if !strings.HasPrefix(stripped, "```") || !strings.HasSuffix(stripped, "```") {
		return stripped
	}

	lines := strings.Split(stripped, "\n")
	if len(lines) < 2 {
		return stripped
	}

	inner := make([]string, 0, len(lines)-2)
	for _, line := range lines[1 : len(lines)-1] {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		inner = append(inner, line)
	}
	return strings.TrimSpace(strings.Join(inner, "\n"))
}
