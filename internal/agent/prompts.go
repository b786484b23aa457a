package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/portalpilot/internal/portal"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

const decisionShape = `{"prompt": "...", "FLAG_SUCCESS": false, "FLAG_STOP": false}`

const systemPrompt = `You operate a job submission portal on behalf of a user.
Reply only with a JSON object of the form {"prompt": "...", "FLAG_SUCCESS": <boolean>, "FLAG_STOP": <boolean>}.
Set "FLAG_STOP" to true only when the loop should end, normally together with "FLAG_SUCCESS" once the objective is met.`

const nextPromptInstruction = `Your task is to write the next prompt to submit to the portal.
Work from the objective and the job results you are given, and reply with JSON only, always including both FLAG_SUCCESS and FLAG_STOP.`

func initialMessage(objective string) string {
	return strings.Join([]string{
		"Objective: " + objective,
		"Reach this objective by crafting the prompts submitted to the job portal.",
		"Reply with JSON shaped like " + decisionShape + ".",
		"Once the objective is fully met, set both FLAG_SUCCESS and FLAG_STOP to true; the prompt may be empty then.",
		nextPromptInstruction,
	}, "\n")
}

func resultMessage(sub *models.Submission, iteration int) string {
	status := sub.Status
	if status == "" {
		status = "unknown"
	}
	response := sub.LLMResponse
	if response == "" {
		response = "<no response>"
	}
	toolCalls := portal.ResponseNone
	if sub.ToolCalls != nil && *sub.ToolCalls != "" {
		toolCalls = *sub.ToolCalls
	}
	prompt := strings.TrimSpace(sub.Prompt)

	var b strings.Builder
	fmt.Fprintf(&b, "Iteration %d is complete.\n", iteration)
	fmt.Fprintf(&b, "Job ID: %s\n", sub.JobID)
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Prompt submitted: %s\n", prompt)
	fmt.Fprintf(&b, "Prompt length: %d\n", utf8.RuneCountInString(prompt))
	fmt.Fprintf(&b, "Model output snippet: %s\n", response)
	fmt.Fprintf(&b, "Tool calls: %s\n", toolCalls)
	fmt.Fprintf(&b, "Number of tool calls: %d\n", sub.UniqueToolCount)
	b.WriteString(`Based on this, provide the next prompt as JSON with fields "prompt", "FLAG_SUCCESS", and "FLAG_STOP".`)
	return b.String()
}

func correctionMessage(err error) string {
	return fmt.Sprintf("Your previous reply was invalid because: %v. Respond only with JSON formatted as %s.", err, decisionShape)
}
