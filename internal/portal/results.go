package portal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/kiranshivaraju/portalpilot/internal/analysis"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

// Sentinels for fields the result page did not provide.
const (
	PromptUnknown = "<unknown>"
	ResponseNone  = "<none>"
)

// Section headings on the portal's result page.
const (
	headingPrompt    = "Original Prompt"
	headingResponse  = "LLM Response"
	headingToolCalls = "LLM Tool Calls"
)

// Result is what a job's result page reports.
type Result struct {
	// Prompt as echoed by the portal, or PromptUnknown.
	Prompt string `json:"prompt"`
	// Response is the model's answer, or ResponseNone.
	Response string `json:"llm_response"`
	// ToolCalls is the raw JSON tool-call payload, nil when the job
	// triggered none.
	ToolCalls *string `json:"tool_calls,omitempty"`
}

func (r Result) HasToolCalls() bool { return r.ToolCalls != nil }

// Extract scrapes a result page. Each field is located by its section heading
// and read from the sibling elements that follow it, up to the next heading
// of the same level. Missing sections yield the sentinels, never an error.
func Extract(document string) Result {
	res := Result{Prompt: PromptUnknown, Response: ResponseNone}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return res
	}

	if h := findHeading(doc, headingPrompt); h != nil {
		if text, ok := scanSiblings(h, siblingText); ok {
			res.Prompt = text
		}
	}

	if h := findHeading(doc, headingResponse); h != nil {
		if text, ok := scanSiblings(h, siblingText); ok {
			res.Response = text
		}
	}

	if h := findHeading(doc, headingToolCalls); h != nil {
		if text, ok := scanSiblings(h, siblingPre); ok {
			res.ToolCalls = &text
		}
	}

	return res
}

// findHeading returns the first heading, in document order, whose text
// contains label.
func findHeading(doc *goquery.Document, label string) *goquery.Selection {
	sel := doc.Find("h1, h2, h3, h4, h5, h6").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), label)
	}).First()
	if sel.Length() == 0 {
		return nil
	}
	return sel
}

// scanSiblings visits the element siblings after heading until one of them
// satisfies match or a heading of the same level ends the section.
func scanSiblings(heading *goquery.Selection, match func(*goquery.Selection) (string, bool)) (string, bool) {
	level := goquery.NodeName(heading)
	for s := heading.Next(); s.Length() > 0; s = s.Next() {
		if goquery.NodeName(s) == level {
			return "", false
		}
		if text, ok := match(s); ok {
			return text, true
		}
	}
	return "", false
}

func siblingText(s *goquery.Selection) (string, bool) {
	text := nodeText(s.Get(0))
	return text, text != ""
}

func siblingPre(s *goquery.Selection) (string, bool) {
	if goquery.NodeName(s) == "pre" {
		if text := nodeText(s.Get(0)); text != "" {
			return text, true
		}
	}
	pre := s.Find("pre").First()
	if pre.Length() == 0 {
		return "", false
	}
	text := nodeText(pre.Get(0))
	return text, text != ""
}

// nodeText joins every non-blank line of n's descendant text with "\n",
// trimming each line.
func nodeText(n *html.Node) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			for _, line := range strings.Split(n.Data, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					lines = append(lines, line)
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(lines, "\n")
}

// ParseToolCalls decodes a tool-call payload taken from a Result.
func ParseToolCalls(raw string) ([]models.ToolCall, error) {
	var calls []models.ToolCall
	if err := json.Unmarshal([]byte(raw), &calls); err != nil {
		return nil, fmt.Errorf("%w: tool calls: %v", ErrExtraction, err)
	}
	// A JSON null decodes without error but leaves the slice nil.
	if calls == nil {
		return nil, fmt.Errorf("%w: tool calls: payload is not a JSON array", ErrExtraction)
	}
	for i, c := range calls {
		if c.Function.Name == "" {
			return nil, fmt.Errorf("%w: tool call %d has no function name", ErrExtraction, i)
		}
	}
	return calls, nil
}

// UniqueToolCount returns how many distinct tool names a payload invokes.
// A nil payload counts zero.
func UniqueToolCount(raw *string) (int, error) {
	if raw == nil {
		return 0, nil
	}
	calls, err := ParseToolCalls(*raw)
	if err != nil {
		return 0, err
	}
	return analysis.DistinctTools(calls), nil
}
