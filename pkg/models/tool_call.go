package models

// ToolCall is one function invocation the portal reports for a job.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function ToolFunction `json:"function"`
}

// ToolFunction names the invoked tool and carries its raw arguments.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// ToolUsage is the number of times one tool was invoked.
type ToolUsage struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
