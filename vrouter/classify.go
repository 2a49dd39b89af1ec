package vrouter

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/routecodex/routecodex/types"
)

// Decision is the outcome of classifying one canonical request: an
// estimated prompt size, whether it carries tool definitions, and the
// routing decision name the classifier picked. Confidence is the picked
// rule's MinConfidence, or 0 for the "default" decision; no score is
// computed.
type Decision struct {
	EstimatedTokens int
	HasTools        bool
	ToolCategory    string
	RouteDecision   string
	Confidence      float64
}

// RoutingRule maps a named routing decision to the route it points at.
// A rule is selected when its RequireTools and MaxTokens constraints
// hold; MinConfidence is not compared against anything and is only
// copied into Decision.Confidence.
type RoutingRule struct {
	Name          string
	RouteName     string
	MinConfidence float64
	RequireTools  bool
	MaxTokens     int // 0 = unbounded
}

// Classifier estimates token counts with tiktoken-go's cl100k_base
// encoding for every model, falling back to the teacher's char-ratio
// estimator (types.EstimateTokenizer) only when that encoding cannot be
// loaded.
type Classifier struct {
	fallback *types.EstimateTokenizer
	rules    []RoutingRule
}

// NewClassifier creates a Classifier with the given ordered routing
// rules; rules are evaluated in order and the first whose constraints
// are satisfied wins.
func NewClassifier(rules []RoutingRule) *Classifier {
	return &Classifier{
		fallback: types.NewEstimateTokenizer(),
		rules:    rules,
	}
}

// EstimateTokens counts tokens for a message/tool set, preferring an
// exact cl100k_base BPE count and falling back to char-ratio estimation
// if tiktoken has no encoding registered (e.g. restricted environments,
// or encodings tiktoken-go can't resolve for custom model ids).
func (c *Classifier) EstimateTokens(msgs []types.Message, tools []types.ToolSchema) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return c.fallback.CountMessagesTokens(msgs) + c.fallback.EstimateToolTokens(tools)
	}
	total := 0
	for _, m := range msgs {
		total += len(enc.Encode(m.Content, nil, nil)) + 4
		for _, tc := range m.ToolCalls {
			total += len(enc.Encode(tc.Name, nil, nil)) + len(tc.Arguments)/4
		}
	}
	for _, t := range tools {
		total += len(enc.Encode(t.Name+" "+t.Description, nil, nil)) + len(t.Parameters)/4
	}
	return total
}

// Classify estimates the request's size and picks a routing decision.
func (c *Classifier) Classify(msgs []types.Message, tools []types.ToolSchema) Decision {
	tokens := c.EstimateTokens(msgs, tools)
	hasTools := len(tools) > 0
	category := ""
	if hasTools {
		category = toolCategory(tools)
	}

	for _, rule := range c.rules {
		if rule.RequireTools && !hasTools {
			continue
		}
		if rule.MaxTokens > 0 && tokens > rule.MaxTokens {
			continue
		}
		return Decision{
			EstimatedTokens: tokens,
			HasTools:        hasTools,
			ToolCategory:    category,
			RouteDecision:   rule.Name,
			Confidence:      rule.MinConfidence,
		}
	}

	return Decision{
		EstimatedTokens: tokens,
		HasTools:        hasTools,
		ToolCategory:    category,
		RouteDecision:   "default",
		Confidence:      0,
	}
}

// toolCategory picks a coarse label from the tool name set (e.g. shell
// execution vs filesystem tools). It is reported in
// Decision.ToolCategory; route selection does not read it.
func toolCategory(tools []types.ToolSchema) string {
	for _, t := range tools {
		switch t.Name {
		case "bash", "shell", "execute_command", "run_command":
			return "shell"
		case "read_file", "write_file", "edit_file":
			return "filesystem"
		case "web_search", "browser":
			return "web"
		}
	}
	return "general"
}
