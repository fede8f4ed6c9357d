package services

import (
	"fmt"
	"strings"

	"github.com/promptforge-ai/promptforge-engine/pkg/models"
)

// newConversationContext is the placeholder context for sessions that have no
// prior turns to render.
const newConversationContext = "New conversation"

// BuildExamples transforms recorded sessions into training examples, one per
// session with at least one pair. Output order matches session order. The
// transformation is pure and deterministic.
func BuildExamples(sessions []models.Session) []models.Example {
	examples := make([]models.Example, 0, len(sessions))

	for _, session := range sessions {
		if len(session.Pairs) == 0 {
			continue
		}

		last := len(session.Pairs) - 1

		context := newConversationContext
		if last > 0 {
			turns := make([]string, 0, last)
			for i, pair := range session.Pairs[:last] {
				turns = append(turns, renderTurn(i+1, pair))
			}
			if rendered := strings.Join(turns, "\n\n"); rendered != "" {
				context = rendered
			}
		}

		examples = append(examples, models.Example{
			ConversationContext:  context,
			ExpectedTurnResponse: renderTurn(last+1, session.Pairs[last]),
			ToolsUsed:            collectTools(session.Pairs),
		})
	}

	return examples
}

// renderTurn renders one pair as a numbered conversational turn.
func renderTurn(n int, pair models.Pair) string {
	turn := fmt.Sprintf("Turn %d:\nUser: %s\nAssistant: %s", n, pair.Question, pair.Answer)
	if pair.Tool != "" {
		turn += fmt.Sprintf(" [Tool: %s]", pair.Tool)
	}
	return turn
}

// collectTools gathers every tool name used anywhere in the session, in turn
// order. Returns nil when no tool was used.
func collectTools(pairs []models.Pair) []string {
	var tools []string
	for _, pair := range pairs {
		if pair.Tool != "" {
			tools = append(tools, pair.Tool)
		}
	}
	return tools
}

// RenderTrainingExamples renders examples as context→response blocks. Used as
// the prompt's demonstration section when the optimizer returns no demos.
func RenderTrainingExamples(examples []models.Example) string {
	blocks := make([]string, 0, len(examples))
	for i, ex := range examples {
		blocks = append(blocks, fmt.Sprintf("Example %d:\nContext:\n%s\nResponse:\n%s",
			i+1, ex.ConversationContext, ex.ExpectedTurnResponse))
	}
	return strings.Join(blocks, "\n\n")
}
