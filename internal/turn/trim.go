package turn

import "github.com/ayudante-ai/ayudante/internal/model"

// Roughly four characters per token for mixed Spanish text.
const charsPerToken = 4

// minKeptMessages is the number of most recent messages always kept
// regardless of budget.
const minKeptMessages = 5

// trimMessages drops the oldest messages until the estimated token count
// of the remainder fits budget. The most recent messages are always
// kept so the model never loses the immediate exchange.
func trimMessages(messages []model.Message, budget int) []model.Message {
	if budget <= 0 || len(messages) <= minKeptMessages {
		return messages
	}

	total := 0
	for _, m := range messages {
		total += len(m.Content) / charsPerToken
	}
	if total <= budget {
		return messages
	}

	start := 0
	for start < len(messages)-minKeptMessages && total > budget {
		total -= len(messages[start].Content) / charsPerToken
		start++
	}
	return messages[start:]
}
