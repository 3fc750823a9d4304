package llm

import (
	"strings"

	"github.com/set-night/chatrelay/internal/domain"
)

// BuildMessages assembles the upstream conversation: the system prompt when
// set, each prior exchange in order, then the current message carrying any
// images.
func BuildMessages(prompt string, history []domain.ContextEntry, message string, images []domain.Attachment) []Message {
	messages := make([]Message, 0, 2*len(history)+2)

	if strings.TrimSpace(prompt) != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: prompt})
	}

	for _, entry := range history {
		messages = append(messages, Message{Role: RoleUser, Content: contextUserText(entry)})
		if entry.AssistantMessage != "" {
			messages = append(messages, Message{Role: RoleAssistant, Content: entry.AssistantMessage})
		}
	}

	current := Message{Role: RoleUser, Content: message}
	if len(images) > 0 {
		current.Images = append([]domain.Attachment(nil), images...)
	}
	return append(messages, current)
}

func contextUserText(entry domain.ContextEntry) string {
	if entry.FileContent == "" {
		return entry.UserMessage
	}
	return "FileContent:\n" + entry.FileContent + "\n\nQuestion: " + entry.UserMessage
}
