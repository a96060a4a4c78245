// Package llm holds what the language model providers share.
package llm

// UserMessage formats the context block and the question that follow the
// system prompt in a generation request.
func UserMessage(context, question string) string {
	if context == "" {
		return "**Question:**\n" + question
	}
	return "**Context:**\n" + context + "\n\n**Question:**\n" + question
}
