package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "**Context:**\nctx\n\n**Question:**\nq", UserMessage("ctx", "q"))
	assert.Equal(t, "**Question:**\nq", UserMessage("", "q"))
}
