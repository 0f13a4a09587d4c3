package agentloop

import (
	"sync"

	"github.com/martinemde/wand/unifiedllm"
)

// Conversation is the append-only message history of one user turn. It is
// the only memory the agent has.
type Conversation struct {
	mu       sync.Mutex
	messages []unifiedllm.Message
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Seed starts the conversation with the system prompt, the optional context
// listing and the user query.
func (c *Conversation) Seed(system, context, query string) {
	c.Append(unifiedllm.SystemMessage(system))
	if context != "" {
		c.Append(unifiedllm.UserMessage("Context Files:\n" + context))
	}
	c.Append(unifiedllm.UserMessage("User Query: " + query))
}

// Append adds a message to the end of the conversation.
func (c *Conversation) Append(msg unifiedllm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []unifiedllm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]unifiedllm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// LastAssistantText returns the content of the most recent assistant message.
func (c *Conversation) LastAssistantText() string {
	msgs := c.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == unifiedllm.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}

// toolCalls returns the calls parsed from every assistant message, oldest
// first.
func (c *Conversation) toolCalls() []ToolCall {
	var calls []ToolCall
	for _, msg := range c.Messages() {
		if msg.Role != unifiedllm.RoleAssistant {
			continue
		}
		if res := ParseToolCall(msg.Content); res.Kind == Call {
			calls = append(calls, res.Call)
		}
	}
	return calls
}
