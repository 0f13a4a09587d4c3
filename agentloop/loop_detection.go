package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// toolCallSignature identifies a call by name and a hash of its arguments.
// json.Marshal sorts map keys, so equal arguments hash equally.
func toolCallSignature(call ToolCall) string {
	data, _ := json.Marshal(call.Arguments)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", call.Name, h[:8])
}

// DetectLoop reports whether the last windowSize tool calls in the
// conversation repeat a pattern of length 1, 2 or 3.
func DetectLoop(conv *Conversation, windowSize int) bool {
	if windowSize <= 0 {
		return false
	}
	calls := conv.toolCalls()
	if len(calls) < windowSize {
		return false
	}
	sigs := make([]string, windowSize)
	for i, call := range calls[len(calls)-windowSize:] {
		sigs[i] = toolCallSignature(call)
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 || windowSize == patternLen {
			continue
		}
		if repeats(sigs, patternLen) {
			return true
		}
	}
	return false
}

func repeats(sigs []string, patternLen int) bool {
	for i := patternLen; i < len(sigs); i++ {
		if sigs[i] != sigs[i%patternLen] {
			return false
		}
	}
	return true
}

func loopWarning(windowSize int) string {
	return fmt.Sprintf("Loop detected: your last %d tool calls repeat the same pattern. Stop repeating them and try a different approach, or answer with what you have.", windowSize)
}
