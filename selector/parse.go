package selector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseIndices extracts the selected indices from a model response. The JSON
// text is taken from the first ```json block, else the first fenced block,
// else the whole response; within it the span from the first '[' to the last
// ']' is decoded. Only integer literals in [0, n) are kept, in the order the
// model gave them. A response that decodes to something other than an array
// selects nothing; one that does not decode at all is an error.
func ParseIndices(response string, n int) ([]int, error) {
	candidate := response
	if _, after, ok := strings.Cut(response, "```json"); ok {
		candidate, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(response, "```"); ok {
		candidate, _, _ = strings.Cut(after, "```")
	}

	if start, end := strings.Index(candidate, "["), strings.LastIndex(candidate, "]"); start >= 0 && end > start {
		candidate = candidate[start : end+1]
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode selection: unexpected data after value")
	}

	items, ok := decoded.([]any)
	if !ok {
		return []int{}, nil
	}
	indices := make([]int, 0, len(items))
	for _, item := range items {
		num, ok := item.(json.Number)
		if !ok {
			continue
		}
		i, err := strconv.Atoi(num.String())
		if err != nil || i < 0 || i >= n {
			continue
		}
		indices = append(indices, i)
	}
	return indices, nil
}
