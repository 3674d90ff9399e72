package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidJSON = errors.New("invalid json from LLM")

// StripCodeFence returns the body of the first ``` fenced block in s, or s
// trimmed when there is no fence. A language tag after the opening fence
// is dropped, including on one-line fences such as ```json [1]```.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	i := strings.Index(s, "```")
	if i < 0 {
		return s
	}
	body := s[i+3:]
	if j := strings.Index(body, "```"); j >= 0 {
		body = body[:j]
	}
	return strings.TrimSpace(dropLangTag(body))
}

// dropLangTag removes the info string that may follow an opening fence.
// On the fence line itself the tag is dropped only when a JSON value
// follows it, so a bare ```true``` keeps its body.
func dropLangTag(body string) string {
	n := 0
	for n < len(body) && isTagByte(body[n]) {
		n++
	}
	if n == 0 || n == len(body) {
		return body
	}
	switch rest := body[n:]; rest[0] {
	case '\n', '\r':
		return rest
	case ' ', '\t':
		if t := strings.TrimSpace(rest); t != "" && strings.ContainsRune(`[{"`, rune(t[0])) {
			return t
		}
	}
	return body
}

func isTagByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("_+-#.", c) >= 0
}

// DecodeReply unmarshals a model reply into v after stripping fences.
// Surrounding prose is tolerated by retrying on the outermost JSON
// array or object found in the text.
func DecodeReply(reply string, v any) error {
	body := StripCodeFence(reply)
	if body == "" {
		return fmt.Errorf("%w: empty reply", ErrInvalidJSON)
	}
	err := json.Unmarshal([]byte(body), v)
	if err == nil {
		return nil
	}
	if inner, ok := outermostJSON(body); ok && inner != body {
		if err2 := json.Unmarshal([]byte(inner), v); err2 == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
}

func outermostJSON(s string) (string, bool) {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return "", false
	}
	closer := byte(']')
	if s[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}
