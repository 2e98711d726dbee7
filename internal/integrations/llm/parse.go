package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var jsonBlockRegex = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// parseJSON unmarshals model output into T, falling back to the first
// fenced code block when the raw text is not valid JSON.
func parseJSON[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	err := json.Unmarshal([]byte(content), &result)
	if err == nil {
		return result, nil
	}

	matches := jsonBlockRegex.FindStringSubmatch(content)
	if len(matches) >= 2 {
		cleaned := strings.TrimSpace(matches[1])
		var fenced T
		if ferr := json.Unmarshal([]byte(cleaned), &fenced); ferr == nil {
			return fenced, nil
		}
	}

	return result, &MalformedResponseError{Reason: err.Error(), Body: content}
}
