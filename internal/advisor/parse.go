package advisor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// ErrMalformedResponse marks a model reply that is not the JSON asked for.
// It is never retried.
var ErrMalformedResponse = errors.New("advisor: malformed response")

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON decodes text into dst, falling back to the first fenced code block
// when the reply wraps its JSON in markdown.
func extractJSON(text string, dst any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(text), dst); err == nil {
		return nil
	}
	match := fencedBlock.FindStringSubmatch(text)
	if match == nil || match[1] == "" {
		return fmt.Errorf("%w: no JSON found", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(match[1]), dst); err != nil {
		return fmt.Errorf("%w: fenced block: %v", ErrMalformedResponse, err)
	}
	return nil
}
