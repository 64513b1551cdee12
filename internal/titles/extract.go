package titles

import (
	"fmt"
	"regexp"
	"strings"
)

// titlePattern matches the interior of the first <title>...</title> pair,
// non-greedy, with "." spanning newlines. Documents without a closing tag
// do not match.
var titlePattern = regexp.MustCompile(`(?s)<title>(.*?)</title>`)

// ExtractTitle returns the trimmed interior text of the first title element
// in content, or ErrNoTitle if no delimiter pair is present.
func ExtractTitle(content []byte) (string, error) {
	m := titlePattern.FindSubmatch(content)
	if m == nil {
		return "", fmt.Errorf("extract title: %w", ErrNoTitle)
	}
	return strings.TrimSpace(string(m[1])), nil
}
