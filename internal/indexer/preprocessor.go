package indexer

import (
	"strings"
)

// Preprocess normalizes a loaded document: drops a UTF-8 byte order mark, replaces
// invalid UTF-8, converts CRLF and CR line endings to LF, and trims trailing spaces
// on each line. Paragraph breaks are preserved for the splitter.
func Preprocess(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ToValidUTF8(text, "\ufffd")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
