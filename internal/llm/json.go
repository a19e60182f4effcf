package llm

import (
	"regexp"
	"strings"
)

const fenceClose = "```"

// fenceOpen matches the ```json tag in any case plus the whitespace after it.
var fenceOpen = regexp.MustCompile("(?i)```json\\s*")

// numberedItem splits replies written as numbered lists ("1. ", "2. ", ...).
var numberedItem = regexp.MustCompile(`\n\d+\.\s`)

// FencedJSONBlocks returns the contents of the ```json fenced blocks in text,
// in order. Prose and numbered-list markers around the blocks are ignored. An
// unterminated final block runs to the end of the text.
func FencedJSONBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var blocks []string
	for _, part := range numberedItem.Split(text, -1) {
		for {
			loc := fenceOpen.FindStringIndex(part)
			if loc == nil {
				break
			}
			part = part[loc[1]:]
			end := strings.Index(part, fenceClose)
			if end < 0 {
				blocks = append(blocks, strings.TrimSpace(part))
				break
			}
			blocks = append(blocks, strings.TrimSpace(part[:end]))
			part = part[end+len(fenceClose):]
		}
	}
	return blocks
}
