// Package segment divides listing text into candidate owner blocks.
//
// The rule is a heuristic: a blank line (a whitespace run holding at least
// two newlines) ends a record. It does not guarantee a 1:1 mapping to logical
// records, which is why providers may carry their own separator.
package segment

import (
	"regexp"
	"strings"
)

// BlankLinePattern matches a whitespace run holding two or more newlines.
// Blank lines from PDF and HTML text layers often carry NBSP or other Unicode
// spaces, which `\s` alone does not cover.
const BlankLinePattern = `\n[\s\x0B\p{Zs}\x{FEFF}\x{2028}\x{2029}]*\n`

var blankLineRE = regexp.MustCompile(BlankLinePattern)

// Block is one candidate record, trimmed, with its 1-indexed starting line in
// the normalized source text.
type Block struct {
	Text string
	Line int
}

// Split segments text on blank lines.
func Split(text string) []Block {
	return SplitWith(text, blankLineRE)
}

// SplitWith segments text using sep. A nil sep uses the blank-line rule.
// Blocks that are empty after trimming are dropped; source order is kept.
func SplitWith(text string, sep *regexp.Regexp) []Block {
	if sep == nil {
		sep = blankLineRE
	}

	// Normalize line endings
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var blocks []Block
	start := 0
	emit := func(end int) {
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return
		}
		lead := raw[:strings.Index(raw, trimmed)]
		line := 1 + strings.Count(text[:start], "\n") + strings.Count(lead, "\n")
		blocks = append(blocks, Block{Text: trimmed, Line: line})
	}

	for _, loc := range sep.FindAllStringIndex(text, -1) {
		if loc[1] == loc[0] {
			// Zero-width separators would split between every rune.
			continue
		}
		emit(loc[0])
		start = loc[1]
	}
	emit(len(text))

	return blocks
}

// Texts returns just the block contents.
func Texts(blocks []Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Text
	}
	return out
}
