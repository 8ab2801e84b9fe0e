// Package directive extracts tool directives from model replies.
//
// Two markers are recognized, case-sensitively:
//
//	[RUN_COMMAND <command>]
//	[SEARCH: <query>]
//
// Only the marker with the lowest offset is considered. If it is malformed
// (no closing bracket, or an empty argument) the reply has no directive at all.
package directive

import (
	"strings"
	"unicode"

	"github.com/daryltucker/agent-bench/internal/model"
)

const (
	runCommandMarker = "[RUN_COMMAND"
	searchMarker     = "[SEARCH:"
)

// Parse returns the first directive in text, if any.
func Parse(text string) (model.ToolDirective, bool) {
	start, kind, markerLen := firstMarker(text)
	if start < 0 {
		return model.ToolDirective{}, false
	}

	body := text[start+markerLen:]
	end := closingBracket(body)
	if end < 0 {
		return model.ToolDirective{}, false
	}

	arg := strings.TrimSpace(body[:end])
	if arg == "" {
		return model.ToolDirective{}, false
	}
	return model.ToolDirective{Kind: kind, Argument: arg}, true
}

// Scan attaches the parsed directive to reply.
func Scan(reply model.AgentReply) model.AgentReply {
	if d, ok := Parse(reply.Text); ok {
		reply.Directive = &d
	} else {
		reply.Directive = nil
	}
	return reply
}

// firstMarker finds the earliest valid marker. RUN_COMMAND must be followed by
// whitespace or the closing bracket, so "[RUN_COMMANDS" is plain text.
func firstMarker(text string) (int, model.ToolKind, int) {
	run := -1
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], runCommandMarker)
		if i < 0 {
			break
		}
		i += from
		next := i + len(runCommandMarker)
		if next == len(text) || text[next] == ']' || unicode.IsSpace(rune(text[next])) {
			run = i
			break
		}
		from = next
	}

	search := strings.Index(text, searchMarker)

	switch {
	case run < 0 && search < 0:
		return -1, "", 0
	case search < 0 || (run >= 0 && run < search):
		return run, model.ToolRunCommand, len(runCommandMarker)
	default:
		return search, model.ToolSearch, len(searchMarker)
	}
}

// closingBracket returns the index of the ']' that closes the marker,
// skipping balanced inner brackets such as shell test expressions.
func closingBracket(body string) int {
	depth := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}
