// File: internal/agent/actions.go
package agent

import (
	"regexp"
	"sort"
	"strings"
)

// ActionKind labels what a collaborator-proposed action targets.
type ActionKind string

const (
	// ActionPrompt is text destined for the level's prompt input.
	ActionPrompt ActionKind = "prompt"
	// ActionPassword is a guess destined for the password input.
	ActionPassword ActionKind = "password"
)

// Action is one instruction parsed out of a collaborator reply.
type Action struct {
	Kind ActionKind
	Text string
}

// Tags match case-insensitively and their content may span lines. Each tag
// kind gets its own pattern; matches merge by offset afterwards so mixed
// replies keep their order of appearance.
var (
	promptTagPattern   = regexp.MustCompile(`(?is)<prompt>(.*?)</prompt>`)
	passwordTagPattern = regexp.MustCompile(`(?is)<password>(.*?)</password>`)
)

type taggedMatch struct {
	offset int
	action Action
}

// ExtractActions pulls every <prompt> and <password> tag out of a reply, in
// the order they appear. Tag content is trimmed; tags left empty after
// trimming are dropped. Text outside tags is commentary and ignored.
func ExtractActions(reply string) []Action {
	var matches []taggedMatch
	matches = appendTagMatches(matches, reply, promptTagPattern, ActionPrompt)
	matches = appendTagMatches(matches, reply, passwordTagPattern, ActionPassword)
	sort.Slice(matches, func(i, j int) bool { return matches[i].offset < matches[j].offset })

	actions := make([]Action, 0, len(matches))
	for _, m := range matches {
		actions = append(actions, m.action)
	}
	return actions
}

func appendTagMatches(matches []taggedMatch, reply string, pattern *regexp.Regexp, kind ActionKind) []taggedMatch {
	for _, idx := range pattern.FindAllStringSubmatchIndex(reply, -1) {
		text := strings.TrimSpace(reply[idx[2]:idx[3]])
		if text == "" {
			continue
		}
		matches = append(matches, taggedMatch{offset: idx[0], action: Action{Kind: kind, Text: text}})
	}
	return matches
}
