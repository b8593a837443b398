// Package match implements topic pattern matching and the authorization
// decision over permission entries.
//
// Pattern grammar: topic names and patterns are dot-delimited. A literal
// segment matches itself, "*" matches exactly one segment and "**" matches any
// remainder, including across dot boundaries.
package match

import (
	"strings"

	"github.com/coregx/broker/model"
)

const (
	delimiter     = "."
	wildcard      = "*"
	multiWildcard = "**"
)

// Matches reports whether a topic name matches a subscription or permission
// pattern.
func Matches(topicName, pattern string) bool {
	// Exact equality short-circuits, the common case for non-wildcard
	// subscriptions.
	if topicName == pattern {
		return true
	}

	// "**" leaves the remainder unconstrained: the pattern prefix before it
	// must equal the topic's leading segments.
	if idx := strings.Index(pattern, multiWildcard); idx >= 0 {
		prefix := strings.TrimSuffix(pattern[:idx], delimiter)
		if prefix == "" {
			return true
		}
		return matchSegments(splitTopic(topicName), splitTopic(prefix), true)
	}

	return matchSegments(splitTopic(topicName), splitTopic(pattern), false)
}

func splitTopic(s string) []string {
	return strings.Split(s, delimiter)
}

// matchSegments matches topic segments against pattern segments. With
// prefixOnly the topic may have trailing segments beyond the pattern;
// otherwise the segment counts must be equal. "*" matches any one segment.
func matchSegments(topic, pattern []string, prefixOnly bool) bool {
	if prefixOnly {
		if len(topic) < len(pattern) {
			return false
		}
	} else if len(topic) != len(pattern) {
		return false
	}

	for i, seg := range pattern {
		if seg == wildcard {
			continue
		}
		if topic[i] != seg {
			return false
		}
	}
	return true
}

// IsExact reports whether the pattern is a literal topic name, free of
// wildcard segments.
func IsExact(pattern string) bool {
	return !strings.Contains(pattern, wildcard)
}

// Authorize decides whether a principal holding the given permission entries
// may exercise the requested capability on the topic. No matching entry means
// deny; the decision fails closed.
//
// Precedence: an entry whose pattern equals the topic name exactly is
// authoritative for that topic, overriding any wildcard entries. Among
// wildcard entries the semantics are additive: any matching entry that grants
// the capability wins, a narrower entry cannot veto a broader grant.
func Authorize(topicName string, entries []model.PermissionEntry, access model.AccessType) bool {
	haveExact := false
	grantedByExact := false
	grantedByWildcard := false

	for _, entry := range entries {
		if !Matches(topicName, entry.Pattern) {
			continue
		}

		if entry.Pattern == topicName {
			// Exact entries are authoritative regardless of any wildcards.
			haveExact = true
			grantedByExact = grantedByExact || entry.Allows(access)
			continue
		}

		if entry.Allows(access) {
			grantedByWildcard = true
		}
	}

	if haveExact {
		return grantedByExact
	}
	return grantedByWildcard
}
