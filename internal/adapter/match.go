package adapter

import "strings"

// MatchTopic reports whether an MQTT topic matches a subscription
// pattern. The "+" wildcard matches exactly one level, "#" matches
// the remainder of the topic and must be the final segment. An exact
// pattern matches only itself.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patternParts := strings.Split(pattern, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range patternParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part == "+" {
			continue
		}
		if part != topicParts[i] {
			return false
		}
	}

	return len(patternParts) == len(topicParts)
}
