package natsio

import (
	"fmt"
	"strings"
)

// SubjectFromFilter converts an MQTT topic filter to a NATS subject:
// levels separated by "/" become tokens separated by ".", "+" becomes "*"
// and a trailing "#" becomes ">".
//
// Levels that are empty or already contain "." cannot be represented.
func SubjectFromFilter(filter string) (string, error) {
	if filter == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidFilter)
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "":
			return "", fmt.Errorf("%w: %q has an empty level", ErrInvalidFilter, filter)
		case strings.ContainsAny(level, ". \t"):
			return "", fmt.Errorf("%w: level %q of %q is not a valid subject token", ErrInvalidFilter, level, filter)
		case level == "+":
			levels[i] = "*"
		case level == "#":
			if i != len(levels)-1 {
				return "", fmt.Errorf("%w: # must be the last level of %q", ErrInvalidFilter, filter)
			}
			levels[i] = ">"
		case strings.ContainsAny(level, "+#*>"):
			return "", fmt.Errorf("%w: level %q of %q mixes wildcards with text", ErrInvalidFilter, level, filter)
		}
	}
	return strings.Join(levels, "."), nil
}

// TopicFromSubject converts a concrete NATS subject to the equivalent MQTT
// topic.
func TopicFromSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

// SubjectFromTopic converts a concrete MQTT topic to a NATS subject.
func SubjectFromTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}
