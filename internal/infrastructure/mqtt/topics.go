package mqtt

import "strings"

// TopicPrefix is the root of every topic climated itself publishes on.
const TopicPrefix = "climated"

// Topics provides builders for the topics climated publishes.
type Topics struct{}

// Status returns the retained status topic of one climated instance.
//
// Example: climated/status/climated-01
func (Topics) Status(clientID string) string {
	return TopicPrefix + "/status/" + clientID
}

// AllStatus returns a filter matching every instance's status topic.
func (Topics) AllStatus() string {
	return TopicPrefix + "/status/+"
}

// MatchFilter reports whether topic matches an MQTT subscription filter,
// honouring the + and # wildcards. Topics starting with $ never match a
// filter starting with a wildcard.
func MatchFilter(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if strings.HasPrefix(topic, "$") && (filter[0] == '+' || filter[0] == '#') {
		return false
	}

	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, level := range fl {
		if level == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if level != "+" && level != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
