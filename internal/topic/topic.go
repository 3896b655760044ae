// Package topic compiles placeholder patterns such as
// "home/{homeId}/sensors/{deviceId}/reading" into decoders that extract and
// validate the named identifiers from transport topics.
//
// A Decoder is immutable after Compile and safe for concurrent use.
package topic

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxIDLength is the longest accepted placeholder value, in characters.
	MaxIDLength = 50

	// Separator is the topic level separator.
	Separator = "/"
)

var (
	placeholderRegex = regexp.MustCompile(`\{([^{}]*)\}`)
	nameRegex        = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	idRegex          = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Decoder matches topics against a compiled pattern.
type Decoder struct {
	pattern string
	names   []string
	re      *regexp.Regexp
}

// Compile turns a placeholder pattern into a Decoder.
//
// Literal text is matched exactly. Each {name} matches any run of characters
// other than the separator. The whole topic must match.
func Compile(pattern string) (*Decoder, error) {
	if pattern == "" {
		return nil, &PatternError{Pattern: pattern, Reason: "pattern is empty"}
	}
	if strings.ContainsAny(pattern, "+#") {
		return nil, &PatternError{Pattern: pattern, Reason: "transport wildcards are not allowed, use {name} placeholders"}
	}

	matches := placeholderRegex.FindAllStringSubmatchIndex(pattern, -1)
	if len(matches) == 0 {
		return nil, &PatternError{Pattern: pattern, Reason: "no {name} placeholder"}
	}

	var (
		expr  strings.Builder
		names = make([]string, 0, len(matches))
		seen  = make(map[string]bool, len(matches))
		last  int
	)
	expr.WriteString("^")
	for _, m := range matches {
		literal := pattern[last:m[0]]
		if strings.ContainsAny(literal, "{}") {
			return nil, &PatternError{Pattern: pattern, Reason: "unbalanced brace"}
		}
		name := pattern[m[2]:m[3]]
		if !nameRegex.MatchString(name) {
			return nil, &PatternError{Pattern: pattern, Reason: fmt.Sprintf("invalid placeholder name %q", name)}
		}
		if seen[name] {
			return nil, &PatternError{Pattern: pattern, Reason: fmt.Sprintf("placeholder %q appears twice", name)}
		}
		// Two captures in one level cannot be split back apart unambiguously.
		if len(names) > 0 && !strings.Contains(literal, Separator) {
			return nil, &PatternError{
				Pattern: pattern,
				Reason:  fmt.Sprintf("placeholders %q and %q share a topic level", names[len(names)-1], name),
			}
		}
		seen[name] = true
		names = append(names, name)

		expr.WriteString(regexp.QuoteMeta(literal))
		expr.WriteString("([^/]*)")
		last = m[1]
	}
	tail := pattern[last:]
	if strings.ContainsAny(tail, "{}") {
		return nil, &PatternError{Pattern: pattern, Reason: "unbalanced brace"}
	}
	expr.WriteString(regexp.QuoteMeta(tail))
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Reason: err.Error()}
	}
	return &Decoder{pattern: pattern, names: names, re: re}, nil
}

// MustCompile is like Compile but panics on error. For tests and constants.
func MustCompile(pattern string) *Decoder {
	d, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return d
}

// Pattern returns the source pattern.
func (d *Decoder) Pattern() string { return d.pattern }

// Placeholders returns the placeholder names in pattern order.
func (d *Decoder) Placeholders() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Has reports whether the pattern declares the named placeholder.
func (d *Decoder) Has(name string) bool {
	for _, n := range d.names {
		if n == name {
			return true
		}
	}
	return false
}

// Parse extracts the placeholder values from topic.
//
// Values are checked in placeholder order; the first failing value decides
// the error. Each value must be non-blank, at most MaxIDLength characters and
// made only of [A-Za-z0-9_-].
func (d *Decoder) Parse(topic string) (map[string]string, error) {
	if topic == "" {
		return nil, &TopicFormatError{Kind: KindMismatch, Topic: topic, Pattern: d.pattern}
	}
	groups := d.re.FindStringSubmatch(topic)
	if groups == nil {
		return nil, &TopicFormatError{Kind: KindMismatch, Topic: topic, Pattern: d.pattern}
	}

	values := make(map[string]string, len(d.names))
	for i, name := range d.names {
		value := groups[i+1]
		if kind := checkID(value); kind != "" {
			return nil, &TopicFormatError{
				Kind:        kind,
				Topic:       topic,
				Pattern:     d.pattern,
				Placeholder: name,
				Value:       value,
			}
		}
		values[name] = value
	}
	return values, nil
}

func checkID(value string) Kind {
	switch {
	case strings.TrimSpace(value) == "":
		return KindEmptyID
	case utf8.RuneCountInString(value) > MaxIDLength:
		return KindIDTooLong
	case !idRegex.MatchString(value):
		return KindInvalidIDChars
	}
	return ""
}

// SubscriptionFilter returns the transport filter covering every topic the
// pattern can match: each level holding a placeholder becomes "+".
//
// Example: home/{homeId}/sensors/{deviceId}/reading -> home/+/sensors/+/reading
func (d *Decoder) SubscriptionFilter() string {
	levels := strings.Split(d.pattern, Separator)
	for i, level := range levels {
		if placeholderRegex.MatchString(level) {
			levels[i] = "+"
		}
	}
	return strings.Join(levels, Separator)
}

// Render substitutes values into the pattern. Every placeholder needs a value;
// values are not validated.
func (d *Decoder) Render(values map[string]string) (string, error) {
	var missing []string
	out := placeholderRegex.ReplaceAllStringFunc(d.pattern, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("rendering %q: missing values for %s", d.pattern, strings.Join(missing, ", "))
	}
	return out, nil
}
