package location

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxNameLength = 100
	maxIDLength   = 50
	idPattern     = `^[a-z0-9]+(?:[-_][a-z0-9]+)*$`
)

var (
	idRegex      = regexp.MustCompile(idPattern)
	nonSlugRegex = regexp.MustCompile(`[^a-z0-9]+`)
)

// ValidateName checks if a room name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateID checks a room ID: lowercase alphanumeric words joined by a
// single hyphen or underscore.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidID, maxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q must be lowercase alphanumeric with hyphens", ErrInvalidID, id)
	}
	return nil
}

// ValidateRoom validates a Room before persistence.
func ValidateRoom(r *Room) error {
	if err := ValidateID(r.ID); err != nil {
		return err
	}
	return ValidateName(r.Name)
}

// Slugify derives a room ID from a display name: accents are stripped, the
// result lowercased and every run of other characters becomes one hyphen.
//
// Example: "Salle de Bain (étage)" -> "salle-de-bain-etage"
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	slug := nonSlugRegex.ReplaceAllString(strings.ToLower(folded), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxIDLength {
		slug = strings.TrimRight(slug[:maxIDLength], "-")
	}
	return slug
}
