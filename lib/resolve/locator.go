package resolve

import (
	"errors"
	"regexp"
)

// ErrMissingVersion is returned when the import locator carries no version tag.
var ErrMissingVersion = errors.New("please specify a version when importing deno_swc")

var versionTag = regexp.MustCompile(`(?i)v\d+\.\d+\.\d+`)

// ParseVersionTag returns the first vMAJOR.MINOR.PATCH tag in locator.
func ParseVersionTag(locator string) (string, error) {
	tag := versionTag.FindString(locator)
	if tag == "" {
		return "", ErrMissingVersion
	}
	return tag, nil
}
