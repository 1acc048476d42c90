package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength bounds the title of a travel application
const MaxTitleLength = 200

var (
	actorIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@:\-]{1,64}$`)
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateActorID validates a caller or applicant identifier
func ValidateActorID(id string) error {
	if !actorIDPattern.MatchString(id) {
		return fmt.Errorf("invalid actor id: %q", id)
	}
	return nil
}

// ValidateTitle validates an application title after sanitizing it
func ValidateTitle(title string) error {
	title = strings.TrimSpace(SanitizeString(title))
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	}
	return nil
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
