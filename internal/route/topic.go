package route

import (
	"fmt"
	"strings"
)

const (
	levelSeparator  = "/"
	singleLevelWild = "+"
	multiLevelWild  = "#"
)

// ValidatePattern checks MQTT topic filter syntax: '+' and '#' must occupy a
// whole level and '#' may only appear as the last level.
func ValidatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("%w: topic pattern cannot be empty", ErrInvalidRoute)
	}
	if strings.ContainsRune(pattern, 0) {
		return fmt.Errorf("%w: topic pattern contains NUL", ErrInvalidRoute)
	}

	levels := strings.Split(pattern, levelSeparator)
	for i, level := range levels {
		switch {
		case level == multiLevelWild:
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidRoute, pattern)
			}
		case level == singleLevelWild:
		case strings.ContainsAny(level, singleLevelWild+multiLevelWild):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidRoute, pattern)
		}
	}
	return nil
}

// Matches reports whether topic is matched by the MQTT filter pattern.
// '+' matches exactly one level, '#' matches the remaining levels including
// none. Topics starting with '$' are not matched by a leading wildcard.
func Matches(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(pattern, singleLevelWild) || strings.HasPrefix(pattern, multiLevelWild)) {
		return false
	}

	for {
		pLevel, pRest, pMore := strings.Cut(pattern, levelSeparator)
		if pLevel == multiLevelWild {
			return true
		}

		tLevel, tRest, tMore := strings.Cut(topic, levelSeparator)
		if pLevel != singleLevelWild && pLevel != tLevel {
			return false
		}

		switch {
		case !pMore && !tMore:
			return true
		case pMore && !tMore:
			// "a/#" also matches the parent level "a".
			return pRest == multiLevelWild
		case !pMore && tMore:
			return false
		}

		pattern, topic = pRest, tRest
	}
}
