// Package propkey parses canonical prop identifiers such as
// "mike_trout_home_runs_1_plus" into (player, stat type, threshold).
//
// A key is split on '_'. The leading tokens up to the first stat-indicator
// word name the player; the remainder is handed to a fixed, ordered list of
// variant recognizers. The first recognizer whose shape applies decides the
// result; there is no fallback to later recognizers once one applies.
package propkey

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"pickem-lab/internal/domain"
)

// ErrMalformed is returned when a key cannot be decomposed.
var ErrMalformed = errors.New("malformed prop key")

// ParseError describes why a key was rejected. It unwraps to ErrMalformed.
type ParseError struct {
	Key    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrMalformed.Error(), e.Key, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformed
}

// statIndicators are the words that end the player-name segment.
var statIndicators = map[string]struct{}{
	"hits": {}, "home": {}, "runs": {}, "rbis": {}, "singles": {}, "doubles": {},
	"stolen": {}, "strikeouts": {}, "first": {}, "period": {}, "total": {},
	"batter": {}, "fantasy": {}, "walks": {}, "outs": {}, "pitch": {},
}

// periodRangeMarker is the token run that tags period 1-3 props.
var periodRangeMarker = []string{"period", "1", "2", "3"}

const plusToken = "plus"

// thresholdPattern accepts canonical non-negative numbers only (no leading
// zeros, no trailing fractional zeros), so distinct keys never share a threshold.
var thresholdPattern = regexp.MustCompile(`^(0|[1-9][0-9]*)(\.[0-9]*[1-9])?$`)

// recognizer matches one PropVariant against the post-player tokens.
type recognizer struct {
	variant domain.PropVariant
	applies func(rest []string) bool
	parse   func(rest []string) (statType string, threshold decimal.Decimal, reason string)
}

// recognizers in priority order.
var recognizers = []recognizer{
	{
		variant: domain.VariantFirstOccurrence,
		applies: func(rest []string) bool { return rest[0] == "first" },
		parse:   parseFirstOccurrence,
	},
	{
		variant: domain.VariantPeriodRange,
		applies: func(rest []string) bool { return indexOfRun(rest, periodRangeMarker) >= 0 },
		parse:   parsePeriodRange,
	},
	{
		variant: domain.VariantRegular,
		applies: func([]string) bool { return true },
		parse:   parseRegular,
	},
}

// Parse decomposes a canonical prop key.
func Parse(key string) (domain.PropKey, error) {
	if key == "" {
		return domain.PropKey{}, &ParseError{Key: key, Reason: "empty key"}
	}

	tokens := strings.Split(key, "_")
	for _, t := range tokens {
		if t == "" {
			return domain.PropKey{}, &ParseError{Key: key, Reason: "empty token"}
		}
	}

	player, rest := splitPlayer(tokens)
	if len(rest) < 2 {
		return domain.PropKey{}, &ParseError{Key: key, Reason: "fewer than 2 tokens after player name"}
	}

	for _, r := range recognizers {
		if !r.applies(rest) {
			continue
		}
		statType, threshold, reason := r.parse(rest)
		if reason != "" {
			return domain.PropKey{}, &ParseError{Key: key, Reason: fmt.Sprintf("%s: %s", strings.ToLower(string(r.variant)), reason)}
		}
		if statType == "" {
			return domain.PropKey{}, &ParseError{Key: key, Reason: "empty stat type"}
		}
		return domain.PropKey{
			Player:                strings.Join(player, "_"),
			Variant:               r.variant,
			StatType:              statType,
			Threshold:             threshold,
			IsFirstOccurrenceProp: r.variant == domain.VariantFirstOccurrence,
		}, nil
	}

	// Unreachable: the regular recognizer always applies.
	return domain.PropKey{}, &ParseError{Key: key, Reason: "no recognizer matched"}
}

// splitPlayer returns the player-name tokens and the remainder. The first
// token always belongs to the player name.
func splitPlayer(tokens []string) ([]string, []string) {
	i := 1
	for ; i < len(tokens); i++ {
		if _, ok := statIndicators[tokens[i]]; ok {
			break
		}
	}
	return tokens[:i], tokens[i:]
}

// parseFirstOccurrence: first_<event...>, threshold 1.
func parseFirstOccurrence(rest []string) (string, decimal.Decimal, string) {
	return strings.Join(rest, "_"), decimal.NewFromInt(1), ""
}

// parsePeriodRange: <stat...>period_1_2_3<stat...>_<n>_plus[_ignored...].
// The threshold is the first numeric token after the marker.
func parsePeriodRange(rest []string) (string, decimal.Decimal, string) {
	start := indexOfRun(rest, periodRangeMarker) + len(periodRangeMarker)
	for i := start; i < len(rest); i++ {
		tok := rest[i]
		if tok == plusToken {
			return "", decimal.Zero, "plus before threshold"
		}
		if !isNumeric(tok) {
			continue
		}
		if i+1 >= len(rest) || rest[i+1] != plusToken {
			return "", decimal.Zero, "threshold not followed by plus"
		}
		th, reason := parseThreshold(tok)
		if reason != "" {
			return "", decimal.Zero, reason
		}
		return strings.Join(rest[:i], "_"), th, ""
	}
	return "", decimal.Zero, "missing threshold"
}

// parseRegular: <stat...>_<n>_plus.
func parseRegular(rest []string) (string, decimal.Decimal, string) {
	n := len(rest)
	if rest[n-1] != plusToken {
		return "", decimal.Zero, "last token is not plus"
	}
	if n < 3 {
		return "", decimal.Zero, "empty stat type"
	}
	th, reason := parseThreshold(rest[n-2])
	if reason != "" {
		return "", decimal.Zero, reason
	}
	return strings.Join(rest[:n-2], "_"), th, ""
}

func parseThreshold(tok string) (decimal.Decimal, string) {
	if !thresholdPattern.MatchString(tok) {
		return decimal.Zero, fmt.Sprintf("invalid threshold %q", tok)
	}
	d, err := decimal.NewFromString(tok)
	if err != nil {
		return decimal.Zero, fmt.Sprintf("invalid threshold %q", tok)
	}
	return d, ""
}

func isNumeric(tok string) bool {
	_, err := decimal.NewFromString(tok)
	return err == nil
}

// indexOfRun returns the index of the first occurrence of run in tokens, or -1.
func indexOfRun(tokens, run []string) int {
outer:
	for i := 0; i+len(run) <= len(tokens); i++ {
		for j := range run {
			if tokens[i+j] != run[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
