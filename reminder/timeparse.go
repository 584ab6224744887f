package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

// Schedule is the outcome of parsing the part of a remind command after the
// target. DueAt nil means no time was requested (message-triggered reminder).
type Schedule struct {
	DueAt   *time.Time
	Message string
}

// timeKeywords introduce a time expression. A keyword makes the time mandatory:
// if nothing after it parses, the whole command fails rather than silently
// becoming a message-triggered reminder.
var timeKeywords = map[string]bool{"in": true, "on": true, "after": true}

// ParseSchedule extracts an optional time expression and the reminder message
// from the command arguments.
//
// Longest token prefixes are tried first, as either a compound duration
// ("5m", "1d 30m", "2 hours") or a natural-language date ("tomorrow 3pm",
// resolved against now in UTC with future preference). The first prefix that
// parses and leaves a non-empty message wins.
//
// Without a leading keyword the prefixes are only tried when the first token
// contains a digit or is an explicit date word ("tomorrow", a weekday); any
// other input is all message and the reminder fires on the target's next chat
// message. Dateparser would otherwise happily read a month name or a stray
// number out of an ordinary sentence.
func ParseSchedule(now time.Time, args []string) (Schedule, error) {
	if len(args) == 0 {
		return Schedule{}, ErrNoMessage
	}

	hasKeyword := timeKeywords[strings.ToLower(args[0])]
	expr := args
	if hasKeyword {
		expr = args[1:]
		if len(expr) == 0 {
			return Schedule{}, ErrTimeParse
		}
	} else if !startsTimeExpression(expr[0]) {
		return Schedule{Message: strings.Join(args, " ")}, nil
	}

	for n := len(expr); n >= 1; n-- {
		message := strings.TrimSpace(strings.Join(expr[n:], " "))
		if message == "" {
			continue
		}
		if due, ok := parseTimePrefix(now, expr[:n]); ok {
			return Schedule{DueAt: &due, Message: message}, nil
		}
	}

	if hasKeyword {
		return Schedule{}, ErrTimeParse
	}
	return Schedule{Message: strings.Join(args, " ")}, nil
}

// dateWords are leading tokens that start a time expression on their own.
var dateWords = map[string]bool{
	"today": true, "tonight": true, "tomorrow": true, "next": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

func startsTimeExpression(tok string) bool {
	tok = strings.ToLower(tok)
	if dateWords[tok] {
		return true
	}
	return strings.ContainsFunc(tok, func(r rune) bool { return r >= '0' && r <= '9' })
}

// parseTimePrefix tries a token prefix as a duration first, then as a natural
// date. Resolved times in the past are rejected.
func parseTimePrefix(now time.Time, tokens []string) (time.Time, bool) {
	if d, ok := parseDurationTokens(tokens); ok {
		return now.Add(d).UTC(), true
	}
	s := strings.Join(tokens, " ")
	// Bare numbers are not dates, and dateparser needs something word-like.
	if !strings.ContainsFunc(s, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '/' || r == '-'
	}) {
		return time.Time{}, false
	}
	cfg := &dateparser.Configuration{
		CurrentTime:         now,
		DefaultTimezone:     time.UTC,
		PreferredDateSource: dateparser.Future,
	}
	dt, err := dateparser.Parse(cfg, s)
	if err != nil || dt.Time.IsZero() {
		return time.Time{}, false
	}
	due := dt.Time.UTC()
	if !due.After(now) {
		return time.Time{}, false
	}
	return due, true
}

var valueUnitRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)([a-z]+)?$`)

// parseDurationTokens parses a strict compound duration: every token must be a
// value+unit pair, either fused ("5m") or split ("5 m" / "2 hours"). Filler
// tokens "and"/"," are ignored. Months and years are approximated as 30 and
// 365 days.
func parseDurationTokens(tokens []string) (time.Duration, bool) {
	var total time.Duration
	matched := false
	for i := 0; i < len(tokens); i++ {
		tok := strings.ToLower(strings.Trim(tokens[i], ","))
		if tok == "" || tok == "and" {
			continue
		}
		m := valueUnitRe.FindStringSubmatch(tok)
		if m == nil {
			return 0, false
		}
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		unit := m[2]
		if unit == "" {
			// Split form: the unit is the next token.
			i++
			if i >= len(tokens) {
				return 0, false
			}
			unit = strings.ToLower(strings.Trim(tokens[i], ","))
		}
		d, ok := unitDuration(unit)
		if !ok {
			return 0, false
		}
		total += time.Duration(value * float64(d))
		matched = true
	}
	return total, matched && total > 0
}

func unitDuration(unit string) (time.Duration, bool) {
	switch unit {
	case "s", "sec", "secs", "second", "seconds":
		return time.Second, true
	case "m", "min", "mins", "minute", "minutes":
		return time.Minute, true
	case "h", "hr", "hrs", "hour", "hours":
		return time.Hour, true
	case "d", "day", "days":
		return 24 * time.Hour, true
	case "w", "week", "weeks":
		return 7 * 24 * time.Hour, true
	case "mo", "month", "months":
		return 30 * 24 * time.Hour, true
	case "y", "yr", "yrs", "year", "years":
		return 365 * 24 * time.Hour, true
	}
	return 0, false
}
