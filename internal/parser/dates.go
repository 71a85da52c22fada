package parser

import (
	"fmt"
	"strings"
	"time"
)

// Resolution is the precision kept when a date field is normalised.
type Resolution string

const (
	ResolutionYear        Resolution = "year"
	ResolutionMonth       Resolution = "month"
	ResolutionDay         Resolution = "day"
	ResolutionHour        Resolution = "hour"
	ResolutionMinute      Resolution = "minute"
	ResolutionSecond      Resolution = "second"
	ResolutionMillisecond Resolution = "millisecond"
)

// DefaultResolution is used when a date field has no date-resolution attribute.
const DefaultResolution = ResolutionDay

// normalised form is yyyyMMddHHmmssSSS cut to the resolution
var resolutionWidth = map[Resolution]int{
	ResolutionYear:        4,
	ResolutionMonth:       6,
	ResolutionDay:         8,
	ResolutionHour:        10,
	ResolutionMinute:      12,
	ResolutionSecond:      14,
	ResolutionMillisecond: 17,
}

// ParseResolution validates a date-resolution attribute value.
func ParseResolution(s string) (Resolution, bool) {
	r := Resolution(strings.ToLower(strings.TrimSpace(s)))
	_, ok := resolutionWidth[r]
	return r, ok
}

// FormatDate renders t as a sortable yyyyMMddHHmmssSSS string cut at r.
func FormatDate(t time.Time, r Resolution) string {
	width, ok := resolutionWidth[r]
	if !ok {
		width = resolutionWidth[DefaultResolution]
	}
	t = t.UTC()
	full := t.Format("20060102150405") + fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
	return full[:width]
}

// javaTokens maps date pattern letters, longest first, to Go layout elements.
var javaTokens = []struct {
	pattern string
	layout  string
}{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"dd", "02"},
	{"d", "2"},
	{"EEEE", "Monday"},
	{"EEE", "Mon"},
	{"HH", "15"},
	{"H", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"m", "4"},
	{"ss", "05"},
	{"s", "5"},
	{"SSS", "000"},
	{"a", "PM"},
	{"Z", "-0700"},
	{"XXX", "Z07:00"},
	{"X", "Z07"},
	{"z", "MST"},
}

// JavaLayout converts a date pattern such as "yyyy-MM-dd'T'HH:mm:ss" to a
// Go time layout. Quoted text is copied literally; '' is a single quote.
func JavaLayout(pattern string) (string, error) {
	if strings.TrimSpace(pattern) == "" {
		return "", fmt.Errorf("empty date format")
	}

	var b strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case c == '\'':
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				return "", fmt.Errorf("unterminated quote in date format %q", pattern)
			}
			if end == 0 {
				b.WriteByte('\'')
			} else {
				b.WriteString(pattern[i+1 : i+1+end])
			}
			i += end + 2

		case isLetter(c):
			tok := ""
			for _, jt := range javaTokens {
				if strings.HasPrefix(pattern[i:], jt.pattern) {
					tok = jt.pattern
					// fractional seconds only parse after a separator in Go
					if jt.pattern == "SSS" && (i == 0 || (pattern[i-1] != '.' && pattern[i-1] != ',')) {
						return "", fmt.Errorf("milliseconds must follow '.' or ',' in date format %q", pattern)
					}
					b.WriteString(jt.layout)
					break
				}
			}
			if tok == "" {
				return "", fmt.Errorf("unsupported letter %q in date format %q", c, pattern)
			}
			i += len(tok)

		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
