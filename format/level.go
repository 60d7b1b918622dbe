package format

import "strings"

// Canonical level names ordered by syslog priority, highest severity first.
const (
	LevelEmergency = "EMERGENCY"
	LevelAlert     = "ALERT"
	LevelCritical  = "CRITICAL"
	LevelError     = "ERROR"
	LevelWarning   = "WARNING"
	LevelNotice    = "NOTICE"
	LevelInfo      = "INFO"
	LevelDebug     = "DEBUG"
	LevelTrace     = "TRACE"
)

// readAliases maps every recognized spelling (upper-cased) to the canonical
// level name. The single- and double-letter forms are the writer's compressed
// aliases; the longer forms appear in hand-written or foreign files.
var readAliases = map[string]string{
	"EM": LevelEmergency, "EMERG": LevelEmergency, "EMERGENCY": LevelEmergency,
	"A": LevelAlert, "ALERT": LevelAlert,
	"C": LevelCritical, "CRIT": LevelCritical, "CRITICAL": LevelCritical,
	"E": LevelError, "ERR": LevelError, "ERROR": LevelError,
	"W": LevelWarning, "WARN": LevelWarning, "WARNING": LevelWarning,
	"N": LevelNotice, "NOTE": LevelNotice, "NOTICE": LevelNotice,
	"I": LevelInfo, "INFO": LevelInfo,
	"D": LevelDebug, "DEBUG": LevelDebug,
	"T": LevelTrace, "TRACE": LevelTrace,
}

// writeAliases maps canonical names to the compressed forms the writer emits.
var writeAliases = map[string]string{
	LevelEmergency: "EM",
	LevelAlert:     "A",
	LevelCritical:  "C",
	LevelError:     "E",
	LevelWarning:   "W",
	LevelNotice:    "N",
	LevelInfo:      "I",
	LevelDebug:     "D",
	LevelTrace:     "T",
}

// basePriority maps canonical names to syslog priorities (EMERGENCY=0 ...
// TRACE=8).
var basePriority = map[string]float64{
	LevelEmergency: 0,
	LevelAlert:     1,
	LevelCritical:  2,
	LevelError:     3,
	LevelWarning:   4,
	LevelNotice:    5,
	LevelInfo:      6,
	LevelDebug:     7,
	LevelTrace:     8,
}

// splitLevelSuffix splits a trailing decimal suffix off a level name.
// "DEBUG3" yields ("DEBUG", 3, true); names without a suffix yield n=0.
func splitLevelSuffix(s string) (base string, n int, ok bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) || i == 0 {
		return s, 0, false
	}
	for _, c := range s[i:] {
		n = n*10 + int(c-'0')
	}

	return s[:i], n, true
}

// CanonicalLevel normalizes a level string the way the reader does: any
// recognized spelling, case-insensitive, becomes the canonical full name.
// DEBUGn/TRACEn variants keep their decimal suffix on the canonical base.
// Unknown names pass through unchanged.
func CanonicalLevel(s string) string {
	upper := strings.ToUpper(s)
	if full, ok := readAliases[upper]; ok {
		return full
	}

	base, n, ok := splitLevelSuffix(upper)
	if ok && n > 0 {
		if full, aliased := readAliases[base]; aliased && (full == LevelDebug || full == LevelTrace) {
			return full + upper[len(base):]
		}
	}

	return s
}

// WriterLevel compresses a level string to the short on-disk alias.
// It first canonicalizes, so any recognized spelling compresses; unknown
// names pass through unchanged. Suffixed DEBUGn/TRACEn keep the suffix on
// the short alias ("D3", "T2").
func WriterLevel(s string) string {
	canonical := CanonicalLevel(s)
	if short, ok := writeAliases[canonical]; ok {
		return short
	}

	base, n, ok := splitLevelSuffix(canonical)
	if ok && n > 0 {
		if short, aliased := writeAliases[base]; aliased && (base == LevelDebug || base == LevelTrace) {
			return short + canonical[len(base):]
		}
	}

	return s
}

// LevelPriority returns the syslog ordering position for a level string.
// DEBUGn/TRACEn variants sit fractionally above their base: base + n/(n+1),
// strictly increasing in n and always below the next integer position.
// Unknown levels report ok=false.
func LevelPriority(s string) (float64, bool) {
	canonical := CanonicalLevel(s)
	if p, ok := basePriority[canonical]; ok {
		return p, true
	}

	base, n, ok := splitLevelSuffix(canonical)
	if ok && n > 0 {
		if p, known := basePriority[base]; known && (base == LevelDebug || base == LevelTrace) {
			return p + float64(n)/float64(n+1), true
		}
	}

	return 0, false
}
