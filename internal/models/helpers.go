package models

import (
	"regexp"
	"strconv"
	"strings"
)

var audioRefPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+\.mp3$`)

// IsSafeAudioRef reports whether ref is a bare MP3 file name with no path components.
func IsSafeAudioRef(ref string) bool {
	return audioRefPattern.MatchString(ref)
}

// SafeName maps every character outside [A-Za-z0-9_-] to '_'.
// Empty input becomes "_".
func SafeName(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// AudioFileName returns the artifact name for the record at position (1-based)
// within a job. The job id keeps uploads apart and the position keeps records
// apart whose ids only differ in characters SafeName replaces.
func AudioFileName(jobID string, position int, recordID string) string {
	return SafeName(jobID) + "_" + strconv.Itoa(position) + "_" + SafeName(recordID) + ".mp3"
}
