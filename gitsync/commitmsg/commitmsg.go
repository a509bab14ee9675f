package commitmsg

import (
	"log/slog"
	"strconv"
	"strings"
)

const (
	begin = "--- codepublish run begin ---"
	end   = "--- codepublish run end ---"

	keyRun    = "run"
	keyDigest = "digest"
	keyFiles  = "files"
)

// Trailer identifies the run that produced a commit.
type Trailer struct {
	RunID  string
	Digest string
	Files  int
}

// Generate appends the trailer section to subject.
func Generate(subject string, t Trailer) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimRight(subject, "\n"))
	sb.WriteString("\n\n")
	sb.WriteString(begin)
	sb.WriteByte('\n')

	for _, kv := range [][2]string{
		{keyRun, t.RunID},
		{keyDigest, t.Digest},
		{keyFiles, strconv.Itoa(t.Files)},
	} {
		sb.WriteString(kv[0])
		sb.WriteString(": ")
		sb.WriteString(kv[1])
		sb.WriteByte('\n')
	}

	sb.WriteString(end)
	sb.WriteByte('\n')

	return sb.String()
}

// Extract returns the trailer of msg. ok is false when msg
// carries no complete trailer.
func Extract(msg string) (Trailer, bool) {
	var (
		t              Trailer
		found          bool
		betweenMarkers bool
	)

	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimRight(line, "\r")

		switch line {
		case begin:
			betweenMarkers = true
			found = true
		case end:
			betweenMarkers = false
		default:
			if !betweenMarkers {
				continue
			}

			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}

			value = strings.TrimSpace(value)

			switch strings.TrimSpace(key) {
			case keyRun:
				t.RunID = value
			case keyDigest:
				t.Digest = value
			case keyFiles:
				t.Files, _ = strconv.Atoi(value)
			}
		}
	}

	if betweenMarkers {
		slog.Warn("unable to find end marker in commit message")

		return Trailer{}, false
	}

	return t, found
}
