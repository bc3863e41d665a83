package pipeline

import (
	"strings"
	"unicode/utf8"
)

const (
	// PipeBufferSize is the default pipe capacity on Linux. Writing more
	// than this before the backbone drains it can block both ends.
	PipeBufferSize = 65536
	// busyChunkSize is used once a pipeline has more than busyUsers callers,
	// trading throughput for interleaving between them.
	busyChunkSize = 1000
	busyUsers     = 2
	// maxSplitRounds bounds the splitter on adversarial input.
	maxSplitRounds = 10
)

// ChunkSize returns the target chunk length for a pipeline with the given
// number of active callers.
func ChunkSize(activeUsers int) int {
	if activeUsers > busyUsers {
		return busyChunkSize
	}
	return PipeBufferSize
}

// Split cuts text into chunks no longer than ChunkSize(activeUsers) bytes.
// Chunks never end inside a UTF-8 sequence and prefer to end after the last
// '.' in the second half of the window, then after the last space there.
// Concatenating the chunks yields text. If text is not consumed within
// maxSplitRounds chunks the chunks produced so far are returned with an
// input-too-fragmented error.
//
// The accepted size therefore depends on load: an idle pipeline takes up to
// maxSplitRounds*PipeBufferSize bytes, a busy one only
// maxSplitRounds*busyChunkSize. Text refused while busy may go through once
// the other callers leave.
func Split(text string, activeUsers int) ([]string, error) {
	return splitLimit(text, ChunkSize(activeUsers))
}

func splitLimit(text string, limit int) ([]string, error) {
	if limit < utf8.UTFMax {
		limit = utf8.UTFMax
	}
	var chunks []string
	rest := text
	for round := 0; rest != ""; round++ {
		if round == maxSplitRounds {
			return chunks, inputTooFragmentedError{rounds: round, remaining: len(rest)}
		}
		if len(rest) <= limit {
			chunks = append(chunks, rest)
			break
		}
		end := breakPoint(rest[:runeBoundary(rest, limit)])
		chunks = append(chunks, rest[:end])
		rest = rest[end:]
	}
	return chunks, nil
}

// runeBoundary moves cut back to the start of the rune it falls in. Invalid
// input that offers no boundary within utf8.UTFMax bytes is cut at the limit.
func runeBoundary(s string, cut int) int {
	for i := cut; i > cut-utf8.UTFMax && i > 0; i-- {
		if utf8.RuneStart(s[i]) {
			return i
		}
	}
	return cut
}

// breakPoint picks where to end a window: after the last period in its
// second half, else after the last space there, else at its end.
func breakPoint(window string) int {
	half := len(window) / 2
	tail := window[half:]
	if i := strings.LastIndexByte(tail, '.'); i >= 0 {
		return half + i + 1
	}
	if i := strings.LastIndexByte(tail, ' '); i >= 0 {
		return half + i + 1
	}
	return len(window)
}
