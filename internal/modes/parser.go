// Package modes parses pipeline descriptions (".mode" files) into ordered
// command argument vectors.
//
// A mode file is either a "|"-separated chain of stage command lines, which
// is run as a long-lived streaming backbone, or a line carrying a one-shot
// marker, in which case the whole mode is delegated to the umbrella
// `apertium` command for each request.
package modes

import (
	"os"
	"path/filepath"
	"strings"
)

// UmbrellaCommand runs a complete mode by name from an installed directory.
const UmbrellaCommand = "apertium"

// RawFlag makes a stage pass NUL bytes through untouched and skip its own
// (de)tokenization of the stream.
const RawFlag = "-z"

// DefaultOneShotMarkers are substrings that force a mode onto the one-shot
// umbrella command.
var DefaultOneShotMarkers = []string{"ca-oc@aran"}

// DefaultNoRawFlagCommands never receive RawFlag.
var DefaultNoRawFlagCommands = []string{
	"apertium-deshtml",
	"apertium-destxt",
	"apertium-desrtf",
	"apertium-rehtml",
	"apertium-rehtml-noent",
	"apertium-retxt",
	"apertium-rertf",
}

// Parsed is one parsed mode file.
type Parsed struct {
	// Streaming is false for umbrella (one-shot) modes.
	Streaming bool
	// Stages holds one argv per process in the chain.
	Stages [][]string
	// Dir is the installation directory the mode belongs to (the parent of
	// the modes/ directory). Stages run with it as working directory.
	Dir string
}

// Parser holds the tunables used when parsing.
type Parser struct {
	OneShotMarkers    []string
	NoRawFlagCommands []string
}

// DefaultParser uses the package defaults.
func DefaultParser() Parser {
	return Parser{OneShotMarkers: DefaultOneShotMarkers, NoRawFlagCommands: DefaultNoRawFlagCommands}
}

// ParseFile reads and parses the mode file at path.
func (p Parser) ParseFile(path string) (Parsed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Parsed{}, &parseError{path: path, reason: "unreadable", cause: err}
	}
	return p.Parse(path, string(b))
}

// Parse parses content as if read from path. The path locates the
// installation directory and names the mode.
func (p Parser) Parse(path, content string) (Parsed, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Parsed{}, &parseError{path: path, reason: "empty mode file"}
	}
	dir := filepath.Dir(filepath.Dir(path))

	for _, marker := range p.OneShotMarkers {
		if marker != "" && strings.Contains(content, marker) {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			return Parsed{
				Streaming: false,
				Stages:    [][]string{{UmbrellaCommand, "-f", "html-noent", "-d", dir, name}},
				Dir:       dir,
			}, nil
		}
	}

	var stages [][]string
	for i, raw := range strings.Split(content, "|") {
		raw = strings.ReplaceAll(raw, "$2", "")
		raw = strings.ReplaceAll(raw, "$1", "-g")
		args := tokenize(raw)
		if len(args) == 0 {
			return Parsed{}, &parseError{path: path, reason: "empty stage", stage: i + 1}
		}
		if !p.skipsRawFlag(args[0]) {
			args = append([]string{args[0], RawFlag}, args[1:]...)
		}
		stages = append(stages, args)
	}
	return Parsed{Streaming: true, Stages: stages, Dir: dir}, nil
}

func (p Parser) skipsRawFlag(cmd string) bool {
	base := filepath.Base(cmd)
	for _, c := range p.NoRawFlagCommands {
		if base == c {
			return true
		}
	}
	return false
}

func tokenize(stage string) []string {
	fields := strings.Fields(stage)
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, `'"`); f != "" {
			out = append(out, f)
		}
	}
	return out
}
