package httpapi

import (
	"regexp"
	"strings"

	"apyd/pkg/types"
)

// Stream-format lexical units: "^surface/analysis1/analysis2$" followed by
// the blank up to the next unit.
var (
	unitWithBlankRE = regexp.MustCompile(`\^([^$]*)\$([^^]*)`)
	generateUnitRE  = regexp.MustCompile(`\^[^$]*\$[^^]*`)
)

// generatorSeparator is a superblank, so the engine passes it through
// untouched and each unit's generation can be recovered.
const generatorSeparator = "[SEP]"

// analysisUnits turns analyzer or tagger output into [analysis, surface]
// pairs. The sentence-final "." the engine appends is dropped unless the
// input ended with one.
func analysisUnits(input, output string) []types.LexicalUnit {
	matches := unitWithBlankRE.FindAllStringSubmatch(output, -1)
	if n := len(matches); n > 0 && !strings.HasSuffix(strings.TrimSpace(input), ".") {
		if surface, _, _ := strings.Cut(matches[n-1][1], "/"); surface == "." {
			matches = matches[:n-1]
		}
	}
	out := make([]types.LexicalUnit, 0, len(matches))
	for _, m := range matches {
		surface, _, _ := strings.Cut(m[1], "/")
		out = append(out, types.LexicalUnit{m[1], surface + m[2]})
	}
	return out
}

// generatorInput splits text into lexical units for the generator. Text
// with no units is wrapped as a single one.
func generatorInput(text string) ([]string, string) {
	units := generateUnitRE.FindAllString(text, -1)
	if len(units) == 0 {
		units = []string{"^" + text + "$"}
	}
	return units, strings.Join(units, generatorSeparator)
}

// generatedUnits pairs each generation with the unit it came from.
func generatedUnits(units []string, output string) []types.LexicalUnit {
	parts := strings.Split(output, generatorSeparator)
	out := make([]types.LexicalUnit, 0, len(parts))
	for i, g := range parts {
		if i >= len(units) {
			break
		}
		out = append(out, types.LexicalUnit{g, units[i]})
	}
	return out
}
