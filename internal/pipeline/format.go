package pipeline

import "github.com/rs/zerolog"

var (
	deformatters = []string{"apertium-deshtml", "apertium-destxt", "apertium-desrtf"}
	reformatters = []string{"apertium-rehtml-noent", "apertium-rehtml", "apertium-retxt", "apertium-rertf"}
)

// ResolveFormatters validates requested filter commands. Empty, "none" and
// "false" disable a filter; names outside the allow-list fall back to the
// default filter, so arbitrary commands are never spawned.
func ResolveFormatters(deformat, reformat string) (string, string) {
	return pick(deformat, deformatters), pick(reformat, reformatters)
}

// FormattersFor maps a document format ("html", "txt", "rtf", "none") to its
// filter pair. An empty format selects the HTML defaults.
func FormattersFor(format string) (deformat, reformat string) {
	switch format {
	case "":
		return deformatters[0], reformatters[0]
	case "none":
		return "", ""
	}
	return ResolveFormatters("apertium-des"+format, "apertium-re"+format)
}

func pick(name string, allowed []string) string {
	switch name {
	case "", "none", "false":
		return ""
	}
	for _, a := range allowed {
		if a == name {
			return a
		}
	}
	return allowed[0]
}

// runFilter runs a one-shot formatter over in.
func runFilter(name string, in []byte, log zerolog.Logger) ([]byte, error) {
	return runOnce([][]string{{name}}, "", in, log)
}
