package types

// Pair is one installed translation direction.
type Pair struct {
	// Source language code, optionally with variants.
	// example: eng
	SourceLanguage string `json:"sourceLanguage" example:"eng"`
	// Target language code, optionally with variants.
	// example: spa
	TargetLanguage string `json:"targetLanguage" example:"spa"`
}

// LexicalUnit pairs an engine result with the surface form it came from.
// It is encoded as a two-element JSON array: [result, surface].
type LexicalUnit [2]string
