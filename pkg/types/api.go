package types

// TranslateRequest is the JSON form of /translate. The same fields are
// accepted as query or form parameters.
type TranslateRequest struct {
	// Language pair, "src|trg" or "src-trg".
	// example: eng|spa
	LangPair string `json:"langpair" example:"eng|spa"`
	// Text to translate.
	// example: Hello world
	Q string `json:"q" example:"Hello world"`
	// Document format: html (default), txt, rtf or none.
	// example: txt
	Format string `json:"format,omitempty" example:"txt"`
	// Explicit deformatter command; overrides format.
	// example: apertium-destxt
	Deformat string `json:"deformat,omitempty" example:"apertium-destxt"`
	// Explicit reformatter command; overrides format.
	// example: apertium-retxt
	Reformat string `json:"reformat,omitempty" example:"apertium-retxt"`
	// Send the text as one framed exchange instead of splitting it.
	NoSplit bool `json:"nosplit,omitempty"`
}

// TranslatedText carries the translation result.
type TranslatedText struct {
	// example: Hola mundo
	TranslatedText string `json:"translatedText" example:"Hola mundo"`
	// Pair actually used when the request was resolved by fallback.
	// example: eng-spa
	ResolvedPair string `json:"resolvedPair,omitempty" example:"eng-spa"`
	// Language sequence used by /translateChain.
	TranslationPath []string `json:"translationPath,omitempty"`
}

// TranslateResponse is returned by /translate and /translateChain.
type TranslateResponse struct {
	ResponseData    TranslatedText `json:"responseData"`
	ResponseDetails any            `json:"responseDetails"`
	// example: 200
	ResponseStatus int `json:"responseStatus" example:"200"`
}

// PairsResponse is returned by /listPairs and /list?q=pairs.
type PairsResponse struct {
	ResponseData    []Pair `json:"responseData"`
	ResponseDetails any    `json:"responseDetails"`
	// example: 200
	ResponseStatus int `json:"responseStatus" example:"200"`
}

// ModesResponse maps a language (or language pair) to its installed mode
// name. Returned by /list?q=analyzers|generators|taggers.
type ModesResponse map[string]string

// PathsResponse lists multi-hop paths from one source language.
type PathsResponse struct {
	// example: eng
	Source string `json:"source" example:"eng"`
	// Destination -> full language sequence including both ends.
	Paths map[string][]string `json:"paths"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// example: error
	Status string `json:"status" example:"error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Status text for Code.
	// example: Bad Request
	Message string `json:"message" example:"Bad Request"`
	// example: That pair is not installed
	Explanation string `json:"explanation" example:"That pair is not installed"`
}
