package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"apyd/internal/langpair"
	"apyd/internal/pipeline"
	"apyd/internal/registry"
	"apyd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *manager.Manager implements it.
type Service interface {
	ResolvePair(pair string) (langpair.Key, error)
	Translate(ctx context.Context, key langpair.Key, text string, opts pipeline.Options) (string, error)
	TranslateChain(ctx context.Context, src, trg, text string, opts pipeline.Options) (string, []string, error)
	RunMode(ctx context.Context, kind registry.Kind, lang, text string) (string, error)
	ListPairs() []langpair.Key
	ListModes(kind registry.Kind) map[string]string
	Paths(src string) map[string][]string
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the router. Every handler accepts GET with query parameters;
// the text endpoints also accept POST with a form or JSON body.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		origins, methods, headers := corsDefaults()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: methods,
			AllowedHeaders: headers,
			MaxAge:         300,
		}))
	}

	h := &handlers{svc: svc}
	r.Get("/listPairs", h.listPairs)
	r.Get("/list", h.list)
	r.Get("/paths", h.paths)
	r.Get("/stats", h.status)
	r.Get("/status", h.status)
	for path, fn := range map[string]http.HandlerFunc{
		"/translate":      h.translate,
		"/translateChain": h.translateChain,
		"/analyze":        h.runMode(registry.Analyzers),
		"/analyse":        h.runMode(registry.Analyzers),
		"/generate":       h.runMode(registry.Generators),
		"/tag":            h.runMode(registry.Taggers),
	} {
		r.Get(path, fn)
		r.Post(path, fn)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no modes installed"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

type handlers struct {
	svc Service
}

// fail writes the error response for err and logs the request end.
func (h *handlers) fail(w http.ResponseWriter, rl *requestLog, err error, notInstalled string) {
	// A client that went away gets nothing.
	if rl.r.Context().Err() != nil {
		rl.end(499, err)
		return
	}
	status, explanation := statusForError(err, notInstalled)
	switch status {
	case http.StatusRequestEntityTooLarge:
		IncrementRejection("too_fragmented")
	case http.StatusServiceUnavailable:
		IncrementRejection("shutting_down")
	}
	writeJSONError(w, status, explanation)
	rl.end(status, err)
}

// translateOptions reads the formatter and split flags. An explicit
// deformat/reformat wins over format.
func translateOptions(vals map[string][]string) pipeline.Options {
	get := func(k string) string {
		if v := vals[k]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	deformat, reformat := pipeline.FormattersFor(get("format"))
	if _, ok := vals["deformat"]; ok {
		deformat, _ = pipeline.ResolveFormatters(get("deformat"), "")
	}
	if _, ok := vals["reformat"]; ok {
		_, reformat = pipeline.ResolveFormatters("", get("reformat"))
	}
	return pipeline.Options{
		NoSplit:  boolParam(vals, "nosplit"),
		Deformat: deformat,
		Reformat: reformat,
	}
}

// translate godoc
// @Summary      Translate text
// @Description  Translates q with the installed pair closest to langpair.
// @Tags         translate
// @Produce      json
// @Param        langpair  query  string  true   "Pair, src|trg"
// @Param        q         query  string  true   "Text"
// @Param        format    query  string  false  "html (default), txt, rtf or none"
// @Param        nosplit   query  bool    false  "Send as one exchange"
// @Success      200  {object}  types.TranslateResponse
// @Failure      400  {object}  types.ErrorResponse
// @Failure      413  {object}  types.ErrorResponse
// @Failure      500  {object}  types.ErrorResponse
// @Router       /translate [get]
// @Router       /translate [post]
func (h *handlers) translate(w http.ResponseWriter, r *http.Request) {
	rl := newRequestLog(r, "translate")
	vals, err := requestParams(w, r)
	if err != nil {
		h.fail(w, rl, err, msgPairNotInstalled)
		return
	}
	pair := pairParam(vals.Get("langpair"))
	if pair == "" {
		h.fail(w, rl, badRequestError{msg: "missing argument langpair"}, msgPairNotInstalled)
		return
	}
	q := vals.Get("q")
	rl.begin(pair, len(q))

	key, err := h.svc.ResolvePair(pair)
	if err != nil {
		h.fail(w, rl, err, msgPairNotInstalled)
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	out, err := h.svc.Translate(ctx, key, q, translateOptions(vals))
	if err != nil {
		h.fail(w, rl, err, msgPairNotInstalled)
		return
	}
	resp := types.TranslateResponse{
		ResponseData:   types.TranslatedText{TranslatedText: out},
		ResponseStatus: http.StatusOK,
	}
	if resolved := key.String(); resolved != pair {
		resp.ResponseData.ResolvedPair = resolved
	}
	rl.output(out)
	writeJSON(w, resp)
	rl.end(http.StatusOK, nil)
}

// translateChain godoc
// @Summary      Translate through intermediate languages
// @Description  Uses the direct pair when installed, else the shortest path of installed pairs.
// @Tags         translate
// @Produce      json
// @Param        langpair  query  string  true  "Pair, src|trg"
// @Param        q         query  string  true  "Text"
// @Success      200  {object}  types.TranslateResponse
// @Failure      400  {object}  types.ErrorResponse
// @Router       /translateChain [get]
// @Router       /translateChain [post]
func (h *handlers) translateChain(w http.ResponseWriter, r *http.Request) {
	rl := newRequestLog(r, "translate_chain")
	vals, err := requestParams(w, r)
	if err != nil {
		h.fail(w, rl, err, msgPairNotInstalled)
		return
	}
	src, trg, ok := strings.Cut(pairParam(vals.Get("langpair")), "-")
	if !ok {
		h.fail(w, rl, badRequestError{msg: "langpair must be src|trg"}, msgPairNotInstalled)
		return
	}
	q := vals.Get("q")
	rl.begin(src+"-"+trg, len(q))

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	out, path, err := h.svc.TranslateChain(ctx, src, trg, q, translateOptions(vals))
	if err != nil {
		h.fail(w, rl, err, msgPairNotInstalled)
		return
	}
	rl.output(out)
	writeJSON(w, types.TranslateResponse{
		ResponseData:   types.TranslatedText{TranslatedText: out, TranslationPath: path},
		ResponseStatus: http.StatusOK,
	})
	rl.end(http.StatusOK, nil)
}

// runMode godoc
// @Summary      Analyze, generate or tag
// @Description  Runs the installed analyzer, generator or tagger for lang over q.
// @Tags         modes
// @Produce      json
// @Param        lang  query  string  true  "Language, or lang-lang for bilingual modes"
// @Param        q     query  string  true  "Text (lexical units for /generate)"
// @Success      200  {array}   types.LexicalUnit
// @Failure      400  {object}  types.ErrorResponse
// @Router       /analyze [get]
// @Router       /generate [get]
// @Router       /tag [get]
func (h *handlers) runMode(kind registry.Kind) http.HandlerFunc {
	name := strings.TrimSuffix(string(kind), "s")
	return func(w http.ResponseWriter, r *http.Request) {
		rl := newRequestLog(r, name)
		vals, err := requestParams(w, r)
		if err != nil {
			h.fail(w, rl, err, msgModeNotInstalled)
			return
		}
		lang := strings.TrimSpace(vals.Get("lang"))
		if lang == "" {
			h.fail(w, rl, badRequestError{msg: "missing argument lang"}, msgModeNotInstalled)
			return
		}
		q := vals.Get("q")
		rl.begin(lang, len(q))

		input := q
		var units []string
		if kind == registry.Generators {
			units, input = generatorInput(q)
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		out, err := h.svc.RunMode(ctx, kind, lang, input)
		if err != nil {
			h.fail(w, rl, err, msgModeNotInstalled)
			return
		}
		rl.output(out)
		if kind == registry.Generators {
			writeJSON(w, generatedUnits(units, out))
		} else {
			writeJSON(w, analysisUnits(q, out))
		}
		rl.end(http.StatusOK, nil)
	}
}

// listPairs godoc
// @Summary  List installed pairs
// @Tags     list
// @Produce  json
// @Success  200  {object}  types.PairsResponse
// @Router   /listPairs [get]
func (h *handlers) listPairs(w http.ResponseWriter, r *http.Request) {
	keys := h.svc.ListPairs()
	resp := types.PairsResponse{ResponseData: make([]types.Pair, 0, len(keys)), ResponseStatus: http.StatusOK}
	for _, k := range keys {
		resp.ResponseData = append(resp.ResponseData, types.Pair{SourceLanguage: k.Src.String(), TargetLanguage: k.Trg.String()})
	}
	writeJSON(w, resp)
}

// list godoc
// @Summary  List installed pairs or modes
// @Tags     list
// @Produce  json
// @Param    q  query  string  false  "pairs (default), analyzers, generators or taggers"
// @Success  200  {object}  types.ModesResponse
// @Failure  400  {object}  types.ErrorResponse
// @Router   /list [get]
func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		q = string(registry.Pairs)
	}
	kind, ok := registry.ParseKind(q)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Valid options are pairs, analyzers, generators and taggers")
		return
	}
	if kind == registry.Pairs {
		h.listPairs(w, r)
		return
	}
	writeJSON(w, types.ModesResponse(h.svc.ListModes(kind)))
}

// paths godoc
// @Summary  Multi-hop paths from a source language
// @Tags     list
// @Produce  json
// @Param    lang  query  string  true  "Source language"
// @Success  200  {object}  types.PathsResponse
// @Router   /paths [get]
func (h *handlers) paths(w http.ResponseWriter, r *http.Request) {
	src := strings.TrimSpace(r.URL.Query().Get("lang"))
	if src == "" {
		writeJSONError(w, http.StatusBadRequest, "missing argument lang")
		return
	}
	writeJSON(w, types.PathsResponse{Source: src, Paths: h.svc.Paths(src)})
}

// status godoc
// @Summary  Pool status
// @Tags     status
// @Produce  json
// @Success  200  {object}  types.StatusResponse
// @Router   /stats [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Status())
}
