package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"apyd/internal/langpair"
	"apyd/internal/modes"
	"apyd/internal/pipeline"
	"apyd/internal/registry"
)

var tracer = otel.Tracer("apyd/manager")

// ResolvePair parses a requested "src-trg" pair and maps it to an installed
// key: the exact pair when installed, else the closest variant
// generalization, else a not-installed error.
func (m *Manager) ResolvePair(pair string) (langpair.Key, error) {
	req, err := langpair.ParseKey(pair)
	if err != nil {
		return langpair.Key{}, invalidPairError{cause: err}
	}
	installed := m.routing.Load().installed
	if installed.Has(req) {
		return req, nil
	}
	if k, ok := langpair.Fallback(req, installed); ok {
		m.log.Debug().Str("requested", req.String()).Str("resolved", k.String()).Msg("manager event=fallback")
		return k, nil
	}
	return langpair.Key{}, ErrNotInstalled(req.String())
}

// Translate runs text through a pipeline of the installed pair key.
// A zero opts.Timeout takes the manager's timeout.
func (m *Manager) Translate(ctx context.Context, key langpair.Key, text string, opts pipeline.Options) (string, error) {
	name := key.String()
	ctx, span := tracer.Start(ctx, "manager.translate", trace.WithAttributes(
		attribute.String("apyd.pair", name),
		attribute.Int("apyd.input_bytes", len(text)),
		attribute.Bool("apyd.nosplit", opts.NoSplit),
	))
	defer span.End()

	start := time.Now()
	out, err := m.translate(ctx, key, text, opts)
	observe(span, name, start, err)
	return out, err
}

func (m *Manager) translate(ctx context.Context, key langpair.Key, text string, opts pipeline.Options) (string, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = m.timeout
	}
	p, release, err := m.GetPipeline(ctx, key)
	if err != nil {
		return "", err
	}
	out, err := func() (string, error) {
		defer release()
		return p.Translate(ctx, text, opts)
	}()
	if pipeline.IsTimeout(err) {
		m.publish(Event{Name: EventPipelineStuck, Pair: key.String(), Fields: map[string]any{"pids": p.PIDs()}})
	}
	m.Sweep()
	return out, err
}

// TranslateChain translates hop by hop along the shortest installed path
// from src to trg, each hop through its own pool. It returns the language
// sequence used.
func (m *Manager) TranslateChain(ctx context.Context, src, trg, text string, opts pipeline.Options) (string, []string, error) {
	direct, err := langpair.NewKey(src, trg)
	if err != nil {
		return "", nil, invalidPairError{cause: err}
	}
	r := m.routing.Load()
	var hops []langpair.Key
	path := []string{direct.Src.Base, direct.Trg.Base}
	if r.installed.Has(direct) {
		hops = []langpair.Key{direct}
	} else {
		p, ok := r.paths.Path(direct.Src.Base, direct.Trg.Base)
		if !ok {
			return "", nil, ErrNotInstalled(direct.String())
		}
		path = p
		for i := 0; i+1 < len(path); i++ {
			hop, ok := r.hops[path[i]+"-"+path[i+1]]
			if !ok {
				return "", nil, ErrNotInstalled(path[i] + "-" + path[i+1])
			}
			hops = append(hops, hop)
		}
	}

	ctx, span := tracer.Start(ctx, "manager.translate_chain", trace.WithAttributes(
		attribute.StringSlice("apyd.path", path),
	))
	defer span.End()

	cur := text
	for _, hop := range hops {
		if cur, err = m.Translate(ctx, hop, cur, opts); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", path, fmt.Errorf("hop %s: %w", hop, err)
		}
	}
	return cur, path, nil
}

// RunMode runs an installed analyzer, generator or tagger over text as a
// one-shot umbrella invocation: "apertium -d <dir> -f none <mode>".
func (m *Manager) RunMode(ctx context.Context, kind registry.Kind, lang, text string) (string, error) {
	md, ok := m.Registry().Lookup(kind, lang)
	if !ok {
		return "", ErrNotInstalled(fmt.Sprintf("%s for %s", kind, lang))
	}
	target := string(kind) + ":" + lang
	ctx, span := tracer.Start(ctx, "manager.run_mode", trace.WithAttributes(
		attribute.String("apyd.kind", string(kind)),
		attribute.String("apyd.mode", md.Name),
	))
	defer span.End()

	start := time.Now()
	out, err := m.runMode(ctx, md, text)
	observe(span, target, start, err)
	return out, err
}

func (m *Manager) runMode(ctx context.Context, md registry.Mode, text string) (string, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}
	parsed := modes.Parsed{
		Stages: [][]string{{m.umbrella, "-d", md.Dir, "-f", "none", md.Name}},
		Dir:    md.Dir,
	}
	p, err := m.newPipeline(parsed, pipeline.Config{
		Logger:     m.log.With().Str("mode", md.Name).Logger(),
		CloseGrace: m.closeGrace,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = p.Close() }()
	release := p.Enter()
	defer release()
	return p.Translate(ctx, text, pipeline.Options{Timeout: m.timeout})
}

func observe(span trace.Span, target string, start time.Time, err error) {
	requestsTotal.WithLabelValues(target, outcome(err)).Inc()
	requestDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case pipeline.IsTimeout(err):
		return "timeout"
	case pipeline.IsProcessFailure(err):
		return "process_failure"
	case pipeline.IsInputTooFragmented(err):
		return "too_fragmented"
	case modes.IsParseError(err):
		return "parse_error"
	case IsNotInstalled(err):
		return "not_installed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}
