package pipeline

import (
	"context"

	"github.com/rs/zerolog"
)

// SimplePipeline spawns its stage chain afresh for every call. Formatter
// options are ignored: one-shot modes run through the umbrella command,
// which formats on its own.
type SimplePipeline struct {
	state
	stages [][]string
	dir    string
	log    zerolog.Logger
}

// NewSimple returns a one-shot pipeline. Nothing is spawned until Translate.
func NewSimple(stages [][]string, dir string, cfg Config) *SimplePipeline {
	p := &SimplePipeline{stages: stages, dir: dir, log: cfg.Logger}
	p.state.init()
	return p
}

// Translate runs one full write/read cycle under the pipeline lock. Once
// spawned, the processes are not interrupted by ctx.
func (p *SimplePipeline) Translate(ctx context.Context, text string, _ Options) (string, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	out, err := runOnce(p.stages, p.dir, []byte(text), p.log)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (p *SimplePipeline) Streaming() bool { return false }
func (p *SimplePipeline) PIDs() []int     { return nil }
func (p *SimplePipeline) Close() error    { return nil }
