package manager

import (
	"time"

	"github.com/rs/zerolog"

	"apyd/internal/modes"
	"apyd/internal/pipeline"
	"apyd/internal/registry"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxPipesPerPair  = 1
	defaultMaxUsersPerPipe  = 5
	defaultRestartPipeAfter = 1000
	defaultTimeout          = pipeline.DefaultTimeout
)

// PipelineFactory builds a pipeline for a parsed mode. Tests substitute it.
type PipelineFactory func(modes.Parsed, pipeline.Config) (pipeline.Pipeline, error)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry *registry.Registry
	// Pool shape.
	MaxPipesPerPair int
	MinPipesPerPair int
	MaxUsersPerPipe int
	// MaxIdle retires pipelines beyond MinPipesPerPair unused for longer;
	// zero disables idle retirement.
	MaxIdle time.Duration
	// RestartPipeAfter retires a pipeline once it served more requests.
	RestartPipeAfter int64
	// Timeout bounds each framed exchange.
	Timeout time.Duration
	// CloseGrace is the SIGTERM-to-SIGKILL delay when closing pipelines.
	CloseGrace time.Duration
	// UmbrellaCommand runs analyzer, generator and tagger modes.
	UmbrellaCommand string
	Parser          *modes.Parser
	Logger          zerolog.Logger
	Publisher       EventPublisher
	NewPipeline     PipelineFactory
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		minPipes:     cfg.MinPipesPerPair,
		maxIdle:      cfg.MaxIdle,
		closeGrace:   cfg.CloseGrace,
		log:          cfg.Logger,
		newPipeline:  cfg.NewPipeline,
		umbrella:     cfg.UmbrellaCommand,
		pools:        make(map[string]*pool),
		creatorSlots: make(map[string]chan struct{}),
		startTime:    time.Now(),
	}
	// Apply defaults if unset
	if m.maxPipes = cfg.MaxPipesPerPair; m.maxPipes <= 0 {
		m.maxPipes = defaultMaxPipesPerPair
	}
	if m.minPipes < 0 {
		m.minPipes = 0
	}
	if m.minPipes > m.maxPipes {
		m.minPipes = m.maxPipes
	}
	if m.maxUsers = cfg.MaxUsersPerPipe; m.maxUsers <= 0 {
		m.maxUsers = defaultMaxUsersPerPipe
	}
	if m.restartAfter = cfg.RestartPipeAfter; m.restartAfter <= 0 {
		m.restartAfter = defaultRestartPipeAfter
	}
	if m.timeout = cfg.Timeout; m.timeout <= 0 {
		m.timeout = defaultTimeout
	}
	if m.maxIdle < 0 {
		m.maxIdle = 0
	}
	m.SetEventPublisher(cfg.Publisher)
	if m.newPipeline == nil {
		m.newPipeline = pipeline.New
	}
	if m.umbrella == "" {
		m.umbrella = modes.UmbrellaCommand
	}
	parser := modes.DefaultParser()
	if cfg.Parser != nil {
		parser = *cfg.Parser
	}
	m.cache = modes.NewCache(parser)
	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}
	m.SetRegistry(reg)
	return m
}
