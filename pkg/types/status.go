package types

// PipelineStatus describes one live or draining pipeline.
type PipelineStatus struct {
	// Callers currently inside the pipeline.
	// example: 1
	Users int `json:"users" example:"1"`
	// Completed requests since the pipeline was started.
	// example: 240
	Uses int64 `json:"uses" example:"240"`
	// Last time a caller entered or left (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// True after a framed exchange timed out.
	Stuck bool `json:"stuck"`
	// True for persistent backbones, false for one-shot pipelines.
	Streaming bool `json:"streaming"`
	// Live backbone process IDs.
	PIDs []int `json:"pids,omitempty"`
}

// PairStatus groups the live pipelines of one pair.
type PairStatus struct {
	// example: eng-spa
	Pair      string           `json:"pair" example:"eng-spa"`
	Pipelines []PipelineStatus `json:"pipelines"`
}

// StatusResponse is returned by GET /stats and GET /status.
type StatusResponse struct {
	Pairs []PairStatus `json:"pairs"`
	// Retired pipelines waiting for their last caller.
	// example: 0
	Holding int `json:"holding" example:"0"`
	// Installed counts by kind.
	// example: 12
	InstalledPairs int `json:"installed_pairs" example:"12"`
	// example: 3
	InstalledModes int `json:"installed_modes" example:"3"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Pipelines started since boot.
	// example: 4
	StartsTotal uint64 `json:"starts_total" example:"4"`
	// Pipelines retired since boot.
	// example: 2
	RetiresTotal uint64 `json:"retires_total" example:"2"`
}
