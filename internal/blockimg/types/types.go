package types

// Struct tags drive both the YAML config file and the JSON reports.

// Config is the on-disk configuration file. Zero values fall back to defaults.
type Config struct {
	BlockSize          uint64   `yaml:"block_size" json:"blockSize"`
	WorkDir            string   `yaml:"work_dir" json:"workDir"`
	CheckpointBackend  string   `yaml:"checkpoint_backend" json:"checkpointBackend"` // "file" or "bolt"
	ImgdiffCommand     string   `yaml:"imgdiff_command" json:"imgdiffCommand"`
	BsdiffCommand      string   `yaml:"bsdiff_command" json:"bsdiffCommand"`
	MetricsTextfile    string   `yaml:"metrics_textfile" json:"metricsTextfile"`
	WriteRateLimit     int64    `yaml:"write_rate_limit" json:"writeRateLimit"` // bytes per second, 0 = unlimited
	CompressStash      bool     `yaml:"compress_stash" json:"compressStash"`
	StashCacheEntries  int      `yaml:"stash_cache_entries" json:"stashCacheEntries"`
	StashSweepPatterns []string `yaml:"stash_sweep_patterns" json:"stashSweepPatterns"`
	LogLevel           string   `yaml:"log_level" json:"logLevel"`
}

// Checkpoint is the last command known to have completed.
type Checkpoint struct {
	Index   int    `json:"index"`
	Cmdline string `json:"cmdline"`
}

// CommandCount is the number of commands of one type.
type CommandCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// InspectReport summarizes a transfer list without touching a device.
type InspectReport struct {
	Version          int            `json:"version"`
	TotalBlocks      uint64         `json:"totalBlocks"`
	StashMaxEntries  uint64         `json:"stashMaxEntries"`
	StashMaxBlocks   uint64         `json:"stashMaxBlocks"`
	Commands         int            `json:"commands"`
	Counts           []CommandCount `json:"counts"`
	WrittenBlocks    uint64         `json:"writtenBlocks"`
	StashedBlocks    uint64         `json:"stashedBlocks"`
	PeakStashEntries uint64         `json:"peakStashEntries"`
	PeakStashBlocks  uint64         `json:"peakStashBlocks"`
	PatchBytes       uint64         `json:"patchBytes"`
}

// RunSummary is what an apply or verify run reports when it finishes.
type RunSummary struct {
	Session       string `json:"session"`
	Partition     string `json:"partition"`
	Verify        bool   `json:"verify"`
	AlreadyDone   bool   `json:"alreadyDone"`
	Executed      int    `json:"executed"`
	Skipped       int    `json:"skipped"`
	WrittenBlocks uint64 `json:"writtenBlocks"`
	StashedBlocks uint64 `json:"stashedBlocks"`
	// FailedIndex and FailedCommand name the command that stopped a failed run.
	FailedIndex   int    `json:"failedIndex,omitempty"`
	FailedCommand string `json:"failedCommand,omitempty"`
	FailureClass  string `json:"failureClass,omitempty"`
}
