package config

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Environment passed from the master to every worker process
const (
	EnvSocketPath     = "MSP"
	EnvWorkerID       = "THR_ID"
	EnvLogDir         = "LOG_DIR"
	EnvDownloadDir    = "DOWNLOAD_DIR"
	EnvTmpDir         = "TMP_DIR"
	EnvWorkDir        = "WORK_DIR"
	EnvOutputTemplate = "YT_DLP_OUTPUT_TEMPLATE"
	EnvCodec          = "RHYTHM_CODEC"
	EnvSimulate       = "RHYTHM_SIMULATE"
	EnvLogLevel       = "RHYTHM_LOG_LEVEL"
)

// WorkerEnv is the configuration a worker process receives from the master
type WorkerEnv struct {
	SocketPath     string
	WorkerID       int
	LogDir         string
	DownloadDir    string
	TmpDir         string
	WorkDir        string
	OutputTemplate string
	Codec          string
	Simulate       bool
	LogLevel       string
}

// Environ renders the worker environment as KEY=VALUE pairs
func (w *WorkerEnv) Environ() []string {
	return []string{
		EnvSocketPath + "=" + w.SocketPath,
		EnvWorkerID + "=" + strconv.Itoa(w.WorkerID),
		EnvLogDir + "=" + w.LogDir,
		EnvDownloadDir + "=" + w.DownloadDir,
		EnvTmpDir + "=" + w.TmpDir,
		EnvWorkDir + "=" + w.WorkDir,
		EnvOutputTemplate + "=" + w.OutputTemplate,
		EnvCodec + "=" + w.Codec,
		EnvSimulate + "=" + strconv.FormatBool(w.Simulate),
		EnvLogLevel + "=" + w.LogLevel,
	}
}

// LogFile is the worker's structured log file below LogDir, or stdout when LogDir is unset
func (w *WorkerEnv) LogFile() string {
	if w.LogDir == "" {
		return "stdout"
	}
	return filepath.Join(w.LogDir, fmt.Sprintf("worker-%d.log", w.WorkerID))
}

// LoadWorkerEnv reads the worker environment through getenv
func LoadWorkerEnv(getenv func(string) string) (*WorkerEnv, error) {
	env := &WorkerEnv{
		SocketPath:     getenv(EnvSocketPath),
		LogDir:         getenv(EnvLogDir),
		DownloadDir:    getenv(EnvDownloadDir),
		TmpDir:         getenv(EnvTmpDir),
		WorkDir:        getenv(EnvWorkDir),
		OutputTemplate: getenv(EnvOutputTemplate),
		Codec:          getenv(EnvCodec),
		LogLevel:       getenv(EnvLogLevel),
	}

	if env.SocketPath == "" {
		return nil, fmt.Errorf("%s is required", EnvSocketPath)
	}

	rawID := getenv(EnvWorkerID)
	if rawID == "" {
		return nil, fmt.Errorf("%s is required", EnvWorkerID)
	}
	id, err := strconv.Atoi(rawID)
	if err != nil || id < 0 {
		return nil, fmt.Errorf("invalid %s: %q", EnvWorkerID, rawID)
	}
	env.WorkerID = id

	if raw := getenv(EnvSimulate); raw != "" {
		simulate, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", EnvSimulate, raw)
		}
		env.Simulate = simulate
	}

	if env.DownloadDir == "" {
		env.DownloadDir = DefaultDownloadDir
	}
	if env.TmpDir == "" {
		env.TmpDir = DefaultTmpDir
	}
	if env.WorkDir == "" {
		env.WorkDir = filepath.Join(env.TmpDir, strconv.Itoa(id))
	}
	if env.OutputTemplate == "" {
		env.OutputTemplate = DefaultOutputTemplate
	}
	if env.Codec == "" {
		env.Codec = "json"
	}
	if env.LogLevel == "" {
		env.LogLevel = "info"
	}

	return env, nil
}
