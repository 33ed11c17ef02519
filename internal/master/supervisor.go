package master

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cuongbtq/rhythm/internal/config"
	"github.com/cuongbtq/rhythm/internal/master/domain"
)

// DefaultWorkerName is the worker binary looked up next to the master executable
const DefaultWorkerName = "worker"

// SupervisorConfig holds what the supervisor needs to launch the worker pool
type SupervisorConfig struct {
	Logger         *slog.Logger
	Executable     string
	Workers        int
	SocketPath     string
	TmpDir         string
	LogsDir        string
	DownloadDir    string
	OutputTemplate string
	Codec          string
	Simulate       bool
	LogLevel       string
}

type workerProcess struct {
	record domain.SpawnRecord
	cmd    *exec.Cmd
	output io.Closer

	waitOnce sync.Once
	waitErr  error
}

func (p *workerProcess) wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		if p.output != nil {
			p.output.Close()
		}
	})
	return p.waitErr
}

// Supervisor launches worker processes and reaps them
type Supervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger

	mu        sync.RWMutex
	processes map[int]*workerProcess
	order     []int
}

func NewSupervisor(cfg *SupervisorConfig) *Supervisor {
	return &Supervisor{
		cfg:       *cfg,
		logger:    cfg.Logger,
		processes: make(map[int]*workerProcess),
	}
}

// ResolveWorkerExecutable returns path, or the worker binary next to the running master when path is empty
func ResolveWorkerExecutable(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate master executable: %w", err)
	}
	return filepath.Join(filepath.Dir(self), DefaultWorkerName), nil
}

// ensureExecutable checks the worker binary and widens its mode to 0755 when it is not executable
func (s *Supervisor) ensureExecutable() error {
	info, err := os.Stat(s.cfg.Executable)
	if err != nil {
		return fmt.Errorf("%w: unable to open worker executable %s: %v", domain.ErrSpawn, s.cfg.Executable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: worker executable %s is a directory", domain.ErrSpawn, s.cfg.Executable)
	}

	if mode := info.Mode().Perm(); mode&0o111 != 0o111 {
		s.logger.Warn("Wrong permissions on worker executable, trying to fix",
			slog.String("path", s.cfg.Executable),
			slog.String("mode", mode.String()),
		)
		if err := os.Chmod(s.cfg.Executable, 0o755); err != nil {
			return fmt.Errorf("%w: unable to set permissions on %s: %v", domain.ErrSpawn, s.cfg.Executable, err)
		}
	}
	return nil
}

func (s *Supervisor) workerEnv(id int) *config.WorkerEnv {
	return &config.WorkerEnv{
		SocketPath:     s.cfg.SocketPath,
		WorkerID:       id,
		LogDir:         s.cfg.LogsDir,
		DownloadDir:    s.cfg.DownloadDir,
		TmpDir:         s.cfg.TmpDir,
		WorkDir:        filepath.Join(s.cfg.TmpDir, strconv.Itoa(id)),
		OutputTemplate: s.cfg.OutputTemplate,
		Codec:          s.cfg.Codec,
		Simulate:       s.cfg.Simulate,
		LogLevel:       s.cfg.LogLevel,
	}
}

// Spawn starts one worker process per id in [0, Workers). If any launch fails
// the already started workers are killed and reaped.
func (s *Supervisor) Spawn(ctx context.Context) error {
	if s.cfg.Workers <= 0 {
		return fmt.Errorf("%w: worker count must be greater than 0", domain.ErrSpawn)
	}
	if err := s.ensureExecutable(); err != nil {
		return err
	}
	for _, dir := range []string{s.cfg.TmpDir, s.cfg.LogsDir, s.cfg.DownloadDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: unable to create %s: %v", domain.ErrSpawn, dir, err)
		}
	}

	s.logger.Info("Spawning worker pool",
		slog.Int("workers", s.cfg.Workers),
		slog.String("executable", s.cfg.Executable),
	)

	for id := 0; id < s.cfg.Workers; id++ {
		if err := s.spawnOne(ctx, id); err != nil {
			s.killAll()
			_ = s.Wait()
			return err
		}
	}

	s.logger.Info("Worker pool spawned successfully", slog.Int("workers", s.cfg.Workers))
	return nil
}

func (s *Supervisor) spawnOne(ctx context.Context, id int) error {
	env := s.workerEnv(id)
	if err := os.MkdirAll(env.WorkDir, 0o755); err != nil {
		return fmt.Errorf("%w: unable to create work dir for worker %d: %v", domain.ErrSpawn, id, err)
	}

	cmd := exec.CommandContext(ctx, s.cfg.Executable)
	cmd.Env = append(os.Environ(), env.Environ()...)
	cmd.Dir = env.WorkDir
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 10 * time.Second

	var output *os.File
	if s.cfg.LogsDir != "" {
		f, err := os.OpenFile(filepath.Join(s.cfg.LogsDir, fmt.Sprintf("worker-%d.out", id)),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("%w: unable to open output file for worker %d: %v", domain.ErrSpawn, id, err)
		}
		cmd.Stdout = f
		cmd.Stderr = f
		output = f
	}

	if err := cmd.Start(); err != nil {
		if output != nil {
			output.Close()
		}
		return fmt.Errorf("%w: unable to spawn worker %d: %v", domain.ErrSpawn, id, err)
	}

	proc := &workerProcess{
		record: domain.SpawnRecord{
			WorkerID:  id,
			PID:       cmd.Process.Pid,
			WorkDir:   env.WorkDir,
			StartedAt: time.Now(),
		},
		cmd: cmd,
	}
	if output != nil {
		proc.output = output
	}

	s.mu.Lock()
	s.processes[id] = proc
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.logger.Debug("Worker spawned",
		slog.Int("worker_id", id),
		slog.Int("pid", proc.record.PID),
	)
	return nil
}

func (s *Supervisor) killAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if p := s.processes[id].cmd.Process; p != nil {
			_ = p.Kill()
		}
	}
}

// Wait reaps every spawned worker and returns their exit failures joined.
func (s *Supervisor) Wait() error {
	s.mu.RLock()
	procs := make([]*workerProcess, 0, len(s.order))
	for _, id := range s.order {
		procs = append(procs, s.processes[id])
	}
	s.mu.RUnlock()

	var errs []error
	for _, p := range procs {
		if err := p.wait(); err != nil {
			s.logger.Warn("Worker exited with error",
				slog.Int("worker_id", p.record.WorkerID),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("worker %d: %w", p.record.WorkerID, err))
			continue
		}
		s.logger.Debug("Worker exited", slog.Int("worker_id", p.record.WorkerID))
	}
	return errors.Join(errs...)
}

// Lookup returns the spawn record of a worker id
func (s *Supervisor) Lookup(workerID int) (domain.SpawnRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.processes[workerID]
	if !ok {
		return domain.SpawnRecord{}, false
	}
	return p.record, true
}

// Workers returns the spawn records in launch order
func (s *Supervisor) Workers() []domain.SpawnRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SpawnRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.processes[id].record)
	}
	return out
}
