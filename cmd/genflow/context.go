package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"genflow/internal/config"
	"genflow/internal/logging"
	"genflow/internal/pipeline"
	"genflow/internal/run"
	"genflow/internal/runstore"
	"genflow/internal/services/studio"
)

var errNoRunResolved = errors.New("no run found; start one with `genflow start`")

type commandContext struct {
	configFlag *string
	runFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, runFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		runFlag:    runFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// session bundles the dependencies a pipeline command needs: loaded config,
// the run store, the remote service client, and the restored run state. The
// data directory is flock-guarded so concurrent invocations cannot interleave
// writes to the same run.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *runstore.Store
	client *studio.Client
	state  *run.State
	orch   *pipeline.Orchestrator
	regen  *pipeline.Regenerator

	lock        *flock.Flock
	currentPath string
}

// openSession builds a session. When requireRun is true the run state is
// restored from the resolved run id (the --run flag, the last-used pointer,
// or the most recently updated stored run, in that order) and resolution
// failure is an error; when false a missing run simply leaves fresh state.
func (c *commandContext) openSession(requireRun bool) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "genflow.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data directory lock: %w", err)
	}
	if !locked {
		return nil, errors.New("another genflow command is using this data directory")
	}

	store, err := runstore.Open(cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		_ = store.Close()
		_ = lock.Unlock()
		return nil, err
	}

	client, err := newServiceClient(cfg)
	if err != nil {
		_ = store.Close()
		_ = lock.Unlock()
		return nil, err
	}

	sess := &session{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		client:      client,
		state:       run.NewState(),
		lock:        lock,
		currentPath: filepath.Join(cfg.Paths.DataDir, "current_run"),
	}
	sess.orch = pipeline.NewOrchestrator(cfg, sess.state, client, store, logger)
	sess.regen = pipeline.NewRegenerator(cfg, sess.state, client, store, logger)

	runID := c.resolveRunID(sess)
	if runID != "" {
		snap, err := store.Get(context.Background(), runID)
		if err != nil {
			sess.Close()
			return nil, err
		}
		sess.state.Restore(snap)
	} else if requireRun {
		sess.Close()
		return nil, errNoRunResolved
	}

	return sess, nil
}

func (c *commandContext) resolveRunID(sess *session) string {
	if c.runFlag != nil {
		if id := strings.TrimSpace(*c.runFlag); id != "" {
			return id
		}
	}
	if data, err := os.ReadFile(sess.currentPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			if _, err := sess.store.Get(context.Background(), id); err == nil {
				return id
			}
		}
	}
	summaries, err := sess.store.List(context.Background())
	if err != nil || len(summaries) == 0 {
		return ""
	}
	return summaries[0].RunID
}

func newServiceClient(cfg *config.Config) (*studio.Client, error) {
	apiKey := strings.TrimSpace(cfg.Service.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("GENFLOW_API_KEY"))
	}

	opts := []studio.Option{}
	if apiKey != "" {
		opts = append(opts, studio.WithAPIKey(apiKey))
	}
	if cfg.Service.TimeoutSeconds > 0 {
		opts = append(opts, studio.WithTimeout(time.Duration(cfg.Service.TimeoutSeconds)*time.Second))
	}
	client, err := studio.NewClient(cfg.Service.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("configure service client: %w", err)
	}
	return client, nil
}

// rememberRun records the run id so later invocations default to it.
func (s *session) rememberRun(runID string) {
	if strings.TrimSpace(runID) == "" {
		return
	}
	if err := os.WriteFile(s.currentPath, []byte(runID+"\n"), 0o644); err != nil {
		s.logger.Warn("record current run", logging.Error(err))
	}
}

func (s *session) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}

// withSession opens a session for the command, runs fn, and cleans up.
func (c *commandContext) withSession(requireRun bool, fn func(*session) error) error {
	sess, err := c.openSession(requireRun)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
