package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/ppiankov/storyline/internal/hierarchy"
	"github.com/ppiankov/storyline/internal/lifecycle"
	"github.com/ppiankov/storyline/internal/llm"
	"github.com/ppiankov/storyline/internal/model"
	"github.com/ppiankov/storyline/internal/store"
)

// engine bundles the wired components a command works against.
type engine struct {
	cfg   *model.Config
	store *store.Store
	life  *lifecycle.Lifecycle
	log   *log.Logger

	lockPath string
}

// loadConfig layers the viper sources (flags, env, config file) over the
// built-in defaults and validates the result.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "storyline",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// openEngine wires the store, index, provider, and lifecycle together.
// Pass commands must also call lock() first: passes mutate the shared
// snapshot file, so one process at a time.
func openEngine() (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger()

	st, err := store.NewStore(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	hier, err := hierarchy.LoadOrNew(cfg.Hierarchy.SnapshotPath, cfg.Hierarchy.Metric,
		cfg.Hierarchy.LowerLimitScale, cfg.Hierarchy.UpperLimitScale)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load hierarchy snapshot: %w", err)
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("configure provider: %w", err)
	}
	logger.Debug("engine ready",
		"store", cfg.Store.Path, "snapshot", cfg.Hierarchy.SnapshotPath,
		"nodes", hier.Len(), "provider", provider.Name())

	return &engine{
		cfg:   cfg,
		store: st,
		life:  lifecycle.New(cfg, st, hier, provider, logger),
		log:   logger,
	}, nil
}

func (e *engine) close() {
	if e.lockPath != "" {
		_ = os.Remove(e.lockPath)
		e.lockPath = ""
	}
	if err := e.store.Close(); err != nil {
		e.log.Warn("closing store", "error", err)
	}
}

// lock takes the exclusive pass lock next to the snapshot file. A held
// lock means another storyline process is mid-pass against the same data.
func (e *engine) lock() error {
	path := e.cfg.Hierarchy.SnapshotPath + ".lock"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("another run holds the pass lock %s (remove it if no storyline process is running)", path)
		}
		return fmt.Errorf("take pass lock: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if err := f.Close(); err != nil {
		return fmt.Errorf("take pass lock: %w", err)
	}
	e.lockPath = path
	return nil
}
