package main

import (
	"fmt"
	"strings"
	"sync"

	"scanflow/internal/config"
	"scanflow/internal/logging"
	"scanflow/internal/metrics"
	"scanflow/internal/notifications"
	"scanflow/internal/pipeline"
	"scanflow/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
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

// withPipeline opens the store, builds the pipeline, and guarantees the
// store's advisory lock is released when fn returns.
func (c *commandContext) withPipeline(fn func(*pipeline.Pipeline) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	m := metrics.New()
	st, err := store.Open(cfg, logger, m)
	if err != nil {
		return err
	}
	defer st.Close()

	notifier := notifications.NewService(cfg, m)
	return fn(pipeline.New(cfg, st, logger, m, notifier))
}

// withStore opens the store with a quiet logger for read-mostly commands.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(cfg, logging.NewNop(), metrics.New())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}
