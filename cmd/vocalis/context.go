package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vocalis/internal/api"
	"vocalis/internal/artifacts"
	"vocalis/internal/config"
	"vocalis/internal/queue"
	"vocalis/internal/submission"
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

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// withService opens the stores, runs fn against a SubmissionService, and
// closes everything afterwards. The SQLite stores run in WAL mode so the CLI
// can work alongside a running daemon.
func (c *commandContext) withService(cmd *cobra.Command, fn func(*api.SubmissionService) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	jobs, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer jobs.Close()

	submissions, err := submission.Open(cfg)
	if err != nil {
		return err
	}
	defer submissions.Close()

	recordings, err := artifacts.NewFromConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	return fn(api.NewSubmissionService(jobs, submissions, recordings))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
