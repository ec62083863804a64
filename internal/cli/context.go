package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/forPelevin/sopgen/internal/config"
	"github.com/forPelevin/sopgen/internal/logging"
)

// commandContext carries the persistent flags and the loaded configuration
// between cobra hooks and subcommands.
type commandContext struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg       *config.Config
	cfgPath   string
	cfgExists bool
}

func (c *commandContext) load() error {
	cfg, path, exists, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.cfg, c.cfgPath, c.cfgExists = cfg, path, exists
	return nil
}

// ready validates the configuration after command flags were applied and
// builds the logger.
func (c *commandContext) ready() (*config.Config, *zap.Logger, error) {
	if c.cfg == nil {
		if err := c.load(); err != nil {
			return nil, nil, err
		}
	}
	if c.logLevel != "" {
		c.cfg.Logging.Level = c.logLevel
	}
	if c.logFormat != "" {
		c.cfg.Logging.Format = c.logFormat
	}
	if err := c.cfg.Finalize(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Level:  c.cfg.Logging.Level,
		Format: c.cfg.Logging.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	if c.cfgExists {
		logger.Debug("loaded configuration", zap.String("path", c.cfgPath))
	}
	return c.cfg, logger, nil
}
