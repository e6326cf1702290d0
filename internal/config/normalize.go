package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	if err := c.normalizeValidation(); err != nil {
		return err
	}
	c.normalizeStudy()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.SourcedataDir, err = expandPath(c.Paths.SourcedataDir); err != nil {
		return fmt.Errorf("paths.sourcedata_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.DeidentifiedDataDir, err = expandPath(c.Paths.DeidentifiedDataDir); err != nil {
		return fmt.Errorf("paths.deidentified_data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDatabase() error {
	var err error
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = defaultDatabasePath
	}
	if c.Database.Path, err = expandPath(c.Database.Path); err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeValidation() error {
	var err error
	if strings.TrimSpace(c.Validation.RoutingConfigPath) == "" {
		c.Validation.RoutingConfigPath = defaultRoutingConfig
	}
	if c.Validation.RoutingConfigPath, err = expandPath(c.Validation.RoutingConfigPath); err != nil {
		return fmt.Errorf("validation.routing_config_path: %w", err)
	}
	c.Validation.ConversionLogName = strings.TrimSpace(c.Validation.ConversionLogName)
	if c.Validation.ConversionLogName == "" {
		c.Validation.ConversionLogName = defaultConversionLog
	}
	return nil
}

func (c *Config) normalizeStudy() {
	c.Study.Title = strings.TrimSpace(c.Study.Title)
	c.Study.DefaultGroup = strings.TrimSpace(c.Study.DefaultGroup)
	if c.Study.DefaultGroup == "" {
		c.Study.DefaultGroup = defaultGroupAssignment
	}
	normalizeFormat(&c.Study.SubjectFormat)
	normalizeFormat(&c.Study.DeidentifiedFormat)
	normalizeFormat(&c.Study.SessionFormat)
}

func normalizeFormat(format *IdentifierFormat) {
	format.Regex = strings.TrimSpace(format.Regex)
	format.DesiredPrefix = strings.TrimSpace(format.DesiredPrefix)
	format.DesiredStart = strings.TrimSpace(format.DesiredStart)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
