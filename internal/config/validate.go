package config

import (
	"errors"
	"fmt"
	"regexp"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStudy(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.InboxDir == "" {
		return errors.New("paths.inbox_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Study.DeidentifyData && c.Paths.DeidentifiedDataDir == "" {
		return errors.New("paths.deidentified_data_dir must be set when study.deidentify_data is true")
	}
	return nil
}

func (c *Config) validateStudy() error {
	if c.Study.SubjectFormat.Regex == "" {
		return errors.New("study.subject_format.regex must be set")
	}
	if _, err := regexp.Compile(c.Study.SubjectFormat.Regex); err != nil {
		return fmt.Errorf("study.subject_format.regex: %w", err)
	}
	for _, format := range []struct {
		name   string
		digits int
	}{
		{"study.subject_format", c.Study.SubjectFormat.DesiredDigits},
		{"study.deidentified_format", c.Study.DeidentifiedFormat.DesiredDigits},
		{"study.session_format", c.Study.SessionFormat.DesiredDigits},
	} {
		if format.digits <= 0 {
			return fmt.Errorf("%s.desired_digits must be positive", format.name)
		}
	}
	return nil
}

func (c *Config) validateValidation() error {
	if c.Validation.SummaryWaitHours < 0 {
		return errors.New("validation.summary_wait_hours must not be negative")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval < 0 {
		return errors.New("workflow.poll_interval must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
}
