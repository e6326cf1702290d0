package config

const (
	defaultInboxDir         = "~/.local/share/scanflow/inbox"
	defaultWorkDir          = "~/.local/share/scanflow/work"
	defaultSourcedataDir    = "~/.local/share/scanflow/sourcedata"
	defaultDataDir          = "~/.local/share/scanflow/data"
	defaultDeidentifiedDir  = "~/.local/share/scanflow/deidentified"
	defaultLogDir           = "~/.local/share/scanflow/logs"
	defaultDatabasePath     = "~/.local/share/scanflow/db/scanflow.db"
	defaultQueryAttempts    = 5
	defaultLockRetrySeconds = 5
	defaultSummaryWaitHours = 36
	defaultConversionLog    = "conversion_log.txt"
	defaultRoutingConfig    = "~/.config/scanflow/routing_config.json"
	defaultGroupAssignment  = "patient"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultPollInterval     = 300
	defaultReminderHours    = 24
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir:            defaultInboxDir,
			WorkDir:             defaultWorkDir,
			SourcedataDir:       defaultSourcedataDir,
			DataDir:             defaultDataDir,
			DeidentifiedDataDir: defaultDeidentifiedDir,
			LogDir:              defaultLogDir,
		},
		Database: Database{
			Path:             defaultDatabasePath,
			QueryAttempts:    defaultQueryAttempts,
			LockRetrySeconds: defaultLockRetrySeconds,
		},
		Study: Study{
			DefaultGroup:   defaultGroupAssignment,
			DeidentifyData: true,
			SubjectFormat: IdentifierFormat{
				Regex:         "[mM][0-9][0-9]+",
				DesiredPrefix: "sub-",
				DesiredStart:  "M",
				DesiredDigits: 3,
			},
			DeidentifiedFormat: IdentifierFormat{
				DesiredPrefix: "sub-",
				DesiredStart:  "D",
				DesiredDigits: 3,
			},
			SessionFormat: IdentifierFormat{
				DesiredPrefix: "ses-",
				DesiredDigits: 2,
			},
		},
		Validation: Validation{
			RoutingConfigPath: defaultRoutingConfig,
			ConversionLogName: defaultConversionLog,
			SummaryWaitHours:  defaultSummaryWaitHours,
		},
		Notifications: Notifications{
			RequestTimeout:        10,
			Discovery:             true,
			Validation:            true,
			Reminders:             true,
			ReminderIntervalHours: defaultReminderHours,
			Errors:                true,
		},
		Workflow: Workflow{
			PollInterval: defaultPollInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
