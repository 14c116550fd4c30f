package config

// TestConfig returns a fully populated configuration for unit tests. It
// points at loopback endpoints and test buckets; nothing in it touches
// production infrastructure.
func TestConfig() *Config {
	cfg := &Config{
		FormatVersion: ConfigFormatVersion,
		Postgres: PostgresConfig{
			Host:           "127.0.0.1",
			Port:           5432,
			DBName:         "devatlas_test",
			User:           "devatlas",
			Password:       "devatlas",
			SSLMode:        "disable",
			ConnectTimeout: "15s",
		},
		ObjectStore: ObjectStoreConfig{
			Region:          "us-east-1",
			InboxBucket:     "devatlas-inbox-test",
			InboxPrefix:     "queue",
			ReportsBucket:   "devatlas-reports-test",
			ReportsPrefix:   "reports",
			GHReportsBucket: "devatlas-gh-reports-test",
			RejectedPrefix:  "rejected",
		},
		Search: SearchConfig{
			URL:     "http://127.0.0.1:9200",
			DevIdx:  "dev",
			Timeout: "5s",
		},
		GitHub: GitHubConfig{
			APIURL:    "https://api.github.com",
			UserAgent: "devatlas",
			Timeout:   "5s",
		},
		Flows: FlowsConfig{
			ListenAddress: "127.0.0.1:0",
		},
	}
	applyDefaults(cfg)
	return cfg
}
