package cli

import (
	"fmt"
	"os"

	"github.com/devatlas/devatlas/internal/inboxsrv/config"
)

// loadDaemonConfig reads the file named by --config, substitutes environment
// placeholders and returns the validated configuration.
func loadDaemonConfig() (*config.Config, error) {
	content, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s not found", configFile)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	processed, err := PreprocessConfig(content)
	if err != nil {
		return nil, err
	}

	return config.ParseConfig(processed)
}
