package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/joho/godotenv"
)

type TemplateContext struct {
	ENV map[string]string
}

// PreprocessConfig replaces {{ .ENV.VAR }} placeholders with values from the
// environment or a .env file in the working directory. Secrets stay out of
// the config file this way; the file only names the variables it needs.
func PreprocessConfig(inputRaw []byte) ([]byte, error) {
	input := string(inputRaw)

	// Load .env from the current working directory if it exists. Real
	// environment variables win over .env entries.
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	_ = godotenv.Load(filepath.Join(cwd, ".env"))

	envMap := map[string]string{}
	for _, e := range os.Environ() {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	tmpl, err := template.New("config").Option("missingkey=error").Parse(input)
	if err != nil {
		return nil, err
	}

	var output bytes.Buffer

	missingKeyRegex := regexp.MustCompile(`map has no entry for key "(.*?)"`)

	if err := tmpl.Execute(&output, TemplateContext{ENV: envMap}); err != nil {
		matches := missingKeyRegex.FindStringSubmatch(err.Error())
		if len(matches) == 2 {
			missingKey := matches[1]
			return nil, fmt.Errorf("missing environment variable: %s (set it in your shell or .env file)", missingKey)
		}
		return nil, fmt.Errorf("template error: %w", err)
	}

	return output.Bytes(), nil
}
