// config.go loads the sectioned task configuration file. Every section other
// than DEFAULT names one backup task; DEFAULT supplies per-key fallback values
// shared by all tasks and holds the run-wide settings.

package backup

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"gopkg.in/ini.v1"
)

// Config is the parsed task configuration file.
type Config struct {
	file *ini.File
}

// LoadConfig reads and parses the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return &Config{file: file}, nil
}

// TaskNames returns every task section name in file order.
func (c *Config) TaskNames() []string {
	var names []string
	for _, name := range c.file.SectionStrings() {
		if name == ini.DefaultSection {
			continue
		}
		names = append(names, name)
	}
	return names
}

// SelectTasks resolves task selectors against the configured sections.
// Unknown names are skipped with a warning, sanitized before logging. An
// empty selector list selects every configured task.
func (c *Config) SelectTasks(log *slog.Logger, selectors []string) []string {
	known := c.TaskNames()
	if len(selectors) == 0 {
		return known
	}
	var tasks []string
	for _, name := range selectors {
		if slices.Contains(known, name) {
			tasks = append(tasks, name)
		} else {
			log.Warn("Skipping unknown task", "task", sanitizeTaskName(name))
		}
	}
	return tasks
}

// GlobalString returns a key that is read from the DEFAULT section only, for
// settings that apply to the whole run rather than to one task.
func (c *Config) GlobalString(key string) string {
	return strings.TrimSpace(c.file.Section(ini.DefaultSection).Key(key).String())
}

// taskKey resolves key for the named task, falling back to the DEFAULT
// section when the task section does not define it.
func (c *Config) taskKey(task, key string) (*ini.Key, bool) {
	if sec, err := c.file.GetSection(task); err == nil && sec.HasKey(key) {
		return sec.Key(key), true
	}
	if def := c.file.Section(ini.DefaultSection); def.HasKey(key) {
		return def.Key(key), true
	}
	return nil, false
}

// taskValue returns the string value of key for the named task. The empty
// string means the key is absent from both the task and DEFAULT sections.
func (c *Config) taskValue(task, key string) string {
	if k, ok := c.taskKey(task, key); ok {
		return strings.TrimSpace(k.String())
	}
	return ""
}

// taskBool returns the boolean value of key for the named task, accepting the
// usual spellings (yes/no, on/off, true/false, 1/0). An absent or empty key
// yields fallback; anything unparseable is a settings error.
func (c *Config) taskBool(task, key string, fallback bool) (bool, error) {
	k, ok := c.taskKey(task, key)
	if !ok || strings.TrimSpace(k.String()) == "" {
		return fallback, nil
	}
	value, err := k.Bool()
	if err != nil {
		return false, settingsErrorf("invalid boolean value for %s: %q", key, k.String())
	}
	return value, nil
}
