// Package i18n resolves message keys to display text. The core never builds
// user-facing sentences itself; it emits (category, key, args) and this
// package turns them into text from YAML message catalogs.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Translator struct {
	// messages[category][key] is an fmt format string.
	messages map[string]map[string]string
}

// Load reads <dir>/<lang>.yaml. The file maps categories to key/text pairs.
func Load(dir, lang string) (*Translator, error) {
	raw, err := os.ReadFile(filepath.Join(dir, lang+".yaml"))
	if err != nil {
		return nil, err
	}
	var messages map[string]map[string]string
	if err := yaml.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("messages %s: %w", lang, err)
	}
	return &Translator{messages: messages}, nil
}

// Empty returns a translator with no catalog; every lookup falls back to the
// key. Used by tests and the replay tool, where display text is irrelevant
// (and kept out of digests anyway would be wrong: fallback is deterministic).
func Empty() *Translator {
	return &Translator{messages: map[string]map[string]string{}}
}

// Translate resolves (category, key) and applies args. A missing entry falls
// back to "category.key", never fails.
func (t *Translator) Translate(category, key string, args ...any) string {
	if cat, ok := t.messages[category]; ok {
		if format, ok := cat[key]; ok {
			if len(args) == 0 {
				return format
			}
			return fmt.Sprintf(format, args...)
		}
	}
	if len(args) == 0 {
		return category + "." + key
	}
	return fmt.Sprintf("%s.%s%v", category, key, args)
}
