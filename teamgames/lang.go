package teamgames

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the locale every other catalog falls back to.
const BaseLocale = "en"

//go:embed locales/*.yaml
var embeddedLocales embed.FS

var errFormat = errors.New("malformed message format")

type localeFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// MessageCatalog holds the localized chat messages.
type MessageCatalog struct {
	tags     []language.Tag
	messages []map[string]string
	matcher  language.Matcher
}

// DefaultMessageCatalog loads the catalogs shipped with the plugin.
func DefaultMessageCatalog() (*MessageCatalog, error) {
	return LoadMessageCatalog(embeddedLocales)
}

// LoadMessageCatalog loads every locales/*.yaml file in fsys. The base locale must be present.
func LoadMessageCatalog(fsys fs.FS) (*MessageCatalog, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locales: %w", err)
	}
	sort.Strings(paths)

	files := make([]localeFile, 0, len(paths))
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", path, err)
		}
		var file localeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", path, err)
		}
		if strings.TrimSpace(file.Locale) == "" {
			return nil, fmt.Errorf("locale %s: locale is required", path)
		}
		files = append(files, file)
	}

	// The matcher falls back to its first tag, so the base locale goes first.
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Locale == BaseLocale && files[j].Locale != BaseLocale
	})
	if len(files) == 0 || files[0].Locale != BaseLocale {
		return nil, fmt.Errorf("base locale %s is not defined", BaseLocale)
	}

	c := &MessageCatalog{}
	for _, file := range files {
		tag, err := language.Parse(file.Locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale tag %q: %w", file.Locale, err)
		}
		c.tags = append(c.tags, tag)
		c.messages = append(c.messages, file.Messages)
	}
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// Message renders key in the best matching locale. Placeholders are written {0}, {1}, ... and a
// literal brace is doubled. A broken format is logged and returned unformatted.
func (c *MessageCatalog) Message(logger runtime.Logger, locale, key string, args ...any) string {
	format := c.lookup(locale, key)
	text, err := formatMessage(format, args...)
	if err != nil {
		logger.Warn("Formatting error for key '%s': %v", key, err)
		return format
	}
	return text
}

func (c *MessageCatalog) lookup(locale, key string) string {
	idx := 0
	if locale != "" {
		if tag, err := language.Parse(locale); err == nil {
			_, idx, _ = c.matcher.Match(tag)
		}
	}
	if format, ok := c.messages[idx][key]; ok {
		return format
	}
	if format, ok := c.messages[0][key]; ok {
		return format
	}
	return key
}

func formatMessage(format string, args ...any) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		ch := format[i]
		switch ch {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed placeholder at %d", errFormat, i)
			}
			n, err := strconv.Atoi(format[i+1 : i+end])
			if err != nil || n < 0 {
				return "", fmt.Errorf("%w: bad placeholder %q", errFormat, format[i:i+end+1])
			}
			if n >= len(args) {
				return "", fmt.Errorf("%w: placeholder {%d} has no argument", errFormat, n)
			}
			fmt.Fprint(&b, args[n])
			i += end
		case '}':
			if i+1 >= len(format) || format[i+1] != '}' {
				return "", fmt.Errorf("%w: unpaired '}' at %d", errFormat, i)
			}
			b.WriteByte('}')
			i++
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}
