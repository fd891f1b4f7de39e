package domain

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// placeholder is a template variable such as {title}.
type placeholder string

const (
	placeholderTitle    placeholder = "title"
	placeholderExcerpt  placeholder = "excerpt"
	placeholderLink     placeholder = "link"
	placeholderHashtags placeholder = "hashtags"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_]+)\}`)

// Formatter builds the post text from a template.
type Formatter struct {
	settings Settings
	logger   *slog.Logger
}

// NewFormatter returns a Formatter. An empty PostTemplate falls back to
// DefaultPostTemplate.
func NewFormatter(settings Settings, logger *slog.Logger) *Formatter {
	if settings.PostTemplate == "" {
		settings.PostTemplate = DefaultPostTemplate
	}
	return &Formatter{settings: settings, logger: logger}
}

// Format expands the post template for the post behind r.
//
// {excerpt} is r.Description, so an empty excerpt is replaced by the fallback
// text. The assembled message is passed through Truncate. With inline
// hashtags enabled the trailing tags are then moved into the text where
// possible.
func (f *Formatter) Format(ctx context.Context, r *Resolver) string {
	message := expandTemplate(f.settings.PostTemplate, r.values(r.Description), r.dropPlaceholder)
	for _, name := range r.dropped {
		f.logger.DebugContext(ctx, "removing unknown placeholder", "placeholder", name)
	}
	message = Truncate(message)

	if f.settings.InlineHashtags {
		message = InlineHashtags(message)
	}
	return message
}

// expandTemplate replaces every known placeholder in one pass. Unknown
// placeholders are removed and reported to unknown when it is not nil.
func expandTemplate(template string, values map[placeholder]func() string, unknown func(string)) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholder(strings.ToLower(m[1 : len(m)-1]))
		if resolve, ok := values[name]; ok {
			return resolve()
		}
		if unknown != nil {
			unknown(m)
		}
		return ""
	})
}
