// Package inject fills the template and style markers of a component source
// with its minified HTML and CSS.
package inject

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"

	"elemforge/internal/compile"
	"elemforge/internal/config"
	"elemforge/internal/logging"
	"elemforge/internal/settle"
	"elemforge/internal/toolexec"
)

// Injector inlines a compiled HTML template and stylesheet into an entry
// module at its marker comments.
type Injector struct {
	TemplateMarker string
	StyleMarker    string

	// Sass is the executable compiling .scss and .sass files.
	Sass   string
	Runner toolexec.Runner

	minifier *minify.M
}

// New returns an Injector configured from cfg. A nil runner runs Sass as a
// local process.
func New(cfg config.Inject, runner toolexec.Runner) *Injector {
	if runner == nil {
		runner = toolexec.ExecRunner{}
	}
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDefaultAttrVals: true,
		KeepEndTags:         true,
		KeepQuotes:          true,
	})
	return &Injector{
		TemplateMarker: cfg.TemplateMarker,
		StyleMarker:    cfg.StyleMarker,
		Sass:           cfg.Sass,
		Runner:         runner,
		minifier:       m,
	}
}

// Sources names the files injected into an entry.
type Sources struct {
	Entry    string
	Template string
	Style    string
}

// Inject reads the entry and replaces every template and style marker.
// The template and stylesheet are processed concurrently; a failure of either
// is reported together with the other.
func (i *Injector) Inject(ctx context.Context, src Sources) (string, error) {
	entry, err := os.ReadFile(src.Entry)
	if err != nil {
		return "", fmt.Errorf("read entry: %w", err)
	}

	parts, err := settle.All(ctx,
		func(ctx context.Context) (string, error) { return i.Template(ctx, src.Template) },
		func(ctx context.Context) (string, error) { return i.Style(ctx, src.Style) },
	)
	if err != nil {
		return "", fmt.Errorf("inject %s: %w", filepath.Base(src.Entry), err)
	}

	out := string(entry)
	out = Replace(out, i.TemplateMarker, parts[0])
	out = Replace(out, i.StyleMarker, parts[1])
	return out, nil
}

// Template returns the minified template. A missing file yields "".
func (i *Injector) Template(ctx context.Context, path string) (string, error) {
	body, ok, err := readOptional(path)
	if err != nil || !ok {
		return "", err
	}
	out, err := i.minifier.String("text/html", string(body))
	if err != nil {
		return "", fmt.Errorf("minify template %s: %w", filepath.Base(path), err)
	}
	logging.FromContext(ctx).DebugContext(ctx, "minified template",
		slog.String("path", path),
		slog.Int("before", len(body)),
		slog.Int("after", len(out)),
	)
	return out, nil
}

// Style returns the minified stylesheet, compiling Sass sources first.
// A missing file yields "".
func (i *Injector) Style(ctx context.Context, path string) (string, error) {
	body, ok, err := readOptional(path)
	if err != nil || !ok {
		return "", err
	}
	css := string(body)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".scss", ".sass":
		res, err := i.Runner.Run(ctx, toolexec.Command{
			Name: i.Sass,
			Args: []string{"--no-source-map", "--style=compressed", path},
			Dir:  filepath.Dir(path),
		})
		if err != nil {
			return "", fmt.Errorf("compile style %s: %w", filepath.Base(path), err)
		}
		css = res.Stdout
	}

	out, err := compile.MinifyCSS(css)
	if err != nil {
		return "", fmt.Errorf("minify style %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// Replace substitutes every occurrence of marker with value escaped for a
// JavaScript template literal.
func Replace(source, marker, value string) string {
	if marker == "" {
		return source
	}
	return strings.ReplaceAll(source, marker, Escape(value))
}

var templateEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`", "${", "\\${")

// Escape escapes s for use inside a JavaScript template literal.
func Escape(s string) string {
	return templateEscaper.Replace(s)
}

func readOptional(path string) ([]byte, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	body, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	return body, true, nil
}
