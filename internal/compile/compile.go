// Package compile drives esbuild for the two distributions of a component:
// an ES module and a global script that reads its imports from, and writes
// its exports to, a namespace object.
package compile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"elemforge/internal/esm"
	"elemforge/internal/logging"
)

// BuildModule bundles source (the injected entry) into the ES module output.
// Bare package imports stay external.
func BuildModule(ctx context.Context, source string, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	target, err := parseTarget(opts.ModuleTarget)
	if err != nil {
		return Result{}, err
	}

	res := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   source,
			ResolveDir: filepath.Dir(opts.Entry),
			Sourcefile: filepath.Base(opts.Entry),
			Loader:     api.LoaderTS,
		},
		AbsWorkingDir:     opts.Root,
		Outfile:           opts.ModuleOutfile(),
		Bundle:            true,
		Packages:          api.PackagesExternal,
		Format:            api.FormatESModule,
		Platform:          api.PlatformBrowser,
		Target:            target,
		MinifyWhitespace:  opts.Minify,
		MinifySyntax:      opts.Minify,
		MinifyIdentifiers: opts.Minify,
		Sourcemap:         sourcemap(opts.Sourcemap),
		Metafile:          true,
		Write:             true,
		LogLevel:          api.LogLevelSilent,
	})
	return finish(ctx, "module", res)
}

// BuildScript produces the global-script output:
// TypeScript is stripped, imports and exports are rewritten onto the
// namespace, the result is written to the temp dir and then bundled as a
// minified IIFE.
func BuildScript(ctx context.Context, source string, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	target, err := parseTarget(opts.ScriptTarget)
	if err != nil {
		return Result{}, err
	}

	stripped := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderTS,
		Target:     api.ESNext,
		Sourcefile: filepath.Base(opts.Entry),
		LogLevel:   api.LogLevelSilent,
	})
	if err := stageError("script transform", stripped.Errors); err != nil {
		return Result{}, err
	}

	rewritten, err := Rewrite(string(stripped.Code), opts)
	if err != nil {
		return Result{}, err
	}

	tmp := opts.ScriptTempfile()
	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		return Result{}, fmt.Errorf("create temp dir: %w", err)
	}
	if err := os.WriteFile(tmp, []byte(rewritten), 0o644); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", tmp, err)
	}
	logging.FromContext(ctx).DebugContext(ctx, "rewrote script source", slog.String("path", tmp))

	res := api.Build(api.BuildOptions{
		EntryPoints:       []string{tmp},
		AbsWorkingDir:     opts.Root,
		Outfile:           opts.ScriptOutfile(),
		Bundle:            true,
		Format:            api.FormatIIFE,
		Platform:          api.PlatformBrowser,
		Target:            target,
		MinifyWhitespace:  opts.Minify,
		MinifySyntax:      opts.Minify,
		MinifyIdentifiers: opts.Minify,
		Sourcemap:         sourcemap(opts.Sourcemap),
		Metafile:          true,
		Write:             true,
		LogLevel:          api.LogLevelSilent,
	})
	out, err := finish(ctx, "script", res)
	if err != nil {
		return Result{}, err
	}
	out.Warnings = append(warningStrings(stripped.Warnings), out.Warnings...)
	return out, nil
}

// Rewrite applies the namespace rewrite to already-stripped JavaScript.
func Rewrite(code string, opts Options) (string, error) {
	eo := esm.Options{Namespace: opts.Namespace}
	if p := strings.TrimSpace(opts.ImportPrefix); p != "" {
		eo.ImportRule = esm.PrefixRule(p)
	}
	out, err := esm.Transform(code, eo)
	if err != nil {
		return "", fmt.Errorf("rewrite %s: %w", filepath.Base(opts.Entry), err)
	}
	return out, nil
}

// BuildDocs bundles the documentation entry and copies a sibling index.html.
func BuildDocs(ctx context.Context, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if _, err := os.Stat(opts.DocsEntry); err != nil {
		return Result{}, fmt.Errorf("docs entry: %w", err)
	}

	res := api.Build(api.BuildOptions{
		EntryPoints:       []string{opts.DocsEntry},
		AbsWorkingDir:     opts.Root,
		Outdir:            opts.DocsOutDir,
		Bundle:            true,
		Format:            api.FormatESModule,
		Platform:          api.PlatformBrowser,
		Target:            api.ES2017,
		MinifyWhitespace:  opts.Minify,
		MinifySyntax:      opts.Minify,
		MinifyIdentifiers: opts.Minify,
		Metafile:          true,
		Write:             true,
		LogLevel:          api.LogLevelSilent,
	})
	out, err := finish(ctx, "docs", res)
	if err != nil {
		return Result{}, err
	}

	page := filepath.Join(filepath.Dir(opts.DocsEntry), "index.html")
	if body, err := os.ReadFile(page); err == nil {
		dst := filepath.Join(opts.DocsOutDir, "index.html")
		if err := os.WriteFile(dst, body, 0o644); err != nil {
			return Result{}, fmt.Errorf("copy docs page: %w", err)
		}
		rel, _ := filepath.Rel(opts.Root, dst)
		out.Outputs = append(out.Outputs, Output{Path: filepath.ToSlash(rel), Bytes: int64(len(body))})
	}
	return out, nil
}

// MinifyCSS minifies a stylesheet.
func MinifyCSS(css string) (string, error) {
	res := api.Transform(css, api.TransformOptions{
		Loader:           api.LoaderCSS,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LogLevel:         api.LogLevelSilent,
	})
	if err := stageError("css", res.Errors); err != nil {
		return "", err
	}
	return strings.TrimRight(string(res.Code), "\n"), nil
}

func finish(ctx context.Context, stage string, res api.BuildResult) (Result, error) {
	if err := stageError(stage, res.Errors); err != nil {
		return Result{}, err
	}
	outputs, err := Outputs(res.Metafile)
	if err != nil {
		return Result{}, err
	}
	out := Result{Outputs: outputs, Warnings: warningStrings(res.Warnings)}
	logging.FromContext(ctx).DebugContext(ctx, "esbuild finished",
		slog.String("stage", stage),
		slog.Int("outputs", len(out.Outputs)),
		slog.Int64("bytes", out.TotalBytes()),
	)
	return out, nil
}
