package builtin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"elemforge/internal/archive"
	"elemforge/internal/npm"
	"elemforge/internal/tasks"
)

type ArchiveTask struct {
	prefix string
}

func (t *ArchiveTask) ID() string { return IDArchive }

func (t *ArchiveTask) Title() string { return "Release Archive" }

func (t *ArchiveTask) Description() string {
	return "Packs the dist directory into <temp_dir>/<name>-<version>.tgz, the asset\n" +
		"attached to GitHub releases. The archive is byte-for-byte reproducible.\n\n" +
		"Options:\n" +
		"- prefix: top-level directory inside the archive (default package)"
}

func (t *ArchiveTask) Dependencies() []string { return []string{IDBuildModule, IDBuildScript} }

func (t *ArchiveTask) Options() []tasks.Option {
	return []tasks.Option{
		{Name: "prefix", Description: "Top-level directory inside the archive.", Default: "package"},
	}
}

func (t *ArchiveTask) Configure(opts map[string]string) error {
	t.prefix = "package"
	if v, ok := opts["prefix"]; ok {
		t.prefix = strings.Trim(strings.TrimSpace(v), "/")
	}
	return nil
}

// ArchivePath is where the archive task writes the release archive.
func ArchivePath(root, tempDir, name, version string) string {
	p := filepath.Join(tempDir, fmt.Sprintf("%s-%s.tgz", name, version))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func (t *ArchiveTask) Run(ctx context.Context, env *tasks.Env) (tasks.Result, error) {
	cfg := env.Config
	version := "0.0.0"
	if m, err := npm.ReadManifest(env.Path(npm.ManifestFile)); err == nil && m.Version() != "" {
		version = m.Version()
	}
	dst := ArchivePath(cfg.Project.Root, cfg.Project.TempDir, cfg.Project.Name, version)

	entries, err := archive.TarGz(dst, env.Path(cfg.Project.DistDir), t.prefix)
	if err != nil {
		return tasks.Result{}, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	rel, err := filepath.Rel(cfg.Project.Root, dst)
	if err != nil {
		rel = dst
	}
	return tasks.PassResultWithArtifacts(t.ID(),
		fmt.Sprintf("%d file(s), %s uncompressed", len(entries), FormatBytes(total)),
		[]string{filepath.ToSlash(rel)},
		map[string]any{"version": version, "files": len(entries)},
	), nil
}

func init() {
	tasks.Register(&ArchiveTask{prefix: "package"})
}
