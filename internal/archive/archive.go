// Package archive writes the reproducible dist tarball attached to releases.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
)

// epoch is stamped on every entry so identical inputs give identical bytes.
var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type Entry struct {
	Name string
	Size int64
}

// TarGz writes the regular files under dir, sorted by path, into a gzipped
// tarball at dst. Entry names are prefixed with prefix/ when prefix is set.
func TarGz(dst, dir, prefix string) ([]Entry, error) {
	files, err := collect(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	entries, err := Write(f, dir, prefix, files)
	if err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return entries, nil
}

// Write streams the named files (slash-separated, relative to dir) to w.
func Write(w io.Writer, dir, prefix string, files []string) ([]Entry, error) {
	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	gz.ModTime = epoch
	tw := tar.NewWriter(gz)

	entries := make([]Entry, 0, len(files))
	for _, rel := range files {
		name := rel
		if prefix != "" {
			name = path.Join(prefix, rel)
		}
		size, err := addFile(tw, filepath.Join(dir, filepath.FromSlash(rel)), name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: name, Size: size})
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finish tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finish gzip: %w", err)
	}
	return entries, nil
}

func addFile(tw *tar.Writer, src, name string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     info.Size(),
		Mode:     0o644,
		ModTime:  epoch,
	}
	if info.Mode()&0o111 != 0 {
		hdr.Mode = 0o755
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	return info.Size(), nil
}

func collect(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
