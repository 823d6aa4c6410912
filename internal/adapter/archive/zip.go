package archive

import (
	"archive/zip"
	"compress/flate"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/semmidev/cloudvault/internal/domain"
)

type ZipArchiver struct{}

func NewZip() *ZipArchiver {
	return &ZipArchiver{}
}

// SelectFiles walks sourceDir and returns the slash separated relative paths
// of the regular files the policy selects, in walk order. Symlinks and other
// non-regular entries are skipped.
func (z *ZipArchiver) SelectFiles(sourceDir string, policy domain.SelectionPolicy) ([]string, error) {
	var files []string

	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if policy.Type != domain.BackupFull {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if !info.ModTime().After(policy.Since) {
				return nil
			}
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to walk %s: %w", domain.ErrArchiveFailure, sourceDir, err)
	}

	return files, nil
}

// Build writes files (relative to sourceDir) into a single zip at destPath.
// Compression is either maximal or store-only.
func (z *ZipArchiver) Build(sourceDir string, files []string, destPath string, compress bool) (err error) {
	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create dest file: %w", domain.ErrArchiveFailure, err)
	}
	defer func() {
		if cerr := destFile.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: failed to close dest file: %w", domain.ErrArchiveFailure, cerr)
		}
	}()

	zw := zip.NewWriter(destFile)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	method := zip.Store
	if compress {
		method = zip.Deflate
	}

	for _, name := range files {
		if err := addFile(zw, filepath.Join(sourceDir, filepath.FromSlash(name)), name, method); err != nil {
			zw.Close()
			return fmt.Errorf("%w: %w", domain.ErrArchiveFailure, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: failed to finalize archive: %w", domain.ErrArchiveFailure, err)
	}
	return nil
}

func addFile(zw *zip.Writer, srcPath, name string, method uint16) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", srcPath, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create header for %s: %w", srcPath, err)
	}
	header.Name = name
	header.Method = method

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to write header for %s: %w", srcPath, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to copy %s: %w", srcPath, err)
	}
	return nil
}

// Extract unpacks archivePath into targetDir. Entries that would land outside
// targetDir are rejected. Files extracted before a failure are left in place.
func (z *ZipArchiver) Extract(archivePath, targetDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: failed to open archive: %w", domain.ErrArchiveFailure, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		destPath, err := destination(targetDir, f.Name)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrArchiveFailure, err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return fmt.Errorf("%w: failed to create directory: %w", domain.ErrArchiveFailure, err)
			}
			continue
		}

		if err := extractFile(f, destPath); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrArchiveFailure, err)
		}
	}
	return nil
}

func destination(targetDir, name string) (string, error) {
	root := filepath.Clean(targetDir)
	destPath := filepath.Join(root, filepath.FromSlash(name))
	if destPath != root && !strings.HasPrefix(destPath, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal path in archive: %s", name)
	}
	return destPath, nil
}

func extractFile(f *zip.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0200)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", destPath, err)
	}

	if err := os.Chtimes(destPath, f.Modified, f.Modified); err != nil {
		return fmt.Errorf("failed to restore modification time of %s: %w", destPath, err)
	}
	return nil
}
