// Package repackage turns a zip source archive into the tar.gz build context
// kaniko reads from S3.
package repackage

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/go-archive"
	"github.com/moby/go-archive/compression"

	"github.com/replicate/kaniko-controller/internal/logging"
	"github.com/replicate/kaniko-controller/internal/storage"
)

const (
	zipExt   = ".zip"
	tarGzExt = ".tar.gz"
)

// Artifact is the uploaded build context.
type Artifact struct {
	Bucket string
	Key    string
}

func (a Artifact) Location() string {
	return storage.Location(a.Bucket, a.Key)
}

type Repackager struct {
	store      storage.ObjectStore
	stagingDir string
	logger     *logging.Logger
}

func New(store storage.ObjectStore, stagingDir string, logger *logging.Logger) *Repackager {
	return &Repackager{
		store:      store,
		stagingDir: stagingDir,
		logger:     logger.Named("repackage"),
	}
}

// TargetKey derives the build context key: a trailing ".zip" becomes
// ".tar.gz", anything else gets ".tar.gz" appended.
func TargetKey(sourceKey string) string {
	if strings.HasSuffix(strings.ToLower(sourceKey), zipExt) {
		sourceKey = sourceKey[:len(sourceKey)-len(zipExt)]
	}
	return sourceKey + tarGzExt
}

// Repackage downloads bucket/sourceKey, expands it and uploads it again as
// tar.gz next to the original. It never retries; a failed upload is simply
// overwritten by the next successful run.
func (r *Repackager) Repackage(ctx context.Context, bucket string, sourceKey string) (Artifact, error) {
	log := r.logger.Sugar().With("bucket", bucket, "key", sourceKey)
	log.Infow("repackaging source archive")

	staging, err := os.MkdirTemp(r.stagingDir, "repackage-")
	if err != nil {
		return Artifact{}, fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			log.Warnw("failed to remove staging directory", "path", staging, "error", err)
		}
	}()

	zipPath := filepath.Join(staging, "source.zip")
	if err := r.download(ctx, bucket, sourceKey, zipPath); err != nil {
		return Artifact{}, err
	}

	tree := filepath.Join(staging, "tree")
	count, err := extractZip(zipPath, tree)
	if err != nil {
		return Artifact{}, fmt.Errorf("expanding %s: %w", storage.Location(bucket, sourceKey), err)
	}
	log.Debugw("expanded source archive", "files", count)

	buildContext, err := archive.TarWithOptions(tree, &archive.TarOptions{Compression: compression.Gzip})
	if err != nil {
		return Artifact{}, fmt.Errorf("encoding build context: %w", err)
	}
	defer buildContext.Close()

	artifact := Artifact{Bucket: bucket, Key: TargetKey(sourceKey)}
	if err := r.store.Put(ctx, artifact.Bucket, artifact.Key, buildContext); err != nil {
		return Artifact{}, fmt.Errorf("uploading build context: %w", err)
	}

	log.Infow("uploaded build context", "location", artifact.Location())
	return artifact, nil
}

func (r *Repackager) download(ctx context.Context, bucket string, key string, dest string) error {
	body, err := r.store.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("downloading source archive: %w", err)
	}
	defer body.Close()

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, body); err != nil {
		return fmt.Errorf("downloading source archive: %w", err)
	}
	return file.Close()
}

// extractZip expands the archive at zipPath into dest and returns the number
// of files written. Entries that would land outside dest are rejected.
func extractZip(zipPath string, dest string) (int, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, err
	}

	count := 0
	for _, f := range reader.File {
		target, err := entryPath(dest, f.Name)
		if err != nil {
			return count, err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, err
			}
		case mode.IsRegular():
			if err := writeEntry(f, target, mode.Perm()); err != nil {
				return count, fmt.Errorf("extracting %s: %w", f.Name, err)
			}
			count++
		case mode&os.ModeSymlink != 0:
			// Links are not recreated; the entry's bytes (the link target)
			// become a plain file.
			if err := writeEntry(f, target, 0o644); err != nil {
				return count, fmt.Errorf("extracting %s: %w", f.Name, err)
			}
			count++
		default:
			return count, fmt.Errorf("unsupported entry %s with mode %s", f.Name, mode)
		}
	}
	return count, nil
}

func entryPath(dest string, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("entry %q has an absolute path", name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes the archive root", name)
	}
	return target, nil
}

func writeEntry(f *zip.File, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	return out.Close()
}
