package bundle

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dnswlt/miixkit/internal/gitinfo"
	"github.com/dnswlt/miixkit/internal/store"
	"github.com/klauspost/compress/gzip"
)

// SourceDateEnv overrides the modification time of all archive entries
// (seconds since the Unix epoch), see https://reproducible-builds.org/specs/source-date-epoch/.
const SourceDateEnv = "SOURCE_DATE_EPOCH"

// Archive describes a written archive.
type Archive struct {
	Path     string
	Checksum string // hex SHA-256 of the compressed file
	Size     int64
	Entries  []string
}

// SourceDate returns the timestamp used for archive entries of the project
// in projectPath: SOURCE_DATE_EPOCH if set, else the committer time of the
// project's git HEAD, else the Unix epoch. Projects outside a repository
// and repositories without commits get the epoch.
func SourceDate(projectPath string) (time.Time, error) {
	if v := os.Getenv(SourceDateEnv); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s %q: %v", SourceDateEnv, v, err)
		}
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := gitinfo.HeadCommitTime(projectPath)
	if err == nil {
		return t.UTC().Truncate(time.Second), nil
	}
	if !errors.Is(err, gitinfo.ErrNoRepository) && !errors.Is(err, gitinfo.ErrNoCommits) {
		return time.Time{}, err
	}
	return time.Unix(0, 0).UTC(), nil
}

// WriteArchive writes a gzip-compressed tar of all regular files in st to w.
// The output only depends on the file names, contents and executable bits:
// entries are sorted, owners are cleared, and every entry gets modTime.
func WriteArchive(w io.Writer, st *store.DiskStore, modTime time.Time) ([]string, error) {
	files, err := st.ListFiles("")
	if err != nil {
		return nil, fmt.Errorf("failed to list output files: %w", err)
	}

	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(gz)
	modTime = modTime.UTC().Truncate(time.Second)

	var entries []string
	for _, name := range withDirs(files) {
		if strings.HasSuffix(name, "/") {
			err = tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     name,
				Mode:     0755,
				ModTime:  modTime,
			})
			if err != nil {
				return nil, err
			}
			entries = append(entries, name)
			continue
		}
		if err := writeFileEntry(tw, st, name, modTime); err != nil {
			return nil, err
		}
		entries = append(entries, name)
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return entries, nil
}

func writeFileEntry(tw *tar.Writer, st *store.DiskStore, name string, modTime time.Time) error {
	full, err := st.Resolve(name)
	if err != nil {
		return err
	}
	f, err := os.Open(full)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}

	var mode int64 = 0644
	if fi.Mode().Perm()&0111 != 0 {
		mode = 0755
	}
	err = tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     fi.Size(),
		Mode:     mode,
		ModTime:  modTime,
	})
	if err != nil {
		return fmt.Errorf("failed to write header for %s: %w", name, err)
	}
	if _, err := io.CopyN(tw, f, fi.Size()); err != nil {
		return fmt.Errorf("failed to archive %s: %w", name, err)
	}
	return nil
}

// withDirs returns files plus an entry "dir/" for every parent directory,
// sorted. A directory always sorts before its contents.
func withDirs(files []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, f := range files {
		for d := path.Dir(f); d != "."; d = path.Dir(d) {
			if seen[d] {
				break
			}
			seen[d] = true
			result = append(result, d+"/")
		}
		result = append(result, f)
	}
	slices.Sort(result)
	return result
}

// CreateArchive writes the archive of outputDir to target. A partially
// written target is removed on error.
func CreateArchive(target, outputDir string, modTime time.Time) (_ *Archive, err error) {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(target)
		}
	}()

	h := sha256.New()
	cw := &countingWriter{w: io.MultiWriter(f, h)}
	entries, err := WriteArchive(cw, store.NewDiskStore(outputDir), modTime)
	if err != nil {
		return nil, err
	}
	return &Archive{
		Path:     target,
		Checksum: hex.EncodeToString(h.Sum(nil)),
		Size:     cw.n,
		Entries:  entries,
	}, nil
}

// List returns the names of all entries in the archive at path, in archive order.
func List(archivePath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, hdr.Name)
	}
	return names, nil
}

// Verify recomputes the SHA-256 of the file at path and compares it to checksum.
func Verify(archivePath, checksum string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != checksum {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", archivePath, got, checksum)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
