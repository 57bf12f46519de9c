// ABOUTME: Pure-Go extraction of zip and tar archives (plain, gzip, xz, zstd)
// ABOUTME: Rejects entries that would land outside the destination and skips links

package archive

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"

	"github.com/2389/vitrine/internal/errs"
)

// Format identifies an archive container.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatTarGz
	FormatTarXz
	FormatTarZst
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGz:
		return "tar.gz"
	case FormatTarXz:
		return "tar.xz"
	case FormatTarZst:
		return "tar.zst"
	default:
		return "unknown"
	}
}

// maxEntryBytes caps a single extracted file.
const maxEntryBytes = 256 << 20

// DetectFormat picks the format from the file name and falls back to magic bytes.
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, _ := io.ReadFull(f, header)
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, []byte("PK\x03\x04")), bytes.HasPrefix(header, []byte("PK\x05\x06")):
		return FormatZip, nil
	case bytes.HasPrefix(header, []byte{0x1f, 0x8b}):
		return FormatTarGz, nil
	case bytes.HasPrefix(header, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return FormatTarXz, nil
	case bytes.HasPrefix(header, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		return FormatTarZst, nil
	case len(header) >= 262 && string(header[257:262]) == "ustar":
		return FormatTar, nil
	}
	return FormatUnknown, fmt.Errorf("unsupported archive format: %s", filepath.Base(path))
}

// Extract unpacks archivePath into destDir, which must already exist.
func Extract(archivePath, destDir string) error {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return err
	}

	dest, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("resolving destination: %w", err)
	}

	if format == FormatZip {
		return extractZip(archivePath, dest)
	}
	return extractTar(archivePath, dest, format)
}

// ExtractAndNormalize unpacks the archive and flattens a single wrapper directory.
// Every failure is reported as errs.ErrExtraction; cleanup is the caller's job.
func ExtractAndNormalize(archivePath, destDir string) error {
	if err := Extract(archivePath, destDir); err != nil {
		return errs.Wrap(errs.ErrExtraction, filepath.Base(archivePath), err)
	}
	if err := Normalize(destDir); err != nil {
		return errs.Wrap(errs.ErrExtraction, "normalizing layout", err)
	}
	return nil
}

// targetPath joins name onto dest and refuses anything that escapes it.
func targetPath(dest, name string) (string, error) {
	p := filepath.Join(dest, filepath.FromSlash(name))
	if p != dest && !strings.HasPrefix(p, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return p, nil
}

// skipEntry reports whether an entry is OS metadata rather than theme content.
func skipEntry(name string) bool {
	clean := strings.TrimPrefix(filepath.ToSlash(name), "./")
	if clean == "__MACOSX" || strings.HasPrefix(clean, "__MACOSX/") {
		return true
	}
	return filepath.Base(clean) == ".DS_Store"
}

func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if skipEntry(f.Name) {
			continue
		}

		fpath, err := targetPath(dest, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		if mode&os.ModeSymlink != 0 {
			continue
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return fmt.Errorf("creating dir %s: %w", f.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
			return fmt.Errorf("creating parent dir for %s: %w", f.Name, err)
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening zip entry %s: %w", f.Name, err)
		}
		err = writeFile(fpath, rc, mode.Perm())
		rc.Close()
		if err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractTar(src, dest string, format Format) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch format {
	case FormatTarGz:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case FormatTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("creating xz reader: %w", err)
		}
		r = xr
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("creating zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case FormatTar:
	default:
		return fmt.Errorf("unsupported archive format: %s", format)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}

		if skipEntry(hdr.Name) {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			p, err := targetPath(dest, hdr.Name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(p, 0755); err != nil {
				return fmt.Errorf("creating dir %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			p, err := targetPath(dest, hdr.Name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
				return fmt.Errorf("creating parent dir for %s: %w", hdr.Name, err)
			}
			if err := writeFile(p, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return fmt.Errorf("writing %s: %w", hdr.Name, err)
			}
		default:
			// Links, devices and PAX headers carry no theme content
		}
	}
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0600)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(r, maxEntryBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n > maxEntryBytes {
		return fmt.Errorf("entry exceeds %d bytes", maxEntryBytes)
	}
	return nil
}
