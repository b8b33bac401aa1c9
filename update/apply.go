package update

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Apply downloads the release binary next to the running executable,
// verifies its checksum and swaps it into place. The swap is two
// renames on the same filesystem; on failure the previous binary is
// restored.
func Apply(rel *Release) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return fmt.Errorf("resolve symlinks: %w", err)
	}

	tmpPath, hash, err := download(rel.AssetURL, filepath.Dir(execPath))
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	if rel.ChecksumURL != "" {
		want, err := fetchExpectedHash(rel.ChecksumURL, assetName())
		if err != nil {
			return fmt.Errorf("fetch checksums: %w", err)
		}
		if hash != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", hash[:12], want[:12])
		}
	}

	if err := os.Chmod(tmpPath, 0755); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}

	oldPath := execPath + ".old"
	if err := os.Rename(execPath, oldPath); err != nil {
		return fmt.Errorf("backup current binary: %w", err)
	}
	if err := os.Rename(tmpPath, execPath); err != nil {
		_ = os.Rename(oldPath, execPath)
		return fmt.Errorf("install new binary: %w", err)
	}
	_ = os.Remove(oldPath)
	return nil
}

// download fetches url into a temp file inside dir and returns the
// temp path and the hex SHA-256 of its contents.
func download(url, dir string) (string, string, error) {
	tmpFile, err := os.CreateTemp(dir, "."+BinaryName+"-update-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	fail := func(err error) (string, string, error) {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", "", err
	}

	resp, err := http.Get(url)
	if err != nil {
		return fail(fmt.Errorf("download binary: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fail(fmt.Errorf("download binary: %s", resp.Status))
	}

	hasher := sha256.New()
	src := io.Reader(resp.Body)
	if resp.ContentLength > 0 {
		src = &progressReader{r: resp.Body, total: resp.ContentLength}
	}
	if _, err := io.Copy(io.MultiWriter(tmpFile, hasher), src); err != nil {
		return fail(fmt.Errorf("write binary: %w", err))
	}
	if resp.ContentLength > 0 {
		fmt.Fprintln(os.Stderr)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", "", fmt.Errorf("write binary: %w", err)
	}
	return tmpPath, hex.EncodeToString(hasher.Sum(nil)), nil
}

type progressReader struct {
	r     io.Reader
	total int64
	read  int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	pct := float64(p.read) / float64(p.total) * 100
	fmt.Fprintf(os.Stderr, "\r  %.0f%% (%d / %d KB)", pct, p.read/1024, p.total/1024)
	return n, err
}

// fetchExpectedHash finds filename's hash in a "<hash>  <name>" per
// line checksum manifest.
func fetchExpectedHash(checksumURL, filename string) (string, error) {
	resp, err := http.Get(checksumURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("checksums: %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) == 2 && parts[1] == filename {
			return parts[0], nil
		}
	}
	return "", fmt.Errorf("no checksum for %s", filename)
}
