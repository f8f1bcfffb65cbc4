package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// DownloadURL is the mirror used for the MNIST IDX files.
var DownloadURL = "https://storage.googleapis.com/cvdf-datasets/mnist"

type remoteFile struct {
	Name   string
	SHA256 string
}

// mnistFiles lists the gzip'd IDX files with their published sha256.
var mnistFiles = []remoteFile{
	{"train-images-idx3-ubyte.gz", "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609"},
	{"train-labels-idx1-ubyte.gz", "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c"},
	{"t10k-images-idx3-ubyte.gz", "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6"},
	{"t10k-labels-idx1-ubyte.gz", "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaaeaaf2e6a1e5e09c"},
}

// Download fetches the MNIST files into dir, skipping the ones already present,
// and verifies the sha256 of each.
func Download(ctx context.Context, dir string) error {
	dir = ReplaceTildeInDir(dir)
	if _, err := DiscoverFiles(dir); err == nil {
		return nil
	}
	for _, file := range mnistFiles {
		fileURL, err := url.JoinPath(DownloadURL, file.Name)
		if err != nil {
			return errors.Wrapf(err, "build URL for %q", file.Name)
		}
		if err := DownloadIfMissing(ctx, fileURL, filepath.Join(dir, file.Name), file.SHA256); err != nil {
			return err
		}
	}
	return nil
}

// DownloadIfMissing downloads url to filePath unless the file exists.
// If checkHash is given, the file's sha256 must match it.
func DownloadIfMissing(ctx context.Context, url, filePath, checkHash string) error {
	if !FileExists(filePath) {
		klog.Infof("Downloading %s ...", url)
		size, err := downloadFile(ctx, url, filePath, true)
		if err != nil {
			return err
		}
		klog.V(1).Infof("wrote %s to %s", humanize.Bytes(uint64(size)), filePath)
	}
	if checkHash == "" {
		return nil
	}
	return ValidateChecksum(filePath, checkHash)
}

func downloadFile(ctx context.Context, url, filePath string, showProgressBar bool) (size int64, err error) {
	if err = os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return 0, errors.Wrapf(err, "create directory for %q", filePath)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "build request for %q", url)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("downloading %q: HTTP status %s", url, resp.Status)
	}

	// Write to a temporary name so an interrupted download is not mistaken for a complete file.
	tmpPath := filePath + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating file %q", tmpPath)
	}
	var dst io.Writer = file
	var bar *progressbar.ProgressBar
	if showProgressBar {
		bar = progressbar.DefaultBytes(resp.ContentLength, filepath.Base(filePath))
		dst = io.MultiWriter(file, bar)
	}
	size, err = io.Copy(dst, resp.Body)
	if bar != nil {
		_ = bar.Close()
		fmt.Println()
	}
	if cErr := file.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "downloading %q to %q", url, filePath)
	}
	if err = os.Rename(tmpPath, filePath); err != nil {
		return 0, errors.Wrapf(err, "rename %q", tmpPath)
	}
	return size, nil
}

// ValidateChecksum verifies the sha256 of the file at path. On mismatch the file is removed.
func ValidateChecksum(path, checkHash string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %q", path)
	}
	hasher := sha256.New()
	_, err = io.Copy(hasher, f)
	_ = f.Close()
	if err != nil {
		return errors.Wrapf(err, "hash %q", path)
	}
	fileHash := hex.EncodeToString(hasher.Sum(nil))
	if fileHash != strings.ToLower(checkHash) {
		if rmErr := os.Remove(path); rmErr != nil {
			klog.Warningf("failed to remove %q, which failed the checksum test: %v", path, rmErr)
		}
		return errors.Errorf("file %q sha256 hash is %q, but expected %q, deleting file", path, fileHash, checkHash)
	}
	return nil
}
