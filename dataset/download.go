package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// MirrorURL serves the gzip files; overridable for tests and offline mirrors.
var MirrorURL = "https://ossci-datasets.s3.amazonaws.com/mnist/"

// sha256 of the published gzip files
var digests = map[string]string{
	testImagesFile:  "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6",
	testLabelsFile:  "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6",
	trainImagesFile: "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609",
	trainLabelsFile: "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c",
}

var httpClient = &http.Client{Timeout: 5 * time.Minute}

// Download fetches one MNIST gzip file into root and checks its digest.
// the file only appears under its final name once the digest matched.
func Download(root, name string) error {
	want, ok := digests[name]
	if !ok {
		return fmt.Errorf("mnist: no known digest for %s", name)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("mnist: create %s: %w", root, err)
	}

	url := MirrorURL + name
	log.Printf("downloading %s", url)
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("mnist: download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mnist: download %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(root, name+".part-*")
	if err != nil {
		return fmt.Errorf("mnist: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("mnist: download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("mnist: %w", err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		return fmt.Errorf("mnist: file hash for %s is incorrect: got %s, want %s", name, got, want)
	}
	return os.Rename(tmp.Name(), filepath.Join(root, name))
}
