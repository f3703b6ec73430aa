// Package manifest records sha256 digests of exported artifacts.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"example.com/klvgate/internal/common"
)

var ErrNotSealed = errors.New("manifest has no digest")

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
	// Digest covers the items present when Seal ran.
	Digest      string `json:"digest,omitempty"`
	DigestItems int    `json:"digestItems,omitempty"`

	baseDir string
}

// Build hashes paths. Item paths are stored relative to baseDir when they
// live beneath it.
func Build(baseDir string, paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256", Items: []Item{}, baseDir: baseDir}
	for _, p := range paths {
		if err := m.Add(p); err != nil {
			return m, err
		}
	}
	return m, nil
}

func (m *Manifest) Add(path string) error {
	sum, size, err := common.Sha256OfFile(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	m.Items = append(m.Items, Item{Path: m.rel(path), Size: size, Sha256: sum, Type: artifactType(path)})
	return nil
}

func (m *Manifest) rel(path string) string {
	if m.baseDir == "" {
		return filepath.ToSlash(path)
	}
	r, err := filepath.Rel(m.baseDir, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(r)
}

// Seal computes the digest over the current items: sha256 of the
// "<sha256>  <path>\n" lines sorted by path.
func (m *Manifest) Seal() string {
	m.Digest = listingDigest(m.Items)
	m.DigestItems = len(m.Items)
	return m.Digest
}

func listingDigest(items []Item) string {
	sorted := append([]Item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	var b strings.Builder
	for _, it := range sorted {
		fmt.Fprintf(&b, "%s  %s\n", it.Sha256, it.Path)
	}
	return common.Sha256OfBytes([]byte(b.String()))
}

// Verify re-hashes every item under baseDir and returns the paths whose
// content changed or vanished, then checks the sealed digest.
func Verify(m Manifest, baseDir string) ([]string, error) {
	var changed []string
	for _, it := range m.Items {
		p := filepath.FromSlash(it.Path)
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		sum, _, err := common.Sha256OfFile(p)
		if err != nil || sum != it.Sha256 {
			changed = append(changed, it.Path)
		}
	}
	if m.Digest == "" {
		return changed, ErrNotSealed
	}
	n := m.DigestItems
	if n > len(m.Items) {
		n = len(m.Items)
	}
	if got := listingDigest(m.Items[:n]); got != m.Digest {
		return changed, fmt.Errorf("digest %s does not match listing %s", m.Digest, got)
	}
	return changed, nil
}

func artifactType(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".stac.json"):
		return "stac"
	case hasExt(lower, ".klv", ".bin"):
		return "klv"
	case hasExt(lower, ".jsonl"):
		return "editlog"
	case hasExt(lower, ".json"):
		return "json"
	case hasExt(lower, ".csv"):
		return "csv"
	case hasExt(lower, ".txt"):
		return "text"
	case hasExt(lower, ".pdf"):
		return "pdf"
	case hasExt(lower, ".prom"):
		return "metrics"
	}
	return "other"
}

func hasExt(path string, exts ...string) bool {
	for _, e := range exts {
		if strings.HasSuffix(path, e) {
			return true
		}
	}
	return false
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, append(b, '\n'), 0o644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
