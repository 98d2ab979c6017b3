package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/common"
)

// AllowedExt reports whether the loader understands files with ext.
func AllowedExt(ext string) bool {
	return constants.MapExtToFormat(ext) != ""
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// Fingerprint identifies a document's content.
type Fingerprint struct {
	SHA256 string // hex
	XXHash uint64
	Size   int64
}

// Short is the xxhash as 16 hex digits.
func (f Fingerprint) Short() string { return fmt.Sprintf("%016x", f.XXHash) }

// FingerprintFile hashes path with sha256 (stored in the audit trail) and
// xxhash (cheap change detection) in one pass.
func FingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, common.EnvironmentError("open "+path, err)
	}
	defer f.Close()

	sh := sha256.New()
	xh := xxhash.New()
	n, err := io.Copy(io.MultiWriter(sh, xh), f)
	if err != nil {
		return Fingerprint{}, common.EnvironmentError("hash "+path, err)
	}
	return Fingerprint{SHA256: hex.EncodeToString(sh.Sum(nil)), XXHash: xh.Sum64(), Size: n}, nil
}
