// Package ingest resolves a source id to its statement document and ground
// truth on disk, fingerprints documents, and watches asset directories.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/common"
)

// Assets are the explicit input paths of one source.
type Assets struct {
	Source   string
	Dir      string
	Document string
	Truth    string
}

// docPreference orders document formats when several samples exist.
var docPreference = []string{"pdf", "xlsx", "csv", "txt"}

// Locate finds <dataDir>/<source>/<source>_sample.* and result.csv. A sample
// named after the source wins over any other document in the directory.
func Locate(dataDir, source string) (Assets, error) {
	a := Assets{Source: source, Dir: filepath.Join(dataDir, source)}
	if source == "" || strings.ContainsAny(source, `/\`) || source == "." || source == ".." {
		return a, fmt.Errorf("%w: bad source %q", common.ErrInvalidInput, source)
	}
	entries, err := os.ReadDir(a.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return a, common.EnvironmentError("source directory "+a.Dir, common.ErrNotFound)
	}
	if err != nil {
		return a, common.EnvironmentError("read "+a.Dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || IsHidden(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	slices.Sort(files)

	if a.Document = pickDocument(files, source); a.Document == "" {
		return a, common.EnvironmentError("no statement document in "+a.Dir, common.ErrNotFound)
	}
	a.Document = filepath.Join(a.Dir, a.Document)
	if a.Truth = pickTruth(files); a.Truth == "" {
		return a, common.EnvironmentError("no "+constants.GroundTruthName+".csv in "+a.Dir, common.ErrNotFound)
	}
	a.Truth = filepath.Join(a.Dir, a.Truth)
	return a, nil
}

func pickDocument(files []string, source string) string {
	prefix := strings.ToLower(source + constants.SampleSuffix)
	var samples, others []string
	for _, f := range files {
		if !AllowedExt(filepath.Ext(f)) || isTruth(f) {
			continue
		}
		if strings.HasPrefix(strings.ToLower(f), prefix) {
			samples = append(samples, f)
		} else {
			others = append(others, f)
		}
	}
	for _, group := range [][]string{samples, others} {
		for _, ext := range docPreference {
			for _, f := range group {
				if constants.NormalizeExt(filepath.Ext(f)) == ext {
					return f
				}
			}
		}
	}
	return ""
}

func isTruth(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), constants.GroundTruthName)
}

func pickTruth(files []string) string {
	exact := constants.GroundTruthName + ".csv"
	if slices.Contains(files, exact) {
		return exact
	}
	for _, f := range files {
		if isTruth(f) && constants.NormalizeExt(filepath.Ext(f)) == "csv" {
			return f
		}
	}
	return ""
}

// Discover lists every source under dataDir whose assets resolve. Sources
// that do not resolve are returned in failed with their error.
func Discover(dataDir string) (found []Assets, failed map[string]error, err error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, nil, common.EnvironmentError("read "+dataDir, err)
	}
	failed = map[string]error{}
	for _, e := range entries {
		if !e.IsDir() || IsHidden(e.Name()) {
			continue
		}
		a, err := Locate(dataDir, e.Name())
		if err != nil {
			failed[e.Name()] = err
			continue
		}
		found = append(found, a)
	}
	return found, failed, nil
}
