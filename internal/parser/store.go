package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/common"
)

// Store persists one program per source at <dir>/<source>_parser.json.
type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = constants.DefaultParsersDir
	}
	return &Store{dir: dir, logger: logger}
}

// Path is where source's program lives.
func (s *Store) Path(source string) string {
	return filepath.Join(s.dir, source+constants.ParserSuffix)
}

// Save writes p atomically and returns its path.
func (s *Store) Save(p *Program) (string, error) {
	if err := p.Check(); err != nil {
		return "", err
	}
	b, err := p.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal program: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", common.EnvironmentError("create parsers dir "+s.dir, err)
	}
	path := s.Path(p.Source)
	tmp, err := os.CreateTemp(s.dir, "."+p.Source+"-*.tmp")
	if err != nil {
		return "", common.EnvironmentError("create temp file in "+s.dir, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", common.EnvironmentError("replace "+path, err)
	}
	s.logger.Debug("parser.store.saved", "path", path, "extractor", Identity(p))
	return path, nil
}

// Load reads source's program. A missing file matches common.ErrNotFound.
func (s *Store) Load(source string) (*Program, error) {
	path := s.Path(source)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("program %s: %w", path, common.ErrNotFound)
	}
	if err != nil {
		return nil, common.EnvironmentError("read "+path, err)
	}
	p, err := ParseProgram(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
