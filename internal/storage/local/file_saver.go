package local

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// FileSaver performs the save-as-file action into a directory. Saving the
// same name again replaces the previous file.
type FileSaver struct {
	dir string
}

// NewFileSaver returns a FileSaver writing into dir, creating it if needed.
func NewFileSaver(dir string) (*FileSaver, error) {
	if err := ensureWritableDir(dir); err != nil {
		return nil, err
	}
	return &FileSaver{dir: dir}, nil
}

// Save writes data to dir/filename and returns the absolute path.
func (s *FileSaver) Save(ctx context.Context, filename string, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("save canceled: %w", err)
	}
	name := strings.TrimSpace(filename)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	fullPath := filepath.Join(s.dir, name)
	if err := writeAtomic(fullPath, data); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(fullPath)
	if err != nil {
		return fullPath, nil
	}
	return abs, nil
}
