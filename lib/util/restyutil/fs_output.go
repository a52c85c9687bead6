package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Output receives one rendered http exchange per response.
type Output interface {
	Write(id string, contents string)
}

// DirectoryOutput writes every exchange to its own file under a directory.
type DirectoryOutput struct {
	directory string
}

// NewDirectoryOutput empties dir (creating it when missing) and writes into it.
func NewDirectoryOutput(dir string) (DirectoryOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return DirectoryOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return DirectoryOutput{}, err
	}
	return DirectoryOutput{directory: dir}, nil
}

func (o DirectoryOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id+".http"), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write http exchange", "id", id, "err", err)
	}
}
