package tests

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetProjectRootPath walks up from the working directory to the directory holding go.mod.
func GetProjectRootPath() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	p := wd
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(p, "go.mod")); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	panic(fmt.Sprintf("could not find project root above %s", wd))
}

// OpenFixture opens a file under internal/tests/testdata.
func OpenFixture(name string) (*os.File, error) {
	path := filepath.Join(GetProjectRootPath(), "internal", "tests", "testdata", name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture %s: %w", name, err)
	}
	return f, nil
}
