package collect

import (
	"fmt"
	"os"
	"path/filepath"
)

// OSDir adapts a local filesystem directory to the DirNode interface,
// letting the CLI feed directories through the same traversal the
// server uses for structured drop sources. Symlinks and other
// non-regular entries are skipped.
func OSDir(path string) (DirNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", path)
	}
	return &osDir{path: path, name: info.Name()}, nil
}

type osDir struct {
	path string
	name string
}

func (d *osDir) Name() string { return d.name }

func (d *osDir) Children() ([]Node, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}

	var nodes []Node
	for _, e := range entries {
		full := filepath.Join(d.path, e.Name())
		switch {
		case e.IsDir():
			nodes = append(nodes, &osDir{path: full, name: e.Name()})
		case e.Type().IsRegular():
			nodes = append(nodes, &osFile{path: full, name: e.Name()})
		}
	}
	return nodes, nil
}

type osFile struct {
	path string
	name string
}

func (f *osFile) Name() string { return f.name }

func (f *osFile) Payload() (Payload, error) {
	return NewFilePayload(f.path)
}
