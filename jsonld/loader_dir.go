package jsonld

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/go-json-experiment/json"
	"gopkg.in/yaml.v3"
)

// DirLoader serves context documents from a filesystem. A URL is mapped to
// a file by stripping Prefix; ".yaml" and ".yml" files are decoded as YAML-LD,
// everything else as JSON.
type DirLoader struct {
	FS     fs.FS
	Prefix string
}

// NewDirLoader returns a loader serving prefix+name from fsys.
func NewDirLoader(fsys fs.FS, prefix string) *DirLoader {
	return &DirLoader{FS: fsys, Prefix: prefix}
}

// LoadDocument reads and decodes the file url maps to.
func (d *DirLoader) LoadDocument(ctx context.Context, url string) (*RemoteDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, ok := strings.CutPrefix(url, d.Prefix)
	if !ok {
		return nil, fmt.Errorf("url %q is outside %q", url, d.Prefix)
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	data, err := fs.ReadFile(d.FS, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", name, err)
	}

	var doc any
	switch path.Ext(name) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode YAML %q: %w", name, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode JSON %q: %w", name, err)
		}
	}
	return &RemoteDocument{DocumentURL: url, Document: doc}, nil
}
