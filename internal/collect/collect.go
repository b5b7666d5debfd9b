// Package collect normalizes heterogeneous upload sources — flat file
// lists, picker entries with relative paths, and recursive directory
// trees — into one deduplicated stream of upload candidates.
package collect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mhollis/skiff/internal/vpath"
)

// chunkSize bounds how many tree entries are processed between context
// checks, so collecting thousands of files stays cancellable.
const chunkSize = 64

// Candidate pairs a payload with its destination-relative path.
type Candidate struct {
	Payload Payload

	// RelPath is the normalized relative path under the destination
	// directory, "name" for files landing directly in it.
	RelPath string
}

// Name returns the candidate's file name.
func (c Candidate) Name() string {
	if i := strings.LastIndex(c.RelPath, "/"); i >= 0 {
		return c.RelPath[i+1:]
	}
	return c.RelPath
}

// Dir returns the candidate's directory part, "" for direct landings.
func (c Candidate) Dir() string {
	if i := strings.LastIndex(c.RelPath, "/"); i >= 0 {
		return c.RelPath[:i]
	}
	return ""
}

// Node is an entry in a traversable source tree.
type Node interface {
	Name() string
}

// FileNode is a leaf carrying a payload.
type FileNode interface {
	Node
	Payload() (Payload, error)
}

// DirNode is a directory whose children can be read.
type DirNode interface {
	Node
	Children() ([]Node, error)
}

// Collector accumulates candidates across sources, deduplicating on
// relative path, size and modification time so the same source is
// never double-queued.
type Collector struct {
	seen   map[string]struct{}
	out    []Candidate
	logger zerolog.Logger
}

// NewCollector creates an empty collector.
func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		seen:   make(map[string]struct{}),
		logger: logger.With().Str("component", "collector").Logger(),
	}
}

// AddFlat adds picker files without directory structure; the relative
// path is the file name.
func (c *Collector) AddFlat(payloads ...Payload) {
	for _, p := range payloads {
		c.add(p, p.Name())
	}
}

// AddWithPath adds a directory-mode picker entry carrying its own
// relative path. An empty relPath falls back to the file name.
func (c *Collector) AddWithPath(p Payload, relPath string) {
	if relPath == "" {
		relPath = p.Name()
	}
	c.add(p, relPath)
}

// AddTree walks a directory tree with an explicit work stack — no
// recursion, no ordering surprises — accumulating each nested file's
// relative path from its ancestor directory names. base prefixes every
// path; pass the root's name to land the tree inside a folder, or ""
// to spill its contents directly into the destination.
func (c *Collector) AddTree(ctx context.Context, root DirNode, base string) error {
	type frame struct {
		dir    DirNode
		prefix string
	}

	stack := []frame{{dir: root, prefix: vpath.NormalizeRelative(base)}}
	processed := 0

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := f.dir.Children()
		if err != nil {
			return fmt.Errorf("read directory %q: %w", f.dir.Name(), err)
		}

		for _, child := range children {
			if processed%chunkSize == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			processed++

			switch n := child.(type) {
			case DirNode:
				stack = append(stack, frame{
					dir:    n,
					prefix: joinRel(f.prefix, n.Name()),
				})
			case FileNode:
				p, err := n.Payload()
				if err != nil {
					return fmt.Errorf("open %q: %w", n.Name(), err)
				}
				c.add(p, joinRel(f.prefix, n.Name()))
			}
		}
	}

	return nil
}

// Candidates returns everything collected so far, in input order.
func (c *Collector) Candidates() []Candidate {
	return c.out
}

func (c *Collector) add(p Payload, relPath string) {
	rel := vpath.NormalizeRelative(relPath)
	if rel == "" {
		// Nothing left after normalization; dropped silently.
		c.logger.Debug().Str("raw", relPath).Msg("dropping candidate with empty name")
		return
	}

	key := rel + "|" + strconv.FormatInt(p.Size(), 10) + "|" +
		strconv.FormatInt(p.ModTime().UnixMilli(), 10)
	if _, dup := c.seen[key]; dup {
		c.logger.Debug().Str("rel", rel).Msg("skipping duplicate candidate")
		return
	}
	c.seen[key] = struct{}{}

	c.out = append(c.out, Candidate{Payload: p, RelPath: rel})
}

func joinRel(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
