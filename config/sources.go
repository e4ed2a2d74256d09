package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"ctxpipe/internal/domain"
)

// rawSource is one source entry as written in the sources file.
type rawSource struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Kind    string   `yaml:"kind"`
	Path    string   `yaml:"path"`
	URL     string   `yaml:"url"`
	Ref     string   `yaml:"ref"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	Dest    string   `yaml:"dest"`
}

// LoadSources reads the sources file. A missing or malformed file is a
// configuration error.
func LoadSources(path string) ([]domain.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: missing sources file %s", domain.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	sources, err := ParseSources(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sources, nil
}

// ParseSources accepts either a list of source entries or a mapping keyed by
// source name, at the top level or under a "sources" key, and returns them in
// document order.
func ParseSources(data []byte) ([]domain.Source, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: sources file is empty", domain.ErrConfiguration)
	}

	node := doc.Content[0]
	if node.Kind == yaml.MappingNode {
		list := mappingValue(node, "sources")
		if list == nil {
			return nil, fmt.Errorf("%w: top-level mapping must have a 'sources' key", domain.ErrConfiguration)
		}
		node = list
	}

	var raws []rawSource
	switch {
	case node.Kind == yaml.SequenceNode:
		for i, item := range node.Content {
			var raw rawSource
			if err := item.Decode(&raw); err != nil {
				return nil, fmt.Errorf("%w: sources[%d]: %v", domain.ErrConfiguration, i, err)
			}
			raws = append(raws, raw)
		}
	case node.Kind == yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i].Value, node.Content[i+1]
			var raw rawSource
			if err := value.Decode(&raw); err != nil {
				return nil, fmt.Errorf("%w: sources.%s: %v", domain.ErrConfiguration, key, err)
			}
			if raw.Name != "" && raw.Name != key {
				return nil, fmt.Errorf("%w: sources.%s: name %q does not match its key", domain.ErrConfiguration, key, raw.Name)
			}
			raw.Name = key
			raws = append(raws, raw)
		}
	case node.Tag == "!!null":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: 'sources' must be a list or a mapping", domain.ErrConfiguration)
	}

	sources := make([]domain.Source, 0, len(raws))
	names := make(map[string]bool)
	dests := make(map[string]string)
	for i, raw := range raws {
		src, err := raw.normalize()
		if err != nil {
			return nil, fmt.Errorf("%w: sources[%d]: %v", domain.ErrConfiguration, i, err)
		}
		if names[src.Name] {
			return nil, fmt.Errorf("%w: duplicate source name %q", domain.ErrConfiguration, src.Name)
		}
		for dest, other := range dests {
			if destsOverlap(dest, src.Dest) {
				return nil, fmt.Errorf("%w: sources %q and %q have overlapping dests %q and %q",
					domain.ErrConfiguration, other, src.Name, dest, src.Dest)
			}
		}
		names[src.Name] = true
		dests[src.Dest] = src.Name
		sources = append(sources, src)
	}
	return sources, nil
}

// destsOverlap reports whether one dest equals or contains the other.
func destsOverlap(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func (r rawSource) normalize() (domain.Source, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return domain.Source{}, errors.New("missing name")
	}

	kind := strings.ToLower(strings.TrimSpace(r.Type))
	if kind == "" {
		kind = strings.ToLower(strings.TrimSpace(r.Kind))
	}
	if kind == "" {
		switch {
		case r.Path != "":
			kind = "local"
		case r.URL != "":
			kind = "git"
		}
	}

	src := domain.Source{
		Name:    name,
		Include: r.Include,
		Exclude: r.Exclude,
		Dest:    r.Dest,
	}
	switch kind {
	case "local":
		if r.Path == "" {
			return domain.Source{}, fmt.Errorf("source %q: local source needs a path", name)
		}
		src.Kind = domain.SourceLocal
		src.Path = r.Path
	case "git", "remote", "remote-repo":
		if r.URL == "" {
			return domain.Source{}, fmt.Errorf("source %q: remote source needs a url", name)
		}
		src.Kind = domain.SourceRemote
		src.URL = r.URL
		src.Ref = r.Ref
		if src.Ref == "" {
			src.Ref = "main"
		}
	case "":
		return domain.Source{}, fmt.Errorf("source %q: missing type", name)
	default:
		return domain.Source{}, fmt.Errorf("source %q: unknown type %q", name, kind)
	}

	if src.Dest == "" {
		src.Dest = name
	}
	if !filepath.IsLocal(src.Dest) {
		return domain.Source{}, fmt.Errorf("source %q: dest %q must be a relative path inside the destination root", name, src.Dest)
	}
	src.Dest = path.Clean(filepath.ToSlash(src.Dest))
	if src.Dest == "." {
		return domain.Source{}, fmt.Errorf("source %q: dest must name a folder below the destination root", name)
	}

	for _, p := range append(append([]string{}, src.Include...), src.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return domain.Source{}, fmt.Errorf("source %q: bad glob %q", name, p)
		}
	}
	return src, nil
}
