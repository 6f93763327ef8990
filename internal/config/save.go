package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/macropulse/macropulse/internal/log"
)

// secretKeys can never be written to the config file.
var secretKeys = map[string]bool{
	"store.dsn": true,
}

// SetValue sets a dotted key (e.g. "distribution.branch") in the config file.
// The raw value is parsed as YAML, so "true", "42" and "[1, 5, 20]" keep their types.
// Comments and formatting in other sections are preserved by editing a yaml.Node.
func SetValue(configPath, key, raw string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if secretKeys[key] {
		return fmt.Errorf("%s is a secret and must be set through the environment", key)
	}
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid key %q", key)
		}
	}

	valueNode, err := parseValue(raw)
	if err != nil {
		return fmt.Errorf("parsing value for %s: %w", key, err)
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: operator-supplied config path
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config root must be a mapping")
	}

	if err := setPath(doc.Content[0], parts, valueNode); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	if err := writeFileAtomic(configPath, buf.Bytes()); err != nil {
		return err
	}
	log.Info(log.CatConfig, "Updated config value", "path", configPath, "key", key)
	return nil
}

// parseValue decodes raw as a single YAML value node.
func parseValue(raw string) (*yaml.Node, error) {
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &n); err != nil {
		return nil, err
	}
	if n.Kind == 0 || len(n.Content) == 0 {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: raw}, nil
	}
	v := n.Content[0]
	v.HeadComment, v.LineComment, v.FootComment = "", "", ""
	return v, nil
}

// setPath walks the mapping along parts, creating intermediate mappings,
// and replaces (or appends) the final key.
func setPath(node *yaml.Node, parts []string, value *yaml.Node) error {
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value != parts[0] {
			continue
		}
		if len(parts) == 1 {
			node.Content[i+1] = value
			return nil
		}
		child := node.Content[i+1]
		if child.Kind != yaml.MappingNode {
			if child.Kind == yaml.ScalarNode && child.Tag == "!!null" {
				child.Kind, child.Tag, child.Value = yaml.MappingNode, "", ""
			} else {
				return fmt.Errorf("%s is not a mapping", parts[0])
			}
		}
		return setPath(child, parts[1:], value)
	}

	if len(parts) == 1 {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: parts[0]},
			value,
		)
		return nil
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: parts[0]},
		child,
	)
	return setPath(child, parts[1:], value)
}

// writeFileAtomic writes data to a temp file in the target directory and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".macropulse.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0o600); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
