package envelopetype

import (
	"bytes"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	Types []*Config `yaml:"envelopeTypes"`
}

// LoadFile reads envelope type configs from a YAML file.
func LoadFile(path string) (*MemoryRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("envelopetype: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes the YAML document and registers every type in it. Unknown fields are rejected.
func Parse(raw []byte) (*MemoryRegistry, error) {
	var f fileFormat
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("envelopetype: parse: %w", err)
	}
	if len(f.Types) == 0 {
		return nil, fmt.Errorf("envelopetype: no envelope types defined")
	}
	r, err := NewMemoryRegistry(f.Types...)
	if err != nil {
		return nil, err
	}
	log.Printf("envelopetype: loaded %d envelope types", len(f.Types))
	return r, nil
}
