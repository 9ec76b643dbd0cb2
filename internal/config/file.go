package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML layout. Every field is optional.
type File struct {
	Server struct {
		Listen       string `yaml:"listen"`
		RoomCapacity *int   `yaml:"room_capacity"`
	} `yaml:"server"`

	Signaling struct {
		Domain string `yaml:"domain"`
		URL    string `yaml:"url"`
	} `yaml:"signaling"`

	ICE struct {
		STUN       []string `yaml:"stun"`
		TURN       string   `yaml:"turn"`
		TURNUser   string   `yaml:"turn_user"`
		TURNPass   string   `yaml:"turn_pass"`
		ForceRelay bool     `yaml:"force_relay"`
	} `yaml:"ice"`

	Identity struct {
		Email string `yaml:"email"`
		Name  string `yaml:"name"`
	} `yaml:"identity"`

	Media struct {
		Mode string `yaml:"mode"`
	} `yaml:"media"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadFile reads the YAML file at path.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	file, err := DecodeFile(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return file, nil
}

// DecodeFile decodes YAML from r, rejecting unknown keys. An empty document
// decodes to the zero File.
func DecodeFile(r io.Reader) (*File, error) {
	file := &File{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return file, nil
}
