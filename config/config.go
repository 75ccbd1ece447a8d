// Package config loads the YAML configuration for the signer.
//
// The file layout is:
//
//	dkim:
//	  private_key: <PEM body without header/footer lines>
//	  private_key_file: <path to a PEM file, used when private_key is empty>
//	  params:
//	    d: example.com
//	    h: from:to:subject:date
//	    s: sel1
//	    v: "1"
//	    a: rsa-sha1
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/synqronlabs/dkimsign/dkim"
)

// File is a parsed configuration file.
type File struct {
	DKIM *dkim.Config `yaml:"dkim"`

	// Path is the file the configuration was loaded from, if any.
	Path string `yaml:"-"`
}

// Load reads and parses the configuration file at path. A relative
// private_key_file is resolved against the directory of path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	if f.DKIM != nil && f.DKIM.PrivateKeyFile != "" && !filepath.IsAbs(f.DKIM.PrivateKeyFile) {
		f.DKIM.PrivateKeyFile = filepath.Join(filepath.Dir(path), f.DKIM.PrivateKeyFile)
	}
	return f, nil
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &f, nil
}

// NewSigner creates a signer from the dkim block.
func (f *File) NewSigner(opts ...dkim.Option) (*dkim.Signer, error) {
	if f == nil || f.DKIM == nil {
		return nil, dkim.ErrNoConfig
	}
	return dkim.New(*f.DKIM, opts...)
}
