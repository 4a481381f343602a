package cryptoprov

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/fileutil"
	"gopkg.in/yaml.v3"
)

// PIN sources
const (
	pinFromFile = "file:"
	pinFromEnv  = "env:"
)

// TokenConfig holds PKCS#11 configuration information.
//
// A token may be identified by slot, serial number or label.
// The slot wins if specified, otherwise the first match of
// serial or label, otherwise the first slot with a token.
type TokenConfig interface {
	// Manufacturer name of the manufacturer
	Manufacturer() string

	// Model name of the device
	Model() string

	// Path is the library path, or its name to be located by the OS
	Path() string

	// TokenSerial is the token serial number
	TokenSerial() string

	// TokenLabel is the token label
	TokenLabel() string

	// Slot returns the slot ID, if specified
	Slot() (uint, bool)

	// Pin is a secret to access the token,
	// empty to use the protected authentication path
	Pin() string

	// Attributes are comma separated key=value options of the module,
	// see ParseAttributes
	Attributes() string
}

type tokenConfig struct {
	Man    string `json:"Manufacturer"   yaml:"manufacturer"`
	Mod    string `json:"Model"          yaml:"model"`
	Dir    string `json:"Path"           yaml:"path"`
	Serial string `json:"TokenSerial"    yaml:"token_serial"`
	Label  string `json:"TokenLabel"     yaml:"token_label"`
	SlotID *uint  `json:"Slot,omitempty" yaml:"slot,omitempty"`
	Pwd    string `json:"Pin"            yaml:"pin"`
	Attrs  string `json:"Attributes"     yaml:"attributes"`
}

// NewTokenConfig returns configuration for the library,
// the token is selected by label if not empty
func NewTokenConfig(manufacturer, path, label, pin string) TokenConfig {
	return &tokenConfig{
		Man:   manufacturer,
		Dir:   path,
		Label: label,
		Pwd:   pin,
	}
}

func (c *tokenConfig) Manufacturer() string { return c.Man }
func (c *tokenConfig) Model() string        { return c.Mod }
func (c *tokenConfig) Path() string         { return c.Dir }
func (c *tokenConfig) TokenSerial() string  { return c.Serial }
func (c *tokenConfig) TokenLabel() string   { return c.Label }
func (c *tokenConfig) Pin() string          { return c.Pwd }
func (c *tokenConfig) Attributes() string   { return c.Attrs }

func (c *tokenConfig) Slot() (uint, bool) {
	if c.SlotID == nil {
		return 0, false
	}
	return *c.SlotID, true
}

// LoadTokenConfig loads PKCS#11 token configuration from a JSON file,
// or YAML for any other extension.
//
// The PIN may refer to a file with `file:path`, resolved against the
// current folder and the folder of the configuration,
// or to an environment variable with `env:NAME`.
func LoadTokenConfig(filename string) (TokenConfig, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := new(tokenConfig)
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		err = json.Unmarshal(raw, cfg)
	} else {
		err = yaml.Unmarshal(raw, cfg)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to decode file: %s", filename)
	}

	cfg.Pwd, err = resolvePin(cfg.Pwd, filepath.Dir(filename))
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to load PIN for configuration: %s", filename)
	}
	return cfg, nil
}

func resolvePin(pin, cfgDir string) (string, error) {
	switch {
	case strings.HasPrefix(pin, pinFromEnv):
		name := pin[len(pinFromEnv):]
		val, ok := os.LookupEnv(name)
		if !ok {
			return "", errors.Errorf("environment variable not set: %s", name)
		}
		return strings.TrimSpace(val), nil

	case strings.HasPrefix(pin, pinFromFile):
		pinfile := pin[len(pinFromFile):]
		cwd, _ := os.Getwd()
		for _, folder := range []string{"", cwd, cfgDir} {
			if resolved, err := resolve(pinfile, folder); err == nil {
				pinfile = resolved
				break
			}
			logger.Debugf("reason=resolve, pinfile=%q, basedir=%q", pinfile, folder)
		}

		pb, err := os.ReadFile(pinfile)
		if err != nil {
			return "", errors.WithStack(err)
		}
		return strings.TrimSpace(string(pb)), nil
	}
	return pin, nil
}

// resolve returns the file name relative to baseDir,
// or an error if it does not exist
func resolve(file string, baseDir string) (string, error) {
	resolved := file
	if !filepath.IsAbs(file) && baseDir != "" {
		resolved = filepath.Join(baseDir, file)
	}
	if err := fileutil.FileExists(resolved); err != nil {
		return resolved, errors.WithMessagef(err, "not found: %v", resolved)
	}
	return resolved, nil
}

// ParseAttributes parses comma separated key=value pairs,
// keys are case sensitive and must be unique
func ParseAttributes(attrs string) (map[string]string, error) {
	m := map[string]string{}
	for _, pair := range strings.Split(attrs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.Errorf("invalid attribute: %q", pair)
		}
		if _, dup := m[k]; dup {
			return nil, errors.Errorf("duplicate attribute: %q", k)
		}
		m[k] = strings.TrimSpace(v)
	}
	return m, nil
}
