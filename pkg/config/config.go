// Package config loads operator-tunable defaults for this toolkit from a
// YAML file under the user's home directory, grounded on delve's
// pkg/config.LoadConfig/SaveConfig idiom (same directory-creation, same
// "never abort startup on a config error" policy).
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".xmemkit"
	configFile string = "config.yml"
)

// Config defines every option settable through the config file. These are
// process-wide values, not per-call parameters — spec.md's operations
// always take their arguments explicitly. No package in this module reads
// a Config: the fields are parsed from the file and nothing else.
type Config struct {
	// DefaultScanFlags is parsed from the file; pkg/gateway does not
	// consult it and uses the ScanFlags each caller passes.
	DefaultScanFlags int `yaml:"default-scan-flags"`
	// RemoteCallTimeoutMS is parsed from the file; pkg/fncall.Call does not
	// consult it and falls back to its own 5000 ms on a zero timeout.
	RemoteCallTimeoutMS int `yaml:"remote-call-timeout-ms"`
	// DebugEventTimeoutMS is parsed from the file; pkg/hwdebug does not
	// consult it and uses the timeout each caller passes.
	DebugEventTimeoutMS int `yaml:"debug-event-timeout-ms"`
	// MaxStringBatches is parsed from the file; pkg/memio does not consult
	// it and keeps its fixed 4096-batch readString cap.
	MaxStringBatches int `yaml:"max-string-batches"`
}

// LoadConfig attempts to populate a Config object from config.yml. Any I/O
// or parse error is printed to stdout and a zero-value Config is returned
// — startup is never aborted by a config problem.
func LoadConfig() *Config {
	if err := createConfigPath(); err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return &Config{}
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return &Config{}
		}
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Printf("Closing config file failed: %v.", err)
		}
	}()

	data, err := ioutil.ReadAll(f)
	if err != nil {
		fmt.Printf("Unable to read config data: %v.", err)
		return &Config{}
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		fmt.Printf("Unable to decode config file: %v.", err)
		return &Config{}
	}
	return &c
}

// SaveConfig marshals and saves the config struct to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	if err := writeDefaultConfig(f); err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for xmemkit.

# This is the default configuration file. Available options are provided,
# but disabled. Delete the leading hash mark to enable an item.

# default-scan-flags: 0

# remote-call-timeout-ms: 5000

# debug-event-timeout-ms: 100

# max-string-batches: 4096
`)
	return err
}

func createConfigPath() error {
	p, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(p, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
