// Package brand provides centralized naming constants for ngxweb.
//
// The identity is loaded from brand.json at compile time via go:embed so
// that scripts and docs generators can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name            string `json:"name"`
	LowerName       string `json:"lowerName"`
	Vendor          string `json:"vendor"`
	Website         string `json:"website"`
	Repository      string `json:"repository"`
	Description     string `json:"description"`
	Tagline         string `json:"tagline"`
	ConfigEnvPrefix string `json:"configEnvPrefix"`
	HomeDirName     string `json:"homeDirName"`
	ConfigFileName  string `json:"configFileName"`
	BinaryName      string `json:"binaryName"`
	Copyright       string `json:"copyright"`
	License         string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	Tagline = b.Tagline
	ConfigEnvPrefix = b.ConfigEnvPrefix
	HomeDirName = b.HomeDirName
	ConfigFileName = b.ConfigFileName
	BinaryName = b.BinaryName
}

var (
	Name            string
	LowerName       string
	Description     string
	Tagline         string
	ConfigEnvPrefix string
	HomeDirName     string
	ConfigFileName  string
	BinaryName      string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// UserAgent returns a User-Agent string for HTTP requests
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return Name + "/" + version
}

// GetHomeDir returns the base directory for configs, logs and state.
// Priority: NGXWEB_HOME > $HOME/.nginx-web > ./.nginx-web
func GetHomeDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return HomeDirName
	}
	return filepath.Join(home, HomeDirName)
}

// GetConfigFile returns the default path of the application config file.
// Priority: NGXWEB_CONFIG > <home>/ngxweb.hcl
func GetConfigFile() string {
	if path := os.Getenv(ConfigEnvPrefix + "_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(GetHomeDir(), ConfigFileName)
}
