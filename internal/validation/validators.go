// Package validation checks user-supplied values before they are written
// into Nginx configuration files.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

var (
	// Valid identifier: alphanumeric, dash, underscore, dot
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

	// One RFC 1123 host name label
	labelRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

	// Characters that end or open an Nginx directive, or would break out of
	// a shell if a value ever reached one.
	dangerousChars = []string{";", "{", "}", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r", "\x00"}
)

func dangerous(s string) (string, bool) {
	for _, char := range dangerousChars {
		if strings.Contains(s, char) {
			return char, true
		}
	}
	return "", false
}

// ValidateIdentifier validates a name used as an Nginx token, such as an
// upstream name.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("identifier too long (max 255 characters)")
	}
	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %s (must be alphanumeric with -_.)", id)
	}
	return nil
}

// ValidateFileName validates the base name of a managed configuration file.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("file name too long (max 255 characters)")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("file name must not contain a path: %s", name)
	}
	if char, bad := dangerous(name); bad {
		return fmt.Errorf("file name contains dangerous character: %q", char)
	}
	return nil
}

// ValidateHost accepts an IPv4 address or a host name, the forms an
// upstream server directive takes before its port.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if char, bad := dangerous(host); bad {
		return fmt.Errorf("host contains dangerous character: %q", char)
	}
	if strings.ContainsAny(host, " \t:/") {
		return fmt.Errorf("invalid host: %s (must be an IPv4 address or host name)", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return nil
	}
	if strings.Trim(host, "0123456789.") == "" {
		return fmt.Errorf("invalid IPv4 address: %s", host)
	}
	if len(host) > 253 {
		return fmt.Errorf("host name too long (max 253 characters)")
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if !labelRegex.MatchString(label) {
			return fmt.Errorf("invalid host name: %s", host)
		}
	}
	return nil
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}

// ValidateURLPath validates an absolute request path such as a health
// check path.
func ValidateURLPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must start with /: %s", path)
	}
	if strings.ContainsAny(path, " \t\r\n\x00") {
		return fmt.Errorf("path must not contain whitespace: %q", path)
	}
	return nil
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("value not in allowlist: %s", value)
}
