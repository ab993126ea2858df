// Package config loads, validates and writes the ngxweb configuration.
//
// # Overview
//
// ngxweb reads an optional HCL file (default ~/.nginx-web/ngxweb.hcl) and
// then applies environment overrides. A missing file is not an error: every
// setting has a default, so the server runs with no configuration at all.
//
// # Blocks
//
//   - nginx: managed config directory, log directory, binary, symlink targets
//   - api: key authentication and CORS
//   - load_balancer: upstream pool file, upstream name, health probe mode
//   - audit: retention of the audit trail
//
// # Environment
//
// HOST, PORT, NGINX_CONFIG_DIR, NGINX_LOG_DIR, NGINX_BINARY,
// API_KEY_REQUIRED and API_KEY override the file.
//
// Example:
//
//	listen    = "127.0.0.1:3000"
//	log_level = "info"
//
//	nginx {
//	  config_dir = "/srv/nginx-web/configs"
//	  link_dirs  = ["/etc/nginx/conf.d"]
//	}
//
//	load_balancer {
//	  upstream_name = "backend"
//	  probe_mode    = "http"
//	}
package config
