package docker

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
)

// socketCandidates lists engine sockets per platform, most specific first.
var socketCandidates = map[string][]string{
	"darwin": {
		"~/.orbstack/run/docker.sock",
		"/var/run/docker.sock",
		"~/.docker/run/docker.sock",
		"~/.colima/default/docker.sock",
	},
	"linux": {
		"/var/run/docker.sock",
		"/run/user/1000/docker.sock",
	},
	"windows": {
		"//./pipe/docker_engine",
	},
}

// resolveHost picks the engine endpoint. An explicit host or DOCKER_HOST
// always wins; otherwise the first socket that exists is used.
func resolveHost(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if os.Getenv("DOCKER_HOST") != "" {
		return ""
	}
	return discoverSocket(runtime.GOOS, fileExists)
}

func discoverSocket(goos string, exists func(string) bool) string {
	candidates, ok := socketCandidates[goos]
	if !ok {
		candidates = socketCandidates["linux"]
	}
	scheme := "unix://"
	if goos == "windows" {
		scheme = "npipe://"
	}
	for _, c := range candidates {
		p := expandHome(c)
		if exists(p) {
			log.Debug().Str("socket", p).Msg("found engine socket")
			return scheme + p
		}
	}
	// leave the SDK default in place
	return ""
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
