package domain

import "strings"

// Architecture is the CPU architecture images are built for.
type Architecture string

const (
	ArchX86_64 Architecture = "x86_64"
	ArchARM64  Architecture = "arm64"
)

// ParseArchitecture maps machine names reported by Go, uname and the engine
// onto the supported set.
func ParseArchitecture(machine string) (Architecture, error) {
	switch strings.ToLower(strings.TrimSpace(machine)) {
	case "x86_64", "amd64":
		return ArchX86_64, nil
	case "aarch64", "arm64":
		return ArchARM64, nil
	default:
		return "", &UnsupportedArchitectureError{Arch: machine}
	}
}
