// In file: internal/version/version.go

// Package version reports what a running gateway was built from and what it
// was configured with.
//
// The build fields are stamped at link time:
//
//	go build -ldflags "-X github.com/santoshameti/agentgateway/internal/version.version=v1.2.0"
package version

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

type BuildInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Get() BuildInfo {
	return BuildInfo{
		Version:   version,
		BuildDate: buildDate,
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// Fingerprint identifies an agent setup: the vendor and model, the system
// instructions and the set of registered tool names. Two processes reporting
// the same fingerprint present the model with the same prompt surface.
//
// Example output: "openai/gpt-4o:3f1c9a0b2d4e"
func Fingerprint(vendor, model, instructions string, toolNames []string) string {
	names := append([]string(nil), toolNames...)
	sort.Strings(names)

	hasher := sha256.New()
	hasher.Write([]byte(instructions))
	hasher.Write([]byte{0})
	hasher.Write([]byte(strings.Join(names, ",")))
	sum := hex.EncodeToString(hasher.Sum(nil))

	return fmt.Sprintf("%s/%s:%s", vendor, model, sum[:12])
}
