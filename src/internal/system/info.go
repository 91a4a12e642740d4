package system

import (
	"fmt"
	"runtime"
	"time"
)

var startedAt = time.Now()

// Info holds basic runtime information reported by the health endpoint.
type Info struct {
	OS        string   `json:"os"`
	Arch      string   `json:"arch"`
	GoVersion string   `json:"go_version"`
	Uptime    string   `json:"uptime"`
	Memory    MemStats `json:"memory"`
}

func GetInfo() Info {
	return Info{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(startedAt).Round(time.Second).String(),
		Memory:    ReadMemStats(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("OS: %s, Architecture: %s, Go Version: %s", i.OS, i.Arch, i.GoVersion)
}
