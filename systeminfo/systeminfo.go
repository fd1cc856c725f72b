package systeminfo

import (
	"runtime"

	"pkgcheck/logger"

	"github.com/shirou/gopsutil/v4/host"
)

// HostInfo describes the machine a scan ran on.
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
	Arch            string `json:"arch"`
	CPUs            int    `json:"cpus"`
}

var hostInfo = host.Info

// GetHostInfo returns what gopsutil reports about the host. A lookup failure
// is logged and the runtime-derived fields are still filled in.
func GetHostInfo() *HostInfo {
	info := &HostInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
		CPUs: runtime.NumCPU(),
	}
	stat, err := hostInfo()
	if err != nil {
		logger.Warnf("Failed to gather host information: %v", err)
		return info
	}
	info.Hostname = stat.Hostname
	if stat.OS != "" {
		info.OS = stat.OS
	}
	info.Platform = stat.Platform
	info.PlatformVersion = stat.PlatformVersion
	info.KernelVersion = stat.KernelVersion
	if stat.KernelArch != "" {
		info.Arch = stat.KernelArch
	}
	return info
}
