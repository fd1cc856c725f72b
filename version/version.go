package version

// Version is overridden at build time with -ldflags "-X pkgcheck/version.Version=...".
var Version = "dev"
