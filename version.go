package farmiq

// Version information for the FarmIQ client SDK
const (
	// Version is the current SDK version
	Version = "development"

	// APIVersion is the remote API generation this SDK targets
	APIVersion = "v1"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
