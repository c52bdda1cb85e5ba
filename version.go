package dramabox

// Version information for dramabox.
// These values can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/ZaguanLabs/dramabox.GitCommit=$(git rev-parse HEAD)"
const (
	// Name is the application name.
	Name = "dramabox"

	// Description is a short description of the application.
	Description = "DramaBox - multi-language short-drama web front-end"

	// Version is the semantic version of the application.
	Version = "1.0.0"

	// Repository is the source code repository URL.
	Repository = "https://github.com/ZaguanLabs/dramabox"
)

// BuildInfo contains build-time information.
// These are typically set via ldflags during build.
var (
	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// FullVersion returns the version string with optional build info.
func FullVersion() string {
	v := Version
	if GitCommit != "unknown" && GitCommit != "" {
		short := GitCommit
		if len(short) > 7 {
			short = short[:7]
		}
		v += "+" + short
	}
	return v
}

// UserAgent returns the user agent sent to the upstream API.
func UserAgent() string {
	return "DramaBox-Web/" + Version
}
