package version

import "fmt"

// Значения подставляются через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

// UserAgent используется HTTP-клиентами утилит (loadtest, seed).
func UserAgent(component string) string {
	return fmt.Sprintf("orders-api-%s/%s", component, version)
}

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
