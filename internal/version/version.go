package version

// Version is the current version of the MediMate call engine.
// Release builds override it with:
//
//	go build -ldflags="-X 'github.com/atharve16/MediMate/internal/version.Version=v1.0.0'"
var Version = "dev"
