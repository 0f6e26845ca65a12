package version

// Version is the current version of tabx.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "1.4.0"

// Name is the application name.
const Name = "tabx"

// Description is a short description of the application.
const Description = "Export workflow client for the Data API"
