package version

const AppName = "voice-ambush"

// Version is set at build time with -ldflags "-X voice-ambush/internal/version.Version=...".
var Version = "dev"
