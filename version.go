package ratchet

// Version is the release version, stamped by goversion on release.
var Version = "0.1.0"
