package sync

// AuthConfig describes how GitClient should authenticate against a remote.
// Type is one of "none", "token", "basic", or "ssh"; Secret holds the
// token, "user:password" pair, or private key material respectively.
// The plugin install flow passes a nil AuthConfig, so its clones are
// anonymous; no request field is ever turned into an AuthConfig.
type AuthConfig struct {
	Type   string
	Secret string
}
