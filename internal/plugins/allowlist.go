package plugins

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// defaultAllowedHosts backs the repository check when the repositories
// table is empty or unreachable, so a fresh or degraded deployment still
// enforces the same floor the seed rows establish.
var defaultAllowedHosts = []string{"github.com", "gitlab.com"}

// allowedHosts derives the host allow-list from the enabled repositories
// rows, falling back to the built-in defaults when none can be read.
func (s *Service) allowedHosts(ctx context.Context) []string {
	repos, err := s.store.ListEnabledRepositories(ctx)
	if err != nil || len(repos) == 0 {
		return defaultAllowedHosts
	}
	hosts := make([]string, 0, len(repos))
	for _, r := range repos {
		u, err := url.Parse(r.URL)
		if err != nil || u.Hostname() == "" {
			continue
		}
		hosts = append(hosts, strings.ToLower(u.Hostname()))
	}
	if len(hosts) == 0 {
		return defaultAllowedHosts
	}
	return hosts
}

// validateRepositoryURL enforces the install-flow allow-list: the URL must
// be HTTPS and target one of the allowed hosts.
func validateRepositoryURL(repoURL string, allowedHosts []string) error {
	u, err := url.Parse(repoURL)
	if err != nil {
		return fmt.Errorf("malformed repository url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("repository url must use https")
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range allowedHosts {
		if host == allowed {
			return nil
		}
	}
	return fmt.Errorf("repository host %q is not in the allow-list", host)
}
