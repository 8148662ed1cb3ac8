package runner

import (
	"context"
	"fmt"

	"github.com/camharness/camharness-go/pkg/discovery"
)

// resolveTarget fills in the broker address from mDNS when discovery is
// enabled and no explicit target was given. The result is cached for the
// runner's lifetime.
func (r *Runner) resolveTarget(ctx context.Context) error {
	if r.target != "" || !r.config.Discover {
		return nil
	}
	browser := r.config.Browser
	if browser == nil {
		browser = discovery.NewMDNSBrowser(discovery.BrowserConfig{})
		r.config.Browser = browser
	}
	svc, err := discovery.FindBroker(ctx, browser, r.config.DiscoverTimeout)
	if err != nil {
		return fmt.Errorf("discover broker: %w", err)
	}
	r.target = svc.Address()
	r.logger.Info("discovered broker", "instance", svc.InstanceName, "id", svc.InstanceID,
		"address", r.target, "nodes", svc.NodeCount)
	return nil
}
