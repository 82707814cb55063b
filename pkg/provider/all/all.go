// Package all registers every built-in DNS provider with the provider
// registry. Import it for side effects.
package all

import (
	_ "github.com/bkero/dyndns-updater/pkg/provider/cloudflare"
	_ "github.com/bkero/dyndns-updater/pkg/provider/rfc2136"
)
