//go:build !windows

package native

import (
	"fmt"
	"runtime"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
)

// The vendor only ships a Windows build of the library. Everywhere
// else the native strategy exists solely to downgrade cleanly.
func newVendorSession(cfg config.Config) (vendorSession, error) {
	return nil, fmt.Errorf("vendor library requires Windows, running on %s", runtime.GOOS)
}
