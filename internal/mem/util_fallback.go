//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly && !windows

package mem

func lockMemoryPlatform() (ProtectionLevel, error) {
	// No memory locking support on this platform
	return ProtectionNone, nil
}

func unlockMemoryPlatform() error {
	return nil
}
