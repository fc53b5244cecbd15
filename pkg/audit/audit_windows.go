//go:build windows

package audit

// checkDiskSpace on Windows returns nil as disk space checking is not
// implemented there. Log writes proceed without the free-space guard.
func (l *Logger) checkDiskSpace() error {
	return nil
}
