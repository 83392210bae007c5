// Stub implementation for dynamic plugin loading when not supported.
//go:build !plugindyn || !linux

package plugin

// LoadDynamicPlugins returns ErrDynamicUnsupported.
func LoadDynamicPlugins(pluginDir string) error {
	return ErrDynamicUnsupported
}
