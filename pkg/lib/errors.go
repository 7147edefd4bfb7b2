package lib

import "errors"

// None of these are fatal to the host; the worst outcome is "backend not running".
var (
	ErrUnsupportedBackend      = errors.New("unsupported backend")
	ErrLaunchTargetMissing     = errors.New("launch target missing")
	ErrSpawnFailed             = errors.New("spawn failed")
	ErrReadinessTimeout        = errors.New("backend did not become ready in time")
	ErrExitedBeforeReady       = errors.New("backend exited before becoming ready")
	ErrStaleMarker             = errors.New("stale readiness marker could not be removed")
	ErrManifestMissing         = errors.New("dependency manifest missing")
	ErrEnvironmentCreateFailed = errors.New("environment creation failed")
	ErrDependencyInstallFailed = errors.New("dependency installation failed")
)
