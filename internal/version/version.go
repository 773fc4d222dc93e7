// Package version holds build identifiers, set with -ldflags "-X".
package version

var (
	// Gateway is the version of this service.
	Gateway = "dev"
	// GatewayCommit is the VCS revision the binary was built from.
	GatewayCommit = "unknown"

	// Engine is the version of the evaluation engine bundled in the binary.
	Engine = "1.0.0"
	// EngineCommit is the engine's VCS revision.
	EngineCommit = "unknown"
)

// Info is one entry of the /status "versions" map.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Versions returns the gateway and engine identifiers keyed by component.
func Versions() map[string]Info {
	return map[string]Info{
		"insights-gateway": {Version: Gateway, Commit: GatewayCommit},
		"insights-engine":  {Version: Engine, Commit: EngineCommit},
	}
}
