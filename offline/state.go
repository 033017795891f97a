package offline

// State is the controller's lifecycle position.
type State int

const (
	// StateUninstalled means nothing has been cached yet. Every request goes
	// to the network.
	StateUninstalled State = iota
	// StateInstalling means a registration is fetching the asset batch.
	StateInstalling
	// StateActivated means the cache is complete and in-scope requests are
	// answered from it.
	StateActivated
	// StateRedundant means the last install failed. A later Register retries.
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "uninstalled"
	case StateInstalling:
		return "installing"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}
