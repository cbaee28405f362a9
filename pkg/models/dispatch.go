package models

// Platform identifies an execution platform for worker sessions.
type Platform string

const (
	// PlatformLocal runs sessions through the local session manager.
	PlatformLocal Platform = "local"
	// PlatformRemote runs sessions on a remote host over a secured tunnel.
	PlatformRemote Platform = "remote"
)

// Valid returns true if the platform is a known value.
func (p Platform) Valid() bool {
	return p == PlatformLocal || p == PlatformRemote
}

// Other returns the alternate platform, used for dispatch failover.
func (p Platform) Other() Platform {
	if p == PlatformLocal {
		return PlatformRemote
	}
	return PlatformLocal
}

// DispatchResult is the structured outcome of one dispatch call.
type DispatchResult struct {
	// Success indicates whether the payload was delivered.
	Success bool `json:"success"`
	// Platform is the platform of the final attempt.
	Platform Platform `json:"platform"`
	// Worker is the slot number the dispatch targeted.
	Worker int `json:"worker_number"`
	// Error holds the final attempt's error message when Success is false.
	Error string `json:"error,omitempty"`
}
