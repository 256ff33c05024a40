package adapters

// NOTE: If build bloat becomes a concern for unused remotes
// look into build tags i.e. +build !nohttp

type BuiltInRemoteType = string

const (
	HTTPRemoteType BuiltInRemoteType = "http"
)

// RegisterBuiltins registers all built-in remotes by default
// or only the specific ones if keys are provided
func RegisterBuiltins(r *Registry, remotes ...BuiltInRemoteType) {
	if len(remotes) == 0 {
		// Include all built-in remotes here when adding implementations
		remotes = append(remotes, HTTPRemoteType)
	}

	for _, key := range remotes {
		switch key {
		case HTTPRemoteType:
			r.Register(HTTPRemoteType, NewHTTPProvider(nil))
		}
	}
}
