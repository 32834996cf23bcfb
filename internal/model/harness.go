package model

// HarnessInfo is the opaque benchmark context returned by an adapter's
// harness call. The loop reads Workdir, Ok, IndexPath and Error; Extra is
// carried on the struct but the loop neither reads it nor forwards it.
type HarnessInfo struct {
	Workdir   string
	Ok        bool
	IndexPath string
	Error     string
	Extra     map[string]any
}
