// Package diskusage reports filesystem capacity for the sandbox root.
package diskusage

// Usage is capacity in bytes of the filesystem holding a path.
type Usage struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

// Of returns the capacity of the filesystem containing path.
func Of(path string) (Usage, error) {
	return statfs(path)
}
