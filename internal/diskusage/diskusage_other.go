//go:build !unix

package diskusage

import "errors"

func statfs(string) (Usage, error) {
	return Usage{}, errors.New("disk usage is not supported on this platform")
}
