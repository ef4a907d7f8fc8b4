//go:build !linux

package resources

func setAffinity(cores []int) error {
	return ErrUnsupported
}

func setNice(nice int) error {
	return ErrUnsupported
}
