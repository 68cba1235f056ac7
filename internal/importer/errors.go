package importer

import (
	"errors"
	"fmt"

	"readerstudy/internal/csvsource"
)

var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrSourceUnreadable = csvsource.ErrSourceUnreadable
	ErrBadHeader        = csvsource.ErrBadHeader
)

func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// IsStructural reports whether err is one of the run-level failures the importer surfaces.
func IsStructural(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrSourceUnreadable) || errors.Is(err, ErrBadHeader)
}
