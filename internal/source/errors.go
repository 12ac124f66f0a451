package source

import (
	"errors"
	"fmt"

	"github.com/any-hub/bundle-hub/internal/catalog"
)

var errMissingRemoteDeps = errors.New("remote source requires http client and cache store")

func errUnknownMode(mode catalog.LoadMode) error {
	return fmt.Errorf("unsupported load mode %d", int(mode))
}
