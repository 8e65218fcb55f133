package migrate

import "errors"

var (
	ErrManifest   = errors.New("migrate: invalid schema manifest")
	ErrUnresolved = errors.New("migrate: manifest references an undeclared type")
)

func IsManifestErr(err error) bool   { return errors.Is(err, ErrManifest) }
func IsUnresolvedErr(err error) bool { return errors.Is(err, ErrUnresolved) }
