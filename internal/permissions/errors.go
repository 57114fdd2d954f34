package permissions

import "errors"

var (
	// ErrForbidden indicates the actor may not manage permissions.
	ErrForbidden = errors.New("permissions: forbidden")
	// ErrStoreUnavailable indicates profiles or grants could not be fetched.
	ErrStoreUnavailable = errors.New("permissions: store unavailable")
	// ErrWriteFailed indicates a grant upsert failed after the authority check.
	ErrWriteFailed = errors.New("permissions: write failed")
	// ErrUnknownUser indicates the target profile is not known.
	ErrUnknownUser = errors.New("permissions: unknown user")
	// ErrUnknownPermission indicates a name outside the catalog.
	ErrUnknownPermission = errors.New("permissions: unknown permission")
	// ErrUnknownRole indicates a role without a template.
	ErrUnknownRole = errors.New("permissions: unknown role")
)

func isForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// isInvalid reports errors caused by the request rather than the store.
func isInvalid(err error) bool {
	return errors.Is(err, ErrUnknownUser) || errors.Is(err, ErrUnknownPermission) || errors.Is(err, ErrUnknownRole)
}
