package construct

import "errors"

var (
	// ErrMissingConfig is returned when a required, account-identifying input
	// is empty. There are no defaults for these.
	ErrMissingConfig = errors.New("missing required configuration")

	// ErrZoneNotFound is returned when a hosted zone lookup finds nothing
	ErrZoneNotFound = errors.New("hosted zone not found")

	// ErrDomainOutsideZone is returned when the service domain is not a name
	// inside the resolved hosted zone
	ErrDomainOutsideZone = errors.New("domain is not inside the hosted zone")

	// ErrInvalidImage is returned for unparsable container image references
	ErrInvalidImage = errors.New("invalid container image reference")

	// ErrUnsupportedImageSource is returned for image sources that cannot be
	// expressed in a synthesized template
	ErrUnsupportedImageSource = errors.New("unsupported image source")

	// ErrIncompleteServiceHandle is returned when a pipeline is constructed
	// without a complete service to deploy to
	ErrIncompleteServiceHandle = errors.New("service handle is absent or incomplete")

	// ErrInvalidProps is returned for out-of-range construct properties
	ErrInvalidProps = errors.New("invalid construct properties")
)
