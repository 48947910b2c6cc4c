package rates

import "errors"

// Resolution errors
var (
	ErrNoScheme          = errors.New("no pricing scheme assigned to device")
	ErrSchemeExpired     = errors.New("pricing scheme expired for transaction date")
	ErrNoRate            = errors.New("no card rate configured for scheme")
	ErrRateNotConfigured = errors.New("card rate row has no usable rate")
)
