package misc

const (
	// EnvelopeVersion defines the current version of the backup artifact envelope
	EnvelopeVersion byte = 1

	// KDFIterations Key derivation parameters
	KDFIterations = 100000
	KDFKeyLen     = 32
	SaltSize      = 16
	SecretSize    = 32

	FilePermissions = 0600 // user read + write
	DirPermissions  = 0700 // user read + write + execute
)
