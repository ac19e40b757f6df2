package teamgames

const (
	// INVALID_ARGUMENT_ERROR_CODE represents an error for invalid input arguments.
	INVALID_ARGUMENT_ERROR_CODE = 3
	// INTERNAL_ERROR_CODE represents an internal server error.
	INTERNAL_ERROR_CODE = 13
)
