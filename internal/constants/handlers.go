package constants

// File upload constants
const (
	// MaxUploadSize is the maximum multipart request size in bytes (20MB)
	MaxUploadSize = 20 << 20

	// MaxRequestSize caps a whole multipart request: the image plus 1MB for form fields
	MaxRequestSize = MaxUploadSize + 1<<20

	// ImageFormField is the multipart field carrying the face image
	ImageFormField = "image"
)

// HTTP server constants
const (
	// DefaultPort is the default HTTP listen port
	DefaultPort = 8000

	// DefaultRequestTimeout bounds a single request including face extraction
	DefaultRequestTimeout = 60
)
