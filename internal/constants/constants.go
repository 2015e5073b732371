// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// DescriptorDim is the length of a face descriptor produced by the extraction service
	DescriptorDim = 128

	// DefaultLoginTolerance is the max Euclidean distance accepted by face login
	DefaultLoginTolerance = 0.6

	// DefaultAttendanceTolerance is the max Euclidean distance accepted by check-in and check-out
	DefaultAttendanceTolerance = 0.65

	// DefaultDuplicateTolerance is the max distance at which a new registration counts as an existing face
	DefaultDuplicateTolerance = 0.6
)

// Match policies
const (
	// MatchPolicyFirst returns the first stored descriptor within tolerance in iteration order
	MatchPolicyFirst = "first"

	// MatchPolicyNearest returns the closest stored descriptor within tolerance
	MatchPolicyNearest = "nearest"
)

// Image normalization constants
const (
	// NormalizeJPEGQuality is the JPEG quality used when re-encoding the normalized image
	NormalizeJPEGQuality = 90

	// MaxImagePixels bounds width*height of an upload before it is decoded (about 50MP)
	MaxImagePixels = 50_000_000
)

// Auth constants
const (
	// TokenLifetime is how long an access token stays valid after issuance
	TokenLifetime = 30 * time.Minute

	// DevSecretKey is used when SECRET_KEY is unset. Never use it in production.
	DevSecretKey = "mysecretkey"

	// TokenType is the token_type reported in login responses
	TokenType = "bearer"
)

// Earnings are reported with two decimals.
const MoneyDecimals = 2
