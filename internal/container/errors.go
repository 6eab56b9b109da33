package container

import "errors"

var (
	// ErrInvalidName is returned for empty or malformed object names.
	ErrInvalidName = errors.New("invalid name")
	// ErrNameInUse is returned when a dimension, variable or attribute
	// name is already defined.
	ErrNameInUse = errors.New("name already in use")
	// ErrUnknownDimension is returned when a dimension name does not resolve.
	ErrUnknownDimension = errors.New("unknown dimension")
	// ErrUnknownVariable is returned when a variable name does not resolve.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrUnknownAttribute is returned when an attribute name does not resolve.
	ErrUnknownAttribute = errors.New("unknown attribute")
	// ErrUnlimitedInUse is returned when a second unlimited dimension is defined.
	ErrUnlimitedInUse = errors.New("unlimited dimension already defined")
	// ErrRecordDimNotFirst is returned when an unlimited dimension is used
	// anywhere but the outermost position of a variable.
	ErrRecordDimNotFirst = errors.New("unlimited dimension must be the outermost dimension")
	// ErrBadLength is returned for a fixed dimension of length zero.
	ErrBadLength = errors.New("fixed dimension length must be positive")
	// ErrBadType is returned for a type the container format cannot hold.
	ErrBadType = errors.New("type not supported by format")
	// ErrBadDataSize is returned when a payload does not match the shape
	// of its variable.
	ErrBadDataSize = errors.New("payload size does not match variable shape")
	// ErrNotInDefineMode is returned for definitions attempted after EndDef.
	ErrNotInDefineMode = errors.New("container not in define mode")
	// ErrInDefineMode is returned for payload writes attempted before EndDef.
	ErrInDefineMode = errors.New("container still in define mode")
	// ErrReadOnly is returned for any mutation of a sealed container.
	ErrReadOnly = errors.New("container is read-only")
	// ErrNotEnhanced is returned when chunking or compression is set on a
	// format that cannot store it.
	ErrNotEnhanced = errors.New("chunking and compression require an enhanced format")
	// ErrBadChunking is returned for an invalid chunk layout.
	ErrBadChunking = errors.New("invalid chunking")
	// ErrBadCompression is returned for invalid compression settings.
	ErrBadCompression = errors.New("invalid compression")
	// ErrBadFormat is returned when a container is created with an unknown format.
	ErrBadFormat = errors.New("unknown container format")
)
