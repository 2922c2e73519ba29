package directory

import (
	"io/fs"

	"dirwatch/internal/fsutil"
)

var (
	ErrNotADirectory    = fsutil.ErrNotADirectory
	ErrNotFound         = fs.ErrNotExist
	ErrAlreadyExists    = fs.ErrExist
	ErrPermissionDenied = fs.ErrPermission
)
