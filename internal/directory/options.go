package directory

import (
	"io/fs"

	"dirwatch/internal/watcher"
)

type options struct {
	perm    fs.FileMode      // permission bits for Create
	parents bool             // create missing parents
	service *watcher.Service // engine; watcher.Default when nil
}

// Option configures Open and Create.
type Option func(opts *options)

// WithPerm sets the permission bits used by Create. Defaults to 0755.
func WithPerm(perm fs.FileMode) Option {
	return func(opts *options) {
		opts.perm = perm
	}
}

// WithParents makes Create behave like mkdir -p.
func WithParents(enabled bool) Option {
	return func(opts *options) {
		opts.parents = enabled
	}
}

// WithService binds the directory to an explicit watch engine.
func WithService(service *watcher.Service) Option {
	return func(opts *options) {
		opts.service = service
	}
}

func buildOptions(opts []Option) options {
	resolved := options{perm: 0o755}
	for _, opt := range opts {
		if opt != nil {
			opt(&resolved)
		}
	}
	return resolved
}
