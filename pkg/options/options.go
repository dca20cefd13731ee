// Package options defines the generic options interface shared by the
// per-component option groups (log, gateway, minio, redis).
package options

import "github.com/spf13/pflag"

// IOptions defines methods to implement a generic options group.
type IOptions interface {
	// AddFlags adds flags related to given flagset.
	AddFlags(fs *pflag.FlagSet)
	// Complete fills derived values and environment fallbacks.
	Complete() error
	// Validate validates all the required options.
	Validate() error
}
