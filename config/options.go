// Package config defines and loads the configuration the top-level client
// factory accepts, shipped the way a viper-backed loader normally is even
// though it sits outside the routing/failover core's tested surface.
package config

import (
	"fmt"

	"github.com/scality/sproxydclient/internal/keygen"
)

const (
	// DefaultPath is the URL base path used unless ChordCos overrides it.
	DefaultPath = "/proxy/arc/"
	// ChordPath is used automatically when ChordCos is set.
	ChordPath = "/proxy/chord/"
)

// Options is the recognised, validated configuration surface for a Client.
type Options struct {
	// Bootstrap is the seed list of "host:port" endpoints.
	Bootstrap []string
	// Path overrides the URL base path. Defaults to DefaultPath, or
	// ChordPath if ChordCos is set and Path is left empty.
	Path string
	// ChordCos overrides the default class-of-service byte embedded in
	// generated keys, and implies the chord path unless Path is set
	// explicitly.
	ChordCos *byte
	// Immutable adds the X-Scal-Replica-Policy: immutable header to every
	// request when true.
	Immutable bool
}

// EffectivePath resolves the base path per the Path/ChordCos precedence
// rule: an explicit Path always wins; otherwise ChordCos selects the chord
// path.
func (o Options) EffectivePath() string {
	if o.Path != "" {
		return o.Path
	}
	if o.ChordCos != nil {
		return ChordPath
	}
	return DefaultPath
}

// EffectiveCos resolves the class-of-service byte embedded in generated
// keys.
func (o Options) EffectiveCos() byte {
	if o.ChordCos != nil {
		return *o.ChordCos
	}
	return keygen.DefaultClassOfService
}

// Validate checks the recognised options for obvious misconfiguration
// before a Client is constructed from them.
func (o Options) Validate() error {
	if len(o.Bootstrap) == 0 {
		return fmt.Errorf("config: bootstrap list must not be empty")
	}
	for _, b := range o.Bootstrap {
		if b == "" {
			return fmt.Errorf("config: bootstrap entries must not be empty")
		}
	}
	return nil
}
