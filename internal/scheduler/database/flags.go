package database

import (
	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
)

type enableFlag struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// FlagRepository stores whether scheduling is enabled.
type FlagRepository struct {
	store            StateStore
	key              string
	enabledByDefault bool
}

func NewFlagRepository(store StateStore, key string, enabledByDefault bool) *FlagRepository {
	return &FlagRepository{
		store:            store,
		key:              key,
		enabledByDefault: enabledByDefault,
	}
}

// Enabled returns the stored flag, or the default if none has been stored.
func (r *FlagRepository) Enabled(ctx *batchcontext.Context) (bool, error) {
	doc, err := r.store.Read(ctx, r.key)
	if err != nil {
		return false, err
	}
	var flag enableFlag
	if err := FromDocument(doc, &flag); err != nil {
		return false, errors.WithMessagef(err, "error decoding flag %s", r.key)
	}
	if flag.Enabled == nil {
		return r.enabledByDefault, nil
	}
	return *flag.Enabled, nil
}

// SetEnabled merges the flag into the stored document, leaving any other fields untouched.
func (r *FlagRepository) SetEnabled(ctx *batchcontext.Context, enabled bool) error {
	return r.store.Write(ctx, r.key, Document{"enabled": enabled}, true)
}
