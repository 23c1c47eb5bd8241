package bolt

import (
	"errors"

	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
)

// unavailable marks storage failures as cache unavailability
func unavailable(err error) error {
	return errors.Join(model.ErrCacheUnavailable, err)
}
