// Package intake validates and records induction applications.
package intake

import (
	"context"
	"errors"
	"regexp"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/store"
)

var (
	// year, campus+discipline, branch, serial, campus suffix
	bitsIDRegex = regexp.MustCompile(`^\d{4}(PH|[ABCDHJ](A|B|C|D|J|[0-9]))(PS|TS|PX|RM|IS|IO|UB|CS|MM|MMPS|MM([ABHCDJ]|[0-9])(A|B|C|D|J|[0-9]))\d{4}[GHP]$`)
	phoneRegex  = regexp.MustCompile(`^[0-9]{10}$`)
)

// ValidateStructuredID reports whether id is a well-formed BITS ID such as
// 2023A7PS0001G. The match is exact; no case folding or trimming.
func ValidateStructuredID(id string) bool {
	return bitsIDRegex.MatchString(id)
}

// ValidatePhone reports whether p is exactly ten ASCII digits.
func ValidatePhone(p string) bool {
	return phoneRegex.MatchString(p)
}

// Rules bundles the checks that need the store.
type Rules struct {
	store  store.Store
	logger logger.Logger

	// lookupTimeout bounds the duplicate lookup; zero means no extra bound.
	lookupTimeout time.Duration
}

func NewRules(s store.Store, log logger.Logger) *Rules {
	return &Rules{store: s, logger: log}
}

// CheckDuplicateID reports whether an application with bitsID exists.
// Lookup failures are logged and count as "not a duplicate"; the store's
// unique insert is what actually prevents duplicates.
func (r *Rules) CheckDuplicateID(ctx context.Context, bitsID string) bool {
	if r.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()
	}

	_, err := r.store.FindByField(ctx, "bits_id", bitsID)
	if err == nil {
		return true
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		r.logger.Warn("duplicate check failed, allowing submission", map[string]interface{}{
			"bitsId": bitsID,
			"error":  err,
		})
	}
	return false
}
