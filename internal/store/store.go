// Package store persists applications. Backends share the Store interface
// and report failures as StandardErrors: NotFound, Duplicate or Store.
package store

import (
	"context"
	"fmt"
	"strings"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/models"
)

// Direction is a sort direction for QueryAll.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection defaults to descending, matching the reviewer dashboard.
func ParseDirection(s string) Direction {
	if strings.EqualFold(s, string(Asc)) {
		return Asc
	}
	return Desc
}

// Store is the persistence boundary for applications.
type Store interface {
	// Insert persists app and returns its id. It fails with a Duplicate
	// error when bits_id is already taken; the check and insert are atomic.
	Insert(ctx context.Context, app *models.Application) (string, error)
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindByField(ctx context.Context, field string, value interface{}) (*models.Application, error)
	QueryAll(ctx context.Context, orderBy string, dir Direction) ([]models.Application, error)
	// Update applies patch in a single write.
	Update(ctx context.Context, id string, patch models.Patch) error
	QueryWhere(ctx context.Context, field string, value interface{}) ([]models.Application, error)
}

// Columns usable in FindByField and QueryWhere.
var filterColumns = map[string]bool{
	"id":            true,
	"bits_id":       true,
	"email":         true,
	"mobile_number": true,
	"status":        true,
	"is_evaluated":  true,
	"reviewed_by":   true,
}

// Columns usable in QueryAll ordering.
var orderColumns = map[string]bool{
	"created_at":       true,
	"updated_at":       true,
	"full_name":        true,
	"bits_id":          true,
	"status":           true,
	"evaluation_score": true,
	"evaluated_at":     true,
	"reviewed_at":      true,
}

// DefaultOrder is used when QueryAll gets an empty column.
const DefaultOrder = "created_at"

func checkFilter(field string) error {
	if !filterColumns[field] {
		return apperrors.NewValidationError(fmt.Sprintf("field %q cannot be used as a filter", field))
	}
	return nil
}

func checkOrder(orderBy string) (string, error) {
	if orderBy == "" {
		return DefaultOrder, nil
	}
	if !orderColumns[orderBy] {
		return "", apperrors.NewValidationError(fmt.Sprintf("field %q cannot be used for ordering", orderBy))
	}
	return orderBy, nil
}

// filterValue renders a filter operand for comparison and query strings.
func filterValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case models.Status:
		return string(val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}
