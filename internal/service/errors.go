package service

import (
	"errors"

	"github.com/spec-kit/community-services/internal/repository"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

// storeError translates repository sentinels into API errors. Errors that
// are already DomainErrors, such as those returned from mutators, pass
// through untouched.
func storeError(err error, resource, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", map[string]any{"id": id})
	case errors.Is(err, repository.ErrStale):
		return apperrors.NewConflict(resource+" modified concurrently", map[string]any{"id": id})
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return apperrors.NewInternalError(err)
}
