package app

import (
	"fmt"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
)

func errAmbiguous(ref string) error {
	return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("task id %q is ambiguous", ref))
}

func errUnknown(ref string) error {
	return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("no task matches %q", ref))
}

func isNotFound(err error) bool {
	return apperrors.Is(err, apperrors.ErrNotFound)
}
