package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidJob indicates an ingestion job or dataset descriptor that fails validation.
var ErrInvalidJob = errors.New("invalid ingestion job")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the job's required fields. HTTP jobs must carry a URL.
func (j IngestJob) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidJob, describe(err))
	}
	if j.SourceType == SourceTypeHTTP && j.URL == "" {
		return fmt.Errorf("%w: url is required for http datasets", ErrInvalidJob)
	}
	return nil
}

// Validate checks a dataset descriptor with the same rules as its job.
func (d DatasetDescriptor) Validate() error {
	if err := d.Job().Validate(); err != nil {
		return fmt.Errorf("dataset %q: %w", d.DatasetID, err)
	}
	return nil
}

// describe flattens validator errors into "field: rule" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
