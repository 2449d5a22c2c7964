package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators is called by Validate to add broker-specific
// validation tags to v. It registers none and returns nil; the cross-field
// rules are applied by Validate itself.
func RegisterCustomValidators(v *validator.Validate) error {
	return nil
}

// Validate validates the BrokerConfig using struct tags and custom
// cross-field rules. Returns an error if validation fails, with actionable
// error messages.
func (c *BrokerConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateSigningKeySource(); err != nil {
		return err
	}

	if err := c.validateReviewerBounds(); err != nil {
		return err
	}

	if err := c.validateBackendRequirements(); err != nil {
		return err
	}

	return nil
}

// validateSigningKeySource ensures exactly one way of obtaining a signing
// key is configured: a key file, or an explicit ephemeral key.
func (c *BrokerConfig) validateSigningKeySource() error {
	hasKeyPath := c.Signing.KeyPath != ""

	if hasKeyPath && c.Signing.Ephemeral {
		return errors.New("signing: specify key_path OR ephemeral, not both")
	}
	if !hasKeyPath && !c.Signing.Ephemeral {
		return errors.New("signing: key_path is required unless ephemeral is set")
	}
	return nil
}

// validateReviewerBounds ensures the MPA reviewer range is non-empty.
func (c *BrokerConfig) validateReviewerBounds() error {
	if c.Activation.ReviewerMin > c.Activation.ReviewerMax {
		return fmt.Errorf("activation: reviewer_min (%d) must not exceed reviewer_max (%d)",
			c.Activation.ReviewerMin, c.Activation.ReviewerMax)
	}
	return nil
}

// validateBackendRequirements ensures the selected backend carries the
// fields it needs.
func (c *BrokerConfig) validateBackendRequirements() error {
	if c.Backend.Kind != "gcp" {
		return nil
	}
	if c.Backend.GCP.Project == "" {
		return errors.New("backend.gcp: project is required when backend.kind is \"gcp\"")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "fqdn":
		return fmt.Sprintf("%s must be a valid domain name", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
