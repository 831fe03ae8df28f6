package provisioner

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/naming"
)

var (
	requestValidator *validator.Validate
	validatorOnce    sync.Once
)

// V returns the validator with the tenancy rules registered.
func V() *validator.Validate {
	validatorOnce.Do(func() {
		requestValidator = validator.New(validator.WithRequiredStructEnabled())
		requestValidator.RegisterValidation("tenantName", tenantNameValidator)
		requestValidator.RegisterValidation("hostname_idn", hostnameValidator)
	})
	return requestValidator
}

// tenantNameValidator checks the characters allowed in a tenant name.
func tenantNameValidator(fl validator.FieldLevel) bool {
	return naming.ValidateTenantName(fl.Field().String()) == nil
}

// hostnameValidator accepts any hostname that normalises to a valid ASCII name,
// internationalised names included.
func hostnameValidator(fl validator.FieldLevel) bool {
	_, err := naming.NormalizeHostname(fl.Field().String())
	return err == nil
}

// validationError turns validator output into a single invalid input error.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return dberror.ErrInvalidInput.MsgErr("invalid request", err)
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
	}
	return dberror.ErrInvalidInput.Msg("invalid request: " + strings.Join(msgs, ", "))
}
