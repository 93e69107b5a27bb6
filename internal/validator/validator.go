package validator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"farmdash/internal/rbac"
)

var disposableEmailDomains = []string{
	"10minutemail.com", "guerrillamail.com", "mailinator.com", "tempmail.org",
	"yopmail.com", "maildrop.cc", "temp-mail.org", "throwaway.email",
}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// Custom validators
	v.RegisterValidation("password_strength", validatePasswordStrength)
	v.RegisterValidation("no_disposable_email", validateNoDisposableEmail)
	v.RegisterValidation("role_type", validateRoleType)
	v.RegisterValidation("scope_type", validateScopeType)

	return &Validator{validate: v}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func validatePasswordStrength(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	if len(password) < 8 {
		return false
	}

	hasUpper := regexp.MustCompile(`[A-Z]`).MatchString(password)
	hasLower := regexp.MustCompile(`[a-z]`).MatchString(password)
	hasDigit := regexp.MustCompile(`\d`).MatchString(password)

	return hasUpper && hasLower && hasDigit
}

func validateNoDisposableEmail(fl validator.FieldLevel) bool {
	email := fl.Field().String()
	emailParts := strings.Split(email, "@")
	if len(emailParts) != 2 {
		return false
	}

	domain := strings.ToLower(emailParts[1])
	for _, disposableDomain := range disposableEmailDomains {
		if domain == disposableDomain {
			return false
		}
	}

	return true
}

func validateRoleType(fl validator.FieldLevel) bool {
	return rbac.RoleType(fl.Field().String()).IsValid()
}

func validateScopeType(fl validator.FieldLevel) bool {
	return rbac.ScopeType(fl.Field().String()).IsValid()
}
