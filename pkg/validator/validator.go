package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

var phoneRegex = regexp.MustCompile(`^[0-9]+$`)

func ValidateRegister(email, phone, firstName, lastName, password string) ValidationErrors {
	errs := make(ValidationErrors)

	// Email
	email = strings.TrimSpace(email)
	if email == "" {
		errs.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Invalid email address")
	}

	// Phone
	phone = strings.TrimSpace(phone)
	if phone == "" {
		errs.Add("phone", "Phone number is required")
	} else if len(phone) < 6 || len(phone) > 15 {
		errs.Add("phone", "Phone number must be between 6 and 15 digits")
	} else if !phoneRegex.MatchString(phone) {
		errs.Add("phone", "Phone number can only contain digits")
	}

	// Names
	if strings.TrimSpace(firstName) == "" {
		errs.Add("first_name", "First name is required")
	} else if len(firstName) > 100 {
		errs.Add("first_name", "First name is too long")
	}
	if strings.TrimSpace(lastName) == "" {
		errs.Add("last_name", "Last name is required")
	} else if len(lastName) > 100 {
		errs.Add("last_name", "Last name is too long")
	}

	// Password
	validatePassword(password, errs)

	return errs
}

func ValidateLogin(email, password string) ValidationErrors {
	errs := make(ValidationErrors)

	email = strings.TrimSpace(email)
	if email == "" {
		errs.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Invalid email address")
	}

	if password == "" {
		errs.Add("password", "Password is required")
	}

	return errs
}

func ValidatePhone(phone string) ValidationErrors {
	errs := make(ValidationErrors)

	phone = strings.TrimSpace(phone)
	if phone == "" {
		errs.Add("phone", "Phone number is required")
	} else if !phoneRegex.MatchString(phone) {
		errs.Add("phone", "Phone number can only contain digits")
	}

	return errs
}

func validatePassword(password string, errs ValidationErrors) {
	if len(password) < 8 {
		errs.Add("password", "Password must be at least 8 characters")
		return
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}

	missing := []string{}
	if !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if !hasDigit {
		missing = append(missing, "one number")
	}

	if len(missing) > 0 {
		errs.Add("password", fmt.Sprintf("Password must contain at least %s", strings.Join(missing, ", ")))
	}
}
