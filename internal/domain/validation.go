package domain

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ============================================================
// Request validation
// ============================================================

var (
	phoneRegex = regexp.MustCompile(`^[0-9]{10}$`)
	bsnRegex   = regexp.MustCompile(`^[0-9]{8,9}$`)
	ibanRegex  = regexp.MustCompile(`^NL[0-9]{2}[A-Z0-9]{4}[0-9]{10}$`)
)

const maxDescriptionLength = 255

// Validate checks a registration request.
func (r *RegisterRequest) Validate() error {
	var errs ValidationErrors
	validateEmail(&errs, "email", r.Email)
	if !bsnRegex.MatchString(r.BSN) {
		errs.Add("bsn", "BSN should be 8 or 9 digits")
	}
	if strings.TrimSpace(r.FirstName) == "" {
		errs.Add("firstName", "First name is mandatory")
	}
	if strings.TrimSpace(r.LastName) == "" {
		errs.Add("lastName", "Last name is mandatory")
	}
	if !strongPassword(r.Password) {
		errs.Add("password", "Password should be at least 8 characters long and contain at least one uppercase letter, one lowercase letter, one number and one special character")
	}
	if !phoneRegex.MatchString(r.PhoneNumber) {
		errs.Add("phoneNumber", "Phone number should be 10 digits")
	}
	return errs.Err()
}

// Validate checks a login request.
func (r *LoginRequest) Validate() error {
	var errs ValidationErrors
	validateEmail(&errs, "email", r.Email)
	if r.Password == "" {
		errs.Add("password", "Password is mandatory")
	}
	return errs.Err()
}

// Validate checks a transfer request.
func (r *TransferRequest) Validate() error {
	var errs ValidationErrors
	if !ValidIBANFormat(r.SenderIBAN) {
		errs.Add("senderIban", "Sender IBAN is not valid")
	}
	if !ValidIBANFormat(r.ReceiverIBAN) {
		errs.Add("receiverIban", "Receiver IBAN is not valid")
	}
	validateAmount(&errs, "amount", r.Amount)
	if len(r.Description) > maxDescriptionLength {
		errs.Add("description", "Description is too long")
	}
	return errs.Err()
}

// Validate checks a deposit or withdrawal request.
func (r *AtmRequest) Validate() error {
	var errs ValidationErrors
	validateAmount(&errs, "amount", r.Amount)
	if len(r.Description) > maxDescriptionLength {
		errs.Add("description", "Description is too long")
	}
	return errs.Err()
}

// Validate checks an account creation request.
func (r *CreateAccountRequest) Validate() error {
	var errs ValidationErrors
	if r.UserID <= 0 {
		errs.Add("userId", "User is mandatory")
	}
	if !r.AccountType.Valid() {
		errs.Add("accountType", "Account type must be CHECKING or SAVINGS")
	}
	validateLimit(&errs, "absoluteLimit", "Absolute limit", r.AbsoluteLimit)
	return errs.Err()
}

// Validate checks an account patch request.
func (r *PatchAccountRequest) Validate() error {
	var errs ValidationErrors
	switch {
	case r.AbsoluteLimit == nil:
		errs.Add("absoluteLimit", "Absolute limit is mandatory")
	default:
		validateLimit(&errs, "absoluteLimit", "Absolute limit", *r.AbsoluteLimit)
	}
	return errs.Err()
}

// Validate checks a user patch request.
func (r *UserPatchRequest) Validate() error {
	var errs ValidationErrors
	if r.Email != nil {
		validateEmail(&errs, "email", *r.Email)
	}
	if r.FirstName != nil && strings.TrimSpace(*r.FirstName) == "" {
		errs.Add("firstName", "First name cannot be blank")
	}
	if r.LastName != nil && strings.TrimSpace(*r.LastName) == "" {
		errs.Add("lastName", "Last name cannot be blank")
	}
	if r.PhoneNumber != nil && !phoneRegex.MatchString(*r.PhoneNumber) {
		errs.Add("phoneNumber", "Phone number should be 10 digits")
	}
	if r.DayLimit != nil {
		validateLimit(&errs, "dayLimit", "Day limit", *r.DayLimit)
	}
	if r.TransactionLimit != nil {
		validateLimit(&errs, "transactionLimit", "Transaction limit", *r.TransactionLimit)
	}
	return errs.Err()
}

// ValidIBANFormat reports whether s has the shape of a Dutch IBAN.
// Check digits are not verified here.
func ValidIBANFormat(s string) bool {
	return ibanRegex.MatchString(s)
}

func validateAmount(errs *ValidationErrors, field string, amount decimal.Decimal) {
	switch {
	case !amount.IsPositive():
		errs.Add(field, "Amount should be a positive number")
	case !ValidMoneyScale(amount):
		errs.Add(field, "Amount cannot have more than 2 decimal places")
	}
}

func validateLimit(errs *ValidationErrors, field, label string, limit decimal.Decimal) {
	switch {
	case limit.IsNegative():
		errs.Add(field, label+" must be zero or greater")
	case !ValidMoneyScale(limit):
		errs.Add(field, label+" cannot have more than 2 decimal places")
	}
}

func validateEmail(errs *ValidationErrors, field, email string) {
	if strings.TrimSpace(email) == "" {
		errs.Add(field, "Email is mandatory")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		errs.Add(field, "Email should be valid")
	}
}

func strongPassword(p string) bool {
	if len(p) < 8 {
		return false
	}
	var upper, lower, digit, special bool
	for _, c := range p {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		case unicode.IsPunct(c) || unicode.IsSymbol(c):
			special = true
		}
	}
	return upper && lower && digit && special
}
