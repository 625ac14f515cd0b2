package models

import (
	"strings"

	"github.com/desertthunder/podsession/internal/shared"
)

// OTPChannel is the delivery channel for one-time passwords.
type OTPChannel string

const (
	ChannelEmail OTPChannel = "email"
	ChannelSMS   OTPChannel = "sms"
)

// OTPType is the purpose an OTP was issued for.
type OTPType string

const (
	OTPRegistration  OTPType = "registration"
	OTPPasswordReset OTPType = "password_reset"
)

// ParseOTPChannel normalizes a user-supplied channel name.
func ParseOTPChannel(s string) (OTPChannel, error) {
	switch OTPChannel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelSMS, "phone":
		return ChannelSMS, nil
	default:
		return "", shared.NewValidationError("unknown OTP channel %q, expected email or sms", s)
	}
}

// ParseOTPType normalizes a user-supplied OTP purpose.
func ParseOTPType(s string) (OTPType, error) {
	switch OTPType(strings.ToLower(strings.TrimSpace(s))) {
	case OTPRegistration, "":
		return OTPRegistration, nil
	case OTPPasswordReset, "reset":
		return OTPPasswordReset, nil
	default:
		return "", shared.NewValidationError("unknown OTP type %q", s)
	}
}

// Registration is the body of POST /auth/register.
type Registration struct {
	Email           string     `json:"email"`
	Password        string     `json:"password"`
	ConfirmPassword string     `json:"confirmPassword"`
	FullName        string     `json:"fullName"`
	PhoneNumber     string     `json:"phoneNumber"`
	OTPSentChannel  OTPChannel `json:"otpSentChannel"`
}

// Contact returns the identifier the OTP is delivered to for the selected channel.
func (r Registration) Contact() string {
	if r.OTPSentChannel == ChannelSMS {
		return r.PhoneNumber
	}
	return r.Email
}

// Validate performs the checks a registration form makes before submitting.
//
// Password strength and phone format are left to the backend.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.FullName) == "" {
		return shared.NewValidationError("full name is required")
	}
	if strings.TrimSpace(r.Email) == "" && strings.TrimSpace(r.PhoneNumber) == "" {
		return shared.NewValidationError("email or phone number is required")
	}
	if r.Password == "" {
		return shared.NewValidationError("password is required")
	}
	if r.Password != r.ConfirmPassword {
		return shared.NewValidationError("passwords do not match")
	}
	switch r.OTPSentChannel {
	case ChannelEmail, ChannelSMS:
	default:
		return shared.NewValidationError("unknown OTP channel %q, expected email or sms", r.OTPSentChannel)
	}
	if strings.TrimSpace(r.Contact()) == "" {
		return shared.NewValidationError("%s channel selected but no matching contact was given", r.OTPSentChannel)
	}
	return nil
}

// RegisterResult echoes the contact and channel the caller should route to OTP verification with.
type RegisterResult struct {
	Contact string
	Channel OTPChannel
	Message string
}

// OTPVerification is the body of POST /auth/verify-otp.
type OTPVerification struct {
	Contact        string     `json:"contact"`
	OTPCode        string     `json:"otpCode"`
	OTPSentChannel OTPChannel `json:"otpSentChannel"`
	OTPType        OTPType    `json:"otpType"`
}

// Validate checks that every field is present.
func (v OTPVerification) Validate() error {
	if strings.TrimSpace(v.Contact) == "" {
		return shared.NewValidationError("contact is required")
	}
	if strings.TrimSpace(v.OTPCode) == "" {
		return shared.NewValidationError("otp code is required")
	}
	if v.OTPSentChannel != ChannelEmail && v.OTPSentChannel != ChannelSMS {
		return shared.NewValidationError("unknown OTP channel %q, expected email or sms", v.OTPSentChannel)
	}
	if v.OTPType == "" {
		return shared.NewValidationError("otp type is required")
	}
	return nil
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	GrantType string `json:"grantType"`
}

// Envelope is the backend's common response wrapper.
type Envelope[T any] struct {
	IsSuccess bool   `json:"isSuccess"`
	Message   string `json:"message"`
	Data      T      `json:"data"`
}
