package validation

import (
	"fmt"
	"regexp"

	"github.com/iudanet/medsync/internal/models"
)

// UsernamePattern определяет допустимый формат логина сотрудника:
// латинские буквы, цифры, '_', '.', '-'; первый символ - буква.
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]{2,31}$`)

// HospitalIDPattern - идентификатор больницы (scope id)
var HospitalIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

const (
	// MinUsernameLen минимальная длина username
	MinUsernameLen = 3
	// MaxUsernameLen максимальная длина username
	MaxUsernameLen = 32
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 10
)

// ValidateUsername проверяет, что username соответствует требованиям
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if len(username) < MinUsernameLen {
		return fmt.Errorf("username must be at least %d characters long", MinUsernameLen)
	}

	if len(username) > MaxUsernameLen {
		return fmt.Errorf("username must not exceed %d characters", MaxUsernameLen)
	}

	if !UsernamePattern.MatchString(username) {
		return fmt.Errorf("username must start with a letter and contain only letters, numbers, '_', '.' or '-'")
	}

	return nil
}

// ValidatePassword проверяет минимальные требования к паролю
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}

	return nil
}

// ValidateHospitalID checks a tenant scope identifier.
func ValidateHospitalID(id string) error {
	if id == "" {
		return fmt.Errorf("hospital id cannot be empty")
	}
	if !HospitalIDPattern.MatchString(id) {
		return fmt.Errorf("hospital id %q has invalid format", id)
	}
	return nil
}

// ValidateRole checks a staff role; an empty role is allowed and means doctor.
func ValidateRole(role string) error {
	switch role {
	case "", models.RoleDoctor, models.RoleNurse, models.RoleAdmin:
		return nil
	default:
		return fmt.Errorf("unknown role %q", role)
	}
}
