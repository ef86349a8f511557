// Package validate holds the form rules for the registration screen.
// All functions are pure: no I/O, and the first failing rule wins.
package validate

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinNameWords  = 3
	MaxNameWords  = 5
	MaxNameLength = 35

	StudentIDLength = 8
	StudentIDPrefix = "20"
)

var (
	ErrNameWordCount = errors.New("Ingresa tu nombre completo (1-3 nombres y 2 apellidos)")
	ErrNameLetters   = errors.New("El nombre solo debe contener letras")
	ErrNameTooLong   = errors.New("El nombre no debe exceder 35 caracteres")

	ErrIDDigits = errors.New("La matrícula solo debe contener números")
	ErrIDLength = errors.New("La matrícula debe tener exactamente 8 dígitos")
	ErrIDPrefix = errors.New(`La matrícula debe comenzar con "20"`)

	ErrIDTaken = errors.New("Esta matrícula ya está registrada")
)

// Name checks a full name: 1-3 given names plus 2 family names.
func Name(name string) error {
	words := strings.Fields(name)
	if len(words) < MinNameWords || len(words) > MaxNameWords {
		return ErrNameWordCount
	}
	for _, r := range name {
		if !isNameRune(r) {
			return ErrNameLetters
		}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// StudentID checks an 8 digit matrícula starting with "20".
func StudentID(id string) error {
	for _, r := range id {
		if !isDigit(r) {
			return ErrIDDigits
		}
	}
	if len(id) != StudentIDLength {
		return ErrIDLength
	}
	if !strings.HasPrefix(id, StudentIDPrefix) {
		return ErrIDPrefix
	}
	return nil
}

// SanitizeName drops every character the name field does not accept.
func SanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		if isNameRune(r) {
			return r
		}
		return -1
	}, s)
}

// SanitizeStudentID keeps only ASCII digits.
func SanitizeStudentID(s string) string {
	return strings.Map(func(r rune) rune {
		if isDigit(r) {
			return r
		}
		return -1
	}, s)
}

// NormalizeName trims and collapses internal whitespace.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune("áéíóúñÁÉÍÓÚÑ", r)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
