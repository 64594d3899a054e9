// Package patients resolves patients by phone number within a clinic.
package patients

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

// Patient is keyed by (clinic, phone).
type Patient struct {
	ID        string    `json:"id"`
	ClinicID  string    `json:"clinic_id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists patients.
type Repository interface {
	// FindByPhone returns a NOT_FOUND error when no patient exists.
	FindByPhone(ctx context.Context, clinicID, phone string) (*Patient, error)
	// GetOrCreate resolves the patient, creating it when absent.
	GetOrCreate(ctx context.Context, clinicID, phone string) (*Patient, error)
}

// NormalizePhone keeps only the digits so "+55 (11) 9999-0000" and
// "5511999990000" address the same patient.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validateKey(clinicID, phone string) (string, error) {
	if strings.TrimSpace(clinicID) == "" {
		return "", apperrors.Validation("clinic id required")
	}
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return "", apperrors.Validation("phone %q has no digits", phone)
	}
	return normalized, nil
}
