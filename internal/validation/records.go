package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/medsync/internal/models"
)

// ValidatePayload проверяет доменные поля записи таблицы table.
// Сервер отклоняет невалидные записи; клиент сохраняет их как есть.
func ValidatePayload(table models.Table, data json.RawMessage) error {
	if len(data) == 0 {
		return fmt.Errorf("%s payload cannot be empty", table)
	}

	switch table {
	case models.TablePatients:
		var p models.Patient
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("invalid patient payload: %w", err)
		}
		return ValidatePatient(&p)
	case models.TableConsultations:
		var c models.Consultation
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("invalid consultation payload: %w", err)
		}
		return ValidateConsultation(&c)
	case models.TablePrescriptions:
		var p models.Prescription
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("invalid prescription payload: %w", err)
		}
		return ValidatePrescription(&p)
	default:
		return fmt.Errorf("unknown table %q", table)
	}
}

func ValidatePatient(p *models.Patient) error {
	var errs []error
	if strings.TrimSpace(p.FirstName) == "" {
		errs = append(errs, errors.New("first_name is required"))
	}
	if strings.TrimSpace(p.LastName) == "" {
		errs = append(errs, errors.New("last_name is required"))
	}
	return errors.Join(errs...)
}

func ValidateConsultation(c *models.Consultation) error {
	var errs []error
	if c.PatientID == "" {
		errs = append(errs, errors.New("patient_id is required"))
	}
	if c.ScheduledAt <= 0 {
		errs = append(errs, errors.New("scheduled_at is required"))
	}
	switch c.Status {
	case "", models.ConsultationScheduled, models.ConsultationCompleted, models.ConsultationCancelled:
	default:
		errs = append(errs, fmt.Errorf("unknown status %q", c.Status))
	}
	return errors.Join(errs...)
}

func ValidatePrescription(p *models.Prescription) error {
	var errs []error
	if p.PatientID == "" {
		errs = append(errs, errors.New("patient_id is required"))
	}
	if strings.TrimSpace(p.Medication) == "" {
		errs = append(errs, errors.New("medication is required"))
	}
	if p.DurationDays < 0 {
		errs = append(errs, errors.New("duration_days cannot be negative"))
	}
	return errors.Join(errs...)
}
