package repository

import (
	"github.com/iudanet/medsync/internal/models"
	"github.com/iudanet/medsync/internal/validation"
)

// Patients - репозиторий карточек пациентов
type Patients = Repository[models.Patient]

// Consultations - репозиторий приемов
type Consultations = Repository[models.Consultation]

// Prescriptions - репозиторий назначений
type Prescriptions = Repository[models.Prescription]

// NewPatients creates the patients repository.
func NewPatients(deps Deps) *Patients {
	caps := NewRemoteCapabilities(models.TablePatients, deps.Remote, deps.Cache, deps.Limit)
	return New(caps, Codec[models.Patient]{
		Validate: validation.ValidatePatient,
	}, deps)
}

// NewConsultations creates the consultations repository.
// ParentID записи - пациент консультации.
func NewConsultations(deps Deps) *Consultations {
	caps := NewRemoteCapabilities(models.TableConsultations, deps.Remote, deps.Cache, deps.Limit)
	return New(caps, Codec[models.Consultation]{
		Validate: validation.ValidateConsultation,
		Parent:   func(c *models.Consultation) string { return c.PatientID },
	}, deps)
}

// NewPrescriptions creates the prescriptions repository.
func NewPrescriptions(deps Deps) *Prescriptions {
	caps := NewRemoteCapabilities(models.TablePrescriptions, deps.Remote, deps.Cache, deps.Limit)
	return New(caps, Codec[models.Prescription]{
		Validate: validation.ValidatePrescription,
		Parent:   func(p *models.Prescription) string { return p.PatientID },
	}, deps)
}
