package models

// Patient представляет карточку пациента.
type Patient struct {
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	BirthDate   string   `json:"birth_date,omitempty"` // BirthDate в формате YYYY-MM-DD
	Gender      string   `json:"gender,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Address     string   `json:"address,omitempty"`
	BloodType   string   `json:"blood_type,omitempty"`
	Allergies   []string `json:"allergies,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Active      bool     `json:"active"`
	MedicalCard string   `json:"medical_card,omitempty"` // MedicalCard номер медицинской карты
}

// Consultation представляет прием пациента врачом.
type Consultation struct {
	PatientID   string `json:"patient_id"`
	DoctorID    string `json:"doctor_id,omitempty"`
	ScheduledAt int64  `json:"scheduled_at,omitempty"` // ScheduledAt время приема (мс)
	Status      string `json:"status,omitempty"`       // Status scheduled, completed, cancelled
	Complaints  string `json:"complaints,omitempty"`
	Diagnosis   string `json:"diagnosis,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Prescription представляет назначение лекарственного препарата.
type Prescription struct {
	PatientID      string `json:"patient_id"`
	ConsultationID string `json:"consultation_id,omitempty"`
	Medication     string `json:"medication"`
	Dosage         string `json:"dosage,omitempty"`
	Frequency      string `json:"frequency,omitempty"`
	DurationDays   int    `json:"duration_days,omitempty"`
	Instructions   string `json:"instructions,omitempty"`
}

// Consultation statuses
const (
	ConsultationScheduled = "scheduled"
	ConsultationCompleted = "completed"
	ConsultationCancelled = "cancelled"
)
