package domain

import "time"

type ProfileStatus string

const (
	ProfileStatusPending   ProfileStatus = "pending"
	ProfileStatusActive    ProfileStatus = "active"
	ProfileStatusSuspended ProfileStatus = "suspended"
)

// MaxExpertiseAreas limita las areas de especialidad por perfil.
const MaxExpertiseAreas = 4

// ExpertiseOther requiere descripcion libre en OtherExpertise.
const ExpertiseOther = "Other"

// Profile es el registro propio de la aplicacion para un instructor.
type Profile struct {
	ID                           string        `json:"id"`
	ExternalSubjectID            string        `json:"external_subject_id,omitempty"`
	Email                        string        `json:"email"`
	FullName                     string        `json:"full_name,omitempty"`
	PasswordHash                 string        `json:"-"`
	ExpertiseAreas               []string      `json:"expertise_areas"`
	OtherExpertise               string        `json:"other_expertise,omitempty"`
	CredentialBlobRef            string        `json:"credential_blob_ref,omitempty"`
	CredentialStoragePath        string        `json:"-"`
	CredentialNotes              string        `json:"credential_notes,omitempty"`
	Bio                          string        `json:"bio,omitempty"`
	InformationGatheringComplete bool          `json:"information_gathering_complete"`
	Status                       ProfileStatus `json:"status"`
	CreatedAt                    time.Time     `json:"created_at"`
	UpdatedAt                    time.Time     `json:"updated_at"`
}

// HasOnboardingFields indica si los datos de los pasos 1 y 2 ya estan persistidos.
func (p Profile) HasOnboardingFields() bool {
	return len(p.ExpertiseAreas) > 0 && p.CredentialBlobRef != ""
}

// ProfilePatch describe una actualizacion parcial. Los campos nil no se tocan.
// El sujeto externo no forma parte del patch: una vez vinculado es inmutable.
type ProfilePatch struct {
	FullName                     *string
	PasswordHash                 *string
	ExpertiseAreas               *[]string
	OtherExpertise               *string
	CredentialBlobRef            *string
	CredentialStoragePath        *string
	CredentialNotes              *string
	Bio                          *string
	InformationGatheringComplete *bool
	Status                       *ProfileStatus
}

// Empty reporta si el patch no modifica nada.
func (p ProfilePatch) Empty() bool {
	return p.FullName == nil &&
		p.PasswordHash == nil &&
		p.ExpertiseAreas == nil &&
		p.OtherExpertise == nil &&
		p.CredentialBlobRef == nil &&
		p.CredentialStoragePath == nil &&
		p.CredentialNotes == nil &&
		p.Bio == nil &&
		p.InformationGatheringComplete == nil &&
		p.Status == nil
}
