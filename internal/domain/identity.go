package domain

// ExternalIdentity es la vista de solo lectura de una identidad del proveedor externo.
type ExternalIdentity struct {
	SubjectID string `json:"subject_id"`
	Email     string `json:"email"`
	Verified  bool   `json:"verified"`
}
