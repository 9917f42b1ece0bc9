package domain

import "time"

type ApplicationDecision string

const (
	DecisionPending  ApplicationDecision = "pending"
	DecisionApproved ApplicationDecision = "approved"
	DecisionRejected ApplicationDecision = "rejected"
)

// Application es la solicitud que revisa el equipo de administracion.
type Application struct {
	ID          string              `json:"id"`
	ProfileID   string              `json:"profile_id"`
	SubmittedAt time.Time           `json:"submitted_at"`
	Decision    ApplicationDecision `json:"decision"`
}
