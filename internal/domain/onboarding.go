package domain

type OnboardingStep string

const (
	StepExpertise  OnboardingStep = "step1_expertise"
	StepCredential OnboardingStep = "step2_credential"
	StepReview     OnboardingStep = "step3_review"
	StepSubmitted  OnboardingStep = "submitted"
)

// CurrentStep deriva el paso de onboarding a partir del estado persistido.
func CurrentStep(p Profile, submitted bool) OnboardingStep {
	switch {
	case submitted:
		return StepSubmitted
	case len(p.ExpertiseAreas) == 0:
		return StepExpertise
	case p.CredentialBlobRef == "" || !p.InformationGatheringComplete:
		return StepCredential
	default:
		return StepReview
	}
}
