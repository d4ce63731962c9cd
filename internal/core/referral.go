package core

import (
	"context"
	"fmt"
	"strings"

	"telecare/pkg"
)

// defaultReferralTerm is used when the classification stage produced no
// recommendation topic to match professions against.
const defaultReferralTerm = "therapy"

// ReferralRepo is the slice of the repository the referral engine needs.
type ReferralRepo interface {
	ConnectedDoctorIDs(ctx context.Context, patientID string) ([]string, error)
	GetDoctorsByIDs(ctx context.Context, ids []string) ([]pkg.Doctor, error)
	SearchDoctorsByProfession(ctx context.Context, term string, limit int) ([]pkg.Doctor, error)
}

// ReferralEngine proposes a doctor once a user's question count crosses the
// pipeline's threshold. It is a pure read-and-format operation.
type ReferralEngine struct {
	repo ReferralRepo
}

// NewReferralEngine wraps a repository.
func NewReferralEngine(repo ReferralRepo) *ReferralEngine {
	return &ReferralEngine{repo: repo}
}

// Suggest returns referral text for the user, or "" when no doctor fits.
// Connected doctors win over candidates; candidates are matched by
// case-insensitive profession substring against the topic.
func (e *ReferralEngine) Suggest(ctx context.Context, userID, topic string) (string, error) {
	ids, err := e.repo.ConnectedDoctorIDs(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(ids) > 0 {
		doctors, err := e.repo.GetDoctorsByIDs(ctx, ids)
		if err != nil {
			return "", err
		}
		if len(doctors) > 0 {
			listed := make([]string, 0, len(doctors))
			for _, d := range doctors {
				listed = append(listed, fmt.Sprintf("Dr. %s (%s)", d.Name, d.Profession))
			}
			return fmt.Sprintf(
				"The user is already connected with: %s. Remind them they can reach out to their doctor directly for professional support.",
				strings.Join(listed, ", ")), nil
		}
	}

	term := strings.TrimSpace(topic)
	if term == "" {
		term = defaultReferralTerm
	}
	candidates, err := e.repo.SearchDoctorsByProfession(ctx, term, 1)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", nil
	}
	d := candidates[0]
	return fmt.Sprintf(
		"The user is not connected with a doctor yet. Suggest connecting with Dr. %s (%s) on this platform for professional support.",
		d.Name, d.Profession), nil
}
