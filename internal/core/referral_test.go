package core

import (
	"context"
	"strings"
	"testing"

	"telecare/pkg"
)

func TestSuggest_ConnectedDoctorsWin(t *testing.T) {
	repo := newFakeRepo()
	repo.connectedIDs = []string{"d1", "d2"}
	repo.doctorsByID["d1"] = pkg.Doctor{ID: "d1", Name: "Sam Rivera", Profession: "Psychiatrist"}
	repo.doctorsByID["d2"] = pkg.Doctor{ID: "d2", Name: "Lena Fischer", Profession: "Therapist"}
	repo.searchMatches = []pkg.Doctor{{Name: "Should Not Appear", Profession: "Therapist"}}
	engine := NewReferralEngine(repo)

	got, err := engine.Suggest(context.Background(), "user-1", "anxiety")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if !strings.Contains(got, "already connected") {
		t.Errorf("Suggest() = %q, want the connected-doctor phrasing", got)
	}
	if !strings.Contains(got, "Dr. Sam Rivera (Psychiatrist)") || !strings.Contains(got, "Dr. Lena Fischer (Therapist)") {
		t.Errorf("Suggest() = %q, missing a connected doctor", got)
	}
	if strings.Contains(got, "Should Not Appear") {
		t.Errorf("Suggest() = %q, searched for candidates despite existing connections", got)
	}
	if len(repo.searchedTerms) != 0 {
		t.Errorf("profession search ran %d times, want 0", len(repo.searchedTerms))
	}
}

func TestSuggest_CandidateByTopic(t *testing.T) {
	repo := newFakeRepo()
	repo.searchMatches = []pkg.Doctor{{Name: "Priya Nair", Profession: "Sleep Specialist"}}
	engine := NewReferralEngine(repo)

	got, err := engine.Suggest(context.Background(), "user-1", "sleep")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if !strings.Contains(got, "not connected with a doctor yet") {
		t.Errorf("Suggest() = %q, want the candidate phrasing", got)
	}
	if !strings.Contains(got, "Dr. Priya Nair (Sleep Specialist)") {
		t.Errorf("Suggest() = %q, missing the candidate", got)
	}
	if len(repo.searchedTerms) != 1 || repo.searchedTerms[0] != "sleep" {
		t.Errorf("searched terms = %v, want [sleep]", repo.searchedTerms)
	}
}

func TestSuggest_EmptyTopicFallsBackToTherapy(t *testing.T) {
	repo := newFakeRepo()
	repo.searchMatches = []pkg.Doctor{{Name: "Priya Nair", Profession: "Therapist"}}
	engine := NewReferralEngine(repo)

	if _, err := engine.Suggest(context.Background(), "user-1", "  "); err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(repo.searchedTerms) != 1 || repo.searchedTerms[0] != "therapy" {
		t.Errorf("searched terms = %v, want [therapy]", repo.searchedTerms)
	}
}

func TestSuggest_NoDoctorFits(t *testing.T) {
	engine := NewReferralEngine(newFakeRepo())

	got, err := engine.Suggest(context.Background(), "user-1", "anxiety")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if got != "" {
		t.Errorf("Suggest() = %q, want empty when nobody matches", got)
	}
}
