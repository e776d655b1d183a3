package draw

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/erikldr/sortear/internal/models"
)

// EligibleParticipants computes the ordered set of participants eligible for
// a draw. It excludes registrations outside the promotion window relative to
// the draw's creation time, registrations missing required fields, and — when
// the promotion forbids repeat wins — anyone holding a winner record from a
// prior completed draw of the same promotion.
//
// The result is sorted by participant id ascending. The ordering carries no
// eligibility meaning; it only pins down the input sequence so selection is
// reproducible from a seed. An empty result is valid output, not an error.
func EligibleParticipants(promotion models.Promotion, d models.Draw, participants []models.Participant, priorWinners []models.WinnerRecord) []uuid.UUID {
	var excluded map[uuid.UUID]struct{}
	if promotion.Policy == models.RepeatWinForbid {
		excluded = make(map[uuid.UUID]struct{}, len(priorWinners))
		for _, w := range priorWinners {
			excluded[w.ParticipantID] = struct{}{}
		}
	}

	seen := make(map[uuid.UUID]struct{}, len(participants))
	out := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		if !eligible(promotion, d, p) {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		if _, skip := excluded[p.ID]; skip {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p.ID)
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].String(), out[j].String()) < 0
	})
	return out
}

func eligible(promotion models.Promotion, d models.Draw, p models.Participant) bool {
	if p.ID == uuid.Nil {
		return false
	}
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Phone) == "" {
		return false
	}
	if p.PromotionID != promotion.ID {
		return false
	}
	// Registration must fall inside the promotion window [start, end) and
	// must predate the draw it is competing in.
	if p.RegisteredAt.Before(promotion.StartsAt) || !p.RegisteredAt.Before(promotion.EndsAt) {
		return false
	}
	if p.RegisteredAt.After(d.CreatedAt) {
		return false
	}
	return true
}
