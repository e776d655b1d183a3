package draw

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/erikldr/sortear/internal/models"
)

func testPromotion(policy models.RepeatWinPolicy) models.Promotion {
	return models.Promotion{
		ID:       uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Name:     "summer promo",
		Status:   models.PromotionStatusActive,
		Policy:   policy,
		StartsAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2034, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func testParticipant(promotion models.Promotion, suffix string, registeredAt time.Time) models.Participant {
	return models.Participant{
		ID:           uuid.MustParse("00000000-0000-0000-0000-" + suffix),
		PromotionID:  promotion.ID,
		Name:         "participant " + suffix,
		Phone:        "+5511999990000",
		RegisteredAt: registeredAt,
	}
}

func TestEligibleOrderedByID(t *testing.T) {
	promo := testPromotion(models.RepeatWinAllow)
	registered := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := models.Draw{ID: uuid.New(), PromotionID: promo.ID, CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}

	// Deliberately out of order.
	participants := []models.Participant{
		testParticipant(promo, "000000000003", registered),
		testParticipant(promo, "000000000001", registered),
		testParticipant(promo, "000000000002", registered),
	}

	eligible := EligibleParticipants(promo, d, participants, nil)
	assert.Len(t, eligible, 3)
	for i := 1; i < len(eligible); i++ {
		assert.True(t, eligible[i-1].String() < eligible[i].String(), "eligible set must be sorted by id")
	}
}

func TestEligibleExcludesInvalidFields(t *testing.T) {
	promo := testPromotion(models.RepeatWinAllow)
	registered := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := models.Draw{ID: uuid.New(), PromotionID: promo.ID, CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}

	noName := testParticipant(promo, "000000000001", registered)
	noName.Name = "   "
	noPhone := testParticipant(promo, "000000000002", registered)
	noPhone.Phone = ""
	nilID := testParticipant(promo, "000000000003", registered)
	nilID.ID = uuid.Nil
	ok := testParticipant(promo, "000000000004", registered)

	eligible := EligibleParticipants(promo, d, []models.Participant{noName, noPhone, nilID, ok}, nil)
	assert.Equal(t, []uuid.UUID{ok.ID}, eligible)
}

func TestEligibleExcludesOutsideWindow(t *testing.T) {
	promo := testPromotion(models.RepeatWinAllow)
	d := models.Draw{ID: uuid.New(), PromotionID: promo.ID, CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}

	beforeWindow := testParticipant(promo, "000000000001", promo.StartsAt.Add(-time.Hour))
	atWindowEnd := testParticipant(promo, "000000000002", promo.EndsAt)
	afterDraw := testParticipant(promo, "000000000003", d.CreatedAt.Add(time.Hour))
	inWindow := testParticipant(promo, "000000000004", promo.StartsAt)

	eligible := EligibleParticipants(promo, d, []models.Participant{beforeWindow, atWindowEnd, afterDraw, inWindow}, nil)
	assert.Equal(t, []uuid.UUID{inWindow.ID}, eligible)
}

func TestEligibleRepeatWinForbidExcludesPriorWinners(t *testing.T) {
	promo := testPromotion(models.RepeatWinForbid)
	registered := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := models.Draw{ID: uuid.New(), PromotionID: promo.ID, CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}

	a := testParticipant(promo, "00000000000a", registered)
	b := testParticipant(promo, "00000000000b", registered)
	c := testParticipant(promo, "00000000000c", registered)

	prior := []models.WinnerRecord{{DrawID: uuid.New(), ParticipantID: b.ID, Position: 0}}

	eligible := EligibleParticipants(promo, d, []models.Participant{a, b, c}, prior)
	assert.Equal(t, []uuid.UUID{a.ID, c.ID}, eligible)
}

func TestEligibleRepeatWinAllowKeepsPriorWinners(t *testing.T) {
	promo := testPromotion(models.RepeatWinAllow)
	registered := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := models.Draw{ID: uuid.New(), PromotionID: promo.ID, CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}

	a := testParticipant(promo, "00000000000a", registered)
	b := testParticipant(promo, "00000000000b", registered)
	prior := []models.WinnerRecord{{DrawID: uuid.New(), ParticipantID: b.ID, Position: 0}}

	eligible := EligibleParticipants(promo, d, []models.Participant{a, b}, prior)
	assert.Len(t, eligible, 2)
}

func TestEligibleEmptyPoolIsValid(t *testing.T) {
	promo := testPromotion(models.RepeatWinForbid)
	d := models.Draw{ID: uuid.New(), PromotionID: promo.ID, CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}

	eligible := EligibleParticipants(promo, d, nil, nil)
	assert.Empty(t, eligible)
}
