package services

import (
	"errors"
	"testing"

	"pack-battle-system/models"
)

func soloRoster(totals ...int64) []models.Participant {
	out := make([]models.Participant, len(totals))
	for i, total := range totals {
		n := i + 1
		out[i] = models.Participant{
			ID:         string(rune('A' + i)),
			TeamNumber: &n,
			TotalValue: total,
		}
	}
	return out
}

func TestResolveOutcomeNoParticipants(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatSolo, Mode: models.BattleModeNormal}
	if _, err := ResolveOutcome(battle, nil, nil); !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("got err %v, want ErrNoParticipants", err)
	}
}

func TestResolveSoloNormalHighestTotalWins(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatSolo, Mode: models.BattleModeNormal}
	roster := soloRoster(30, 50, 10)

	outcome, err := ResolveOutcome(battle, roster, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.PrimaryParticipant.ID != "B" {
		t.Fatalf("winner = %s, want B", outcome.PrimaryParticipant.ID)
	}
	if len(outcome.WinningParticipants) != 1 {
		t.Fatalf("solo outcome has %d winners, want 1", len(outcome.WinningParticipants))
	}
}

func TestResolveSoloUpsideDownLowestTotalWins(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatSolo, Mode: models.BattleModeUpsideDown}
	roster := soloRoster(30, 50, 10)

	outcome, err := ResolveOutcome(battle, roster, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.PrimaryParticipant.ID != "C" {
		t.Fatalf("winner = %s, want C", outcome.PrimaryParticipant.ID)
	}
}

func TestResolveSoloTieKeepsRosterOrder(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatSolo, Mode: models.BattleModeNormal}
	roster := soloRoster(50, 50, 40)

	outcome, err := ResolveOutcome(battle, roster, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.PrimaryParticipant.ID != "A" {
		t.Fatalf("tie winner = %s, want A (earlier join)", outcome.PrimaryParticipant.ID)
	}
}

func TestResolveSoloJackpotSinglePullWins(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatSolo, Mode: models.BattleModeJackpot}
	// C has the lowest total but the single biggest pull.
	roster := soloRoster(60, 50, 40)
	pulls := []models.Pull{
		{ParticipantID: "A", CoinValue: 30},
		{ParticipantID: "A", CoinValue: 30},
		{ParticipantID: "B", CoinValue: 25},
		{ParticipantID: "B", CoinValue: 25},
		{ParticipantID: "C", CoinValue: 35},
		{ParticipantID: "C", CoinValue: 5},
	}

	outcome, err := ResolveOutcome(battle, roster, pulls)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.PrimaryParticipant.ID != "C" {
		t.Fatalf("jackpot winner = %s, want C", outcome.PrimaryParticipant.ID)
	}
}

func TestResolveSoloJackpotTieKeepsEarliestPull(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatSolo, Mode: models.BattleModeJackpot}
	roster := soloRoster(35, 35)
	pulls := []models.Pull{
		{ParticipantID: "B", CoinValue: 35},
		{ParticipantID: "A", CoinValue: 35},
	}

	outcome, err := ResolveOutcome(battle, roster, pulls)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.PrimaryParticipant.ID != "B" {
		t.Fatalf("jackpot tie winner = %s, want B (earlier pull)", outcome.PrimaryParticipant.ID)
	}
}

func TestResolveSoloJackpotNoPullsFallsBackToNormal(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatSolo, Mode: models.BattleModeJackpot}
	roster := soloRoster(10, 80, 20)

	outcome, err := ResolveOutcome(battle, roster, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.PrimaryParticipant.ID != "B" {
		t.Fatalf("fallback winner = %s, want B (highest total)", outcome.PrimaryParticipant.ID)
	}
}

func teamRoster(teamTotals map[int][]int64) []models.Participant {
	var out []models.Participant
	id := 'A'
	for team := 1; team <= len(teamTotals); team++ {
		for _, total := range teamTotals[team] {
			n := team
			out = append(out, models.Participant{
				ID:         string(id),
				TeamNumber: &n,
				TotalValue: total,
			})
			id++
		}
	}
	return out
}

func TestResolveTeamNormalAggregatesTotals(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatTeam, Mode: models.BattleModeNormal}
	// team 1: 40+30 = 70, team 2: 50+10 = 60
	roster := teamRoster(map[int][]int64{1: {40, 30}, 2: {50, 10}})

	outcome, err := ResolveOutcome(battle, roster, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.WinningTeamNumber != 1 {
		t.Fatalf("winning team = %d, want 1", outcome.WinningTeamNumber)
	}
	if len(outcome.WinningParticipants) != 2 {
		t.Fatalf("team outcome has %d winners, want 2", len(outcome.WinningParticipants))
	}
	if outcome.PrimaryParticipant.ID != "A" {
		t.Fatalf("primary = %s, want A (first roster member of team 1)", outcome.PrimaryParticipant.ID)
	}
}

func TestResolveTeamUpsideDownLowestAggregateWins(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatTeam, Mode: models.BattleModeUpsideDown}
	roster := teamRoster(map[int][]int64{1: {40, 30}, 2: {50, 10}})

	outcome, err := ResolveOutcome(battle, roster, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.WinningTeamNumber != 2 {
		t.Fatalf("winning team = %d, want 2", outcome.WinningTeamNumber)
	}
}

func TestResolveTeamTieGoesToLowestTeamNumber(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatTeam, Mode: models.BattleModeNormal}
	roster := teamRoster(map[int][]int64{1: {30, 30}, 2: {40, 20}})

	outcome, err := ResolveOutcome(battle, roster, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.WinningTeamNumber != 1 {
		t.Fatalf("tied teams: winning team = %d, want 1", outcome.WinningTeamNumber)
	}
}

func TestResolveTeamJackpotWholeTeamWins(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatTeam, Mode: models.BattleModeJackpot}
	// Team 2 loses on aggregate but member C holds the biggest single pull.
	roster := teamRoster(map[int][]int64{1: {60, 60}, 2: {100, 0}})
	pulls := []models.Pull{
		{ParticipantID: "A", CoinValue: 60},
		{ParticipantID: "B", CoinValue: 60},
		{ParticipantID: "C", CoinValue: 100},
		{ParticipantID: "D", CoinValue: 0},
	}

	outcome, err := ResolveOutcome(battle, roster, pulls)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.WinningTeamNumber != 2 {
		t.Fatalf("winning team = %d, want 2", outcome.WinningTeamNumber)
	}
	if len(outcome.WinningParticipants) != 2 {
		t.Fatalf("jackpot pays the whole team: got %d winners, want 2", len(outcome.WinningParticipants))
	}
}
