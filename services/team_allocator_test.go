package services

import (
	"errors"
	"testing"

	"pack-battle-system/models"
)

func teamBattle(teamCount, teamSize int) *models.Battle {
	return &models.Battle{
		Format:          models.BattleFormatTeam,
		TeamCount:       teamCount,
		TeamSize:        teamSize,
		MaxParticipants: teamCount * teamSize,
	}
}

func seated(teams ...int) []models.Participant {
	out := make([]models.Participant, len(teams))
	for i, team := range teams {
		n := team
		out[i] = models.Participant{TeamNumber: &n}
	}
	return out
}

func TestTeamFormatFillsLowestTeamFirst(t *testing.T) {
	battle := teamBattle(2, 2)

	got, err := nextTeamNumber(battle, nil)
	if err != nil || got != 1 {
		t.Fatalf("empty roster: got team %d, err %v, want team 1", got, err)
	}

	got, err = nextTeamNumber(battle, seated(1))
	if err != nil || got != 1 {
		t.Fatalf("team 1 half full: got team %d, err %v, want team 1", got, err)
	}

	got, err = nextTeamNumber(battle, seated(1, 1))
	if err != nil || got != 2 {
		t.Fatalf("team 1 full: got team %d, err %v, want team 2", got, err)
	}

	got, err = nextTeamNumber(battle, seated(1, 1, 2))
	if err != nil || got != 2 {
		t.Fatalf("last seat: got team %d, err %v, want team 2", got, err)
	}
}

func TestTeamFormatAllTeamsFull(t *testing.T) {
	battle := teamBattle(2, 2)
	if _, err := nextTeamNumber(battle, seated(1, 1, 2, 2)); !errors.Is(err, ErrNoAvailableTeams) {
		t.Fatalf("full roster: got err %v, want ErrNoAvailableTeams", err)
	}
}

func TestTeamFormatSequentialJoinsBalance(t *testing.T) {
	battle := teamBattle(3, 2)
	var roster []models.Participant
	counts := make(map[int]int)
	for i := 0; i < battle.MaxParticipants; i++ {
		team, err := nextTeamNumber(battle, roster)
		if err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
		roster = append(roster, seated(team)...)
		counts[team]++
	}
	for team := 1; team <= battle.TeamCount; team++ {
		if counts[team] != battle.TeamSize {
			t.Fatalf("team %d ended with %d members, want %d", team, counts[team], battle.TeamSize)
		}
	}
}

func TestSoloFormatAssignsSmallestUnused(t *testing.T) {
	battle := &models.Battle{Format: models.BattleFormatSolo, MaxParticipants: 4}

	got, err := nextTeamNumber(battle, nil)
	if err != nil || got != 1 {
		t.Fatalf("empty roster: got %d, err %v, want 1", got, err)
	}

	got, err = nextTeamNumber(battle, seated(1, 2))
	if err != nil || got != 3 {
		t.Fatalf("dense roster: got %d, err %v, want 3", got, err)
	}

	// Gaps from departed participants are reused.
	got, err = nextTeamNumber(battle, seated(1, 3))
	if err != nil || got != 2 {
		t.Fatalf("gap at 2: got %d, err %v, want 2", got, err)
	}

	got, err = nextTeamNumber(battle, seated(2, 3))
	if err != nil || got != 1 {
		t.Fatalf("gap at 1: got %d, err %v, want 1", got, err)
	}
}
