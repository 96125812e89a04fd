package services

import (
	"sort"

	"pack-battle-system/models"
)

// Outcome is the result of winner resolution for one battle.
type Outcome struct {
	WinningParticipants []models.Participant `json:"winning_participants"`
	WinningTeamNumber   int                  `json:"winning_team_number"`
	PrimaryParticipant  models.Participant   `json:"primary_participant"`
}

// ResolveOutcome computes the winner from final totals and the battle mode.
// participants must be in roster-insertion order and pulls in recorded
// order; both orderings are tie-breakers.
func ResolveOutcome(battle *models.Battle, participants []models.Participant, pulls []models.Pull) (*Outcome, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	if battle.Format == models.BattleFormatTeam {
		return resolveTeam(battle, participants, pulls)
	}
	return resolveSolo(battle, participants, pulls)
}

func resolveTeam(battle *models.Battle, participants []models.Participant, pulls []models.Pull) (*Outcome, error) {
	members := make(map[int][]models.Participant)
	totals := make(map[int]int64)
	for _, p := range participants {
		team := 0
		if p.TeamNumber != nil {
			team = *p.TeamNumber
		}
		members[team] = append(members[team], p)
		totals[team] += p.TotalValue
	}
	teams := make([]int, 0, len(members))
	for team := range members {
		teams = append(teams, team)
	}
	sort.Ints(teams)

	var winner int
	switch battle.Mode {
	case models.BattleModeJackpot:
		if best, ok := highestPullOwner(participants, pulls); ok {
			team := 0
			if best.TeamNumber != nil {
				team = *best.TeamNumber
			}
			winner = team
			break
		}
		// no pulls recorded: fall back to the NORMAL rule
		winner = pickByTotal(teams, totals, false)
	case models.BattleModeUpsideDown:
		winner = pickByTotal(teams, totals, true)
	default:
		winner = pickByTotal(teams, totals, false)
	}

	winning := members[winner]
	return &Outcome{
		WinningParticipants: winning,
		WinningTeamNumber:   winner,
		PrimaryParticipant:  winning[0],
	}, nil
}

func resolveSolo(battle *models.Battle, participants []models.Participant, pulls []models.Pull) (*Outcome, error) {
	var winner models.Participant
	switch battle.Mode {
	case models.BattleModeJackpot:
		if best, ok := highestPullOwner(participants, pulls); ok {
			winner = best
			break
		}
		winner = pickParticipant(participants, false)
	case models.BattleModeUpsideDown:
		winner = pickParticipant(participants, true)
	default:
		winner = pickParticipant(participants, false)
	}

	team := 0
	if winner.TeamNumber != nil {
		team = *winner.TeamNumber
	}
	return &Outcome{
		WinningParticipants: []models.Participant{winner},
		WinningTeamNumber:   team, // legacy mirror of the winner's allocated number
		PrimaryParticipant:  winner,
	}, nil
}

// highestPullOwner finds the participant owning the single most valuable
// pull. Ties break to the earliest pull as recorded.
func highestPullOwner(participants []models.Participant, pulls []models.Pull) (models.Participant, bool) {
	if len(pulls) == 0 {
		return models.Participant{}, false
	}
	best := pulls[0]
	for _, pull := range pulls[1:] {
		if pull.CoinValue > best.CoinValue {
			best = pull
		}
	}
	for _, p := range participants {
		if p.ID == best.ParticipantID {
			return p, true
		}
	}
	return models.Participant{}, false
}

// pickByTotal returns the team with the max (or min) aggregate, ties to the
// lowest team number.
func pickByTotal(teams []int, totals map[int]int64, lowest bool) int {
	winner := teams[0]
	for _, team := range teams[1:] {
		if lowest {
			if totals[team] < totals[winner] {
				winner = team
			}
		} else if totals[team] > totals[winner] {
			winner = team
		}
	}
	return winner
}

// pickParticipant returns the participant with the max (or min) totalValue,
// ties to roster-insertion order.
func pickParticipant(participants []models.Participant, lowest bool) models.Participant {
	winner := participants[0]
	for _, p := range participants[1:] {
		if lowest {
			if p.TotalValue < winner.TotalValue {
				winner = p
			}
		} else if p.TotalValue > winner.TotalValue {
			winner = p
		}
	}
	return winner
}
