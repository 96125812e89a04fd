package services

import (
	"pack-battle-system/models"
)

// nextTeamNumber assigns the team for a joining participant.
//
// TEAM format: first team 1..TeamCount with fewer than TeamSize members.
// Admission stops accepting at capacity, so running out of slots here means
// the roster invariant was broken upstream.
//
// SOLO format: smallest positive integer not already in use, probing from 1.
// Solo battles have no real teams; the per-participant number is kept for
// compatibility with the team-shaped roster.
func nextTeamNumber(battle *models.Battle, existing []models.Participant) (int, error) {
	if battle.Format == models.BattleFormatTeam {
		counts := make(map[int]int, battle.TeamCount)
		for _, p := range existing {
			if p.TeamNumber != nil {
				counts[*p.TeamNumber]++
			}
		}
		for team := 1; team <= battle.TeamCount; team++ {
			if counts[team] < battle.TeamSize {
				return team, nil
			}
		}
		return 0, ErrNoAvailableTeams
	}

	if len(existing) == 0 {
		return 1, nil
	}
	used := make(map[int]bool, len(existing))
	for _, p := range existing {
		if p.TeamNumber != nil {
			used[*p.TeamNumber] = true
		}
	}
	n := 1
	for used[n] {
		n++
	}
	return n, nil
}
