// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/wfunc/rpsarena/rules"
)

// GormRound is the archive row for one resolved round.
type GormRound struct {
	gorm.Model
	RoomID      string    `gorm:"index:idx_round,unique;not null"`
	RoundNumber int       `gorm:"index:idx_round,unique;not null"`
	PlayerA     string    `gorm:"index;not null"`
	PlayerB     string    `gorm:"index;not null"`
	ChoiceA     string    `gorm:"not null"`
	ChoiceB     string    `gorm:"not null"`
	ResultA     string    `gorm:"not null"`
	ResultB     string    `gorm:"not null"`
	ResolvedAt  time.Time `gorm:"index;not null"`
}

func (GormRound) TableName() string {
	return "rounds"
}

func NewGormRound(r *RoundRecord) *GormRound {
	return &GormRound{
		RoomID:      r.RoomID,
		RoundNumber: r.RoundNumber,
		PlayerA:     r.Players[0],
		PlayerB:     r.Players[1],
		ChoiceA:     string(r.Choices[0]),
		ChoiceB:     string(r.Choices[1]),
		ResultA:     string(r.Results[0]),
		ResultB:     string(r.Results[1]),
		ResolvedAt:  r.ResolvedAt,
	}
}

func (g *GormRound) Record() RoundRecord {
	return RoundRecord{
		RoomID:      g.RoomID,
		RoundNumber: g.RoundNumber,
		Players:     [2]string{g.PlayerA, g.PlayerB},
		Choices:     [2]rules.Choice{rules.Choice(g.ChoiceA), rules.Choice(g.ChoiceB)},
		Results:     [2]rules.Result{rules.Result(g.ResultA), rules.Result(g.ResultB)},
		ResolvedAt:  g.ResolvedAt,
	}
}
