package database

import (
	"github.com/robalyx/warden/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	guildConfig *models.GuildConfigModel
	member      *models.MemberModel
	strike      *models.StrikeModel
	modAction   *models.ModActionModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		guildConfig: models.NewGuildConfig(db, logger),
		member:      models.NewMember(db, logger),
		strike:      models.NewStrike(db, logger),
		modAction:   models.NewModAction(db, logger),
	}
}

// GuildConfig returns the guild config model repository.
func (r *Repository) GuildConfig() *models.GuildConfigModel {
	return r.guildConfig
}

// Member returns the member model repository.
func (r *Repository) Member() *models.MemberModel {
	return r.member
}

// Strike returns the strike model repository.
func (r *Repository) Strike() *models.StrikeModel {
	return r.strike
}

// ModAction returns the mod action model repository.
func (r *Repository) ModAction() *models.ModActionModel {
	return r.modAction
}
