package repository

import (
	"github.com/reshetovitsme/channel-guard/internal/modules/rules/domain"
)

// Repository defines the interface for rules document persistence
type Repository interface {
	Load() (*domain.Document, error)
	Save(doc *domain.Document) error
	Path() string
}
