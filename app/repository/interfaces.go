package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayLedger/app/models"
	"github.com/ManuelReschke/PayLedger/internal/pkg/billing"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User    UserRepository
	Billing billing.Repository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Billing: billing.NewRepository(db),
	}
}
