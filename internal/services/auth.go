package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/novylist/backend/internal/config"
	"github.com/novylist/backend/internal/models"
	"github.com/novylist/backend/internal/utils"
	"github.com/novylist/backend/pkg/logger"
)

// AuthService handles account registration and login. It exists to hand the
// governance layer a (userID, tier) pair via JWT claims; richer auth flows
// live elsewhere.
type AuthService struct {
	db  *gorm.DB
	jwt *config.JWTConfig
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{db: db, jwt: jwtCfg}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a new account on the free tier.
func (s *AuthService) Register(req *RegisterRequest) (*models.User, error) {
	var count int64
	s.db.Model(&models.User{}).
		Where("username = ? OR email = ?", req.Username, req.Email).
		Count(&count)
	if count > 0 {
		return nil, errors.New("username or email already taken")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:         req.Username,
		Email:            req.Email,
		Password:         hash,
		Role:             "user",
		SubscriptionTier: config.TierFree,
		IsActive:         true,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and returns a signed token carrying the
// subscription tier.
func (s *AuthService) Login(req *LoginRequest) (*LoginResponse, error) {
	var user models.User
	if err := s.db.Where("username = ? AND is_active = ?", req.Username, true).First(&user).Error; err != nil {
		return nil, errors.New("invalid username or password")
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		return nil, errors.New("invalid username or password")
	}

	now := time.Now()
	user.LastLogin = &now
	s.db.Model(&user).Update("last_login", now)

	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, user.SubscriptionTier, s.jwt.ExpireHour)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{Token: token, User: &user}, nil
}

// GetUserByID loads a user by primary key.
func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateTier changes a user's subscription tier. Admin operation; the new
// tier takes effect for governance on the user's next token refresh.
func (s *AuthService) UpdateTier(userID uint, tier string) (*models.User, error) {
	switch tier {
	case config.TierFree, config.TierStandard, config.TierPremium:
	default:
		return nil, errors.New("unknown subscription tier: " + tier)
	}

	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&user).Update("subscription_tier", tier).Error; err != nil {
		return nil, err
	}
	user.SubscriptionTier = tier
	return &user, nil
}

// CreateAdminIfNotExists seeds the default admin account on first boot.
func (s *AuthService) CreateAdminIfNotExists() error {
	var count int64
	s.db.Model(&models.User{}).Where("role = ?", "admin").Count(&count)
	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := &models.User{
		Username:         "admin",
		Email:            "admin@novylist.local",
		Password:         hash,
		Role:             "admin",
		SubscriptionTier: config.TierPremium,
		IsActive:         true,
	}
	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	logger.Warnf("[Auth] default admin created (username: admin), change the password immediately")
	return nil
}
