package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"space-auth/internal/model"
)

const (
	minPasswordLength     = 6
	maxDisplayNameLength  = 100
	AdminRole             = "Admin"
	timingEqualizerSecret = "timing-equalizer"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.User) error
	SetRoles(ctx context.Context, id string, roles []string) error
}

// AccountService owns user records and password credentials. The session
// layer only sees it through the Accounts interface.
type AccountService struct {
	users      UserRepository
	bcryptCost int
	dummyHash  []byte
	now        func() time.Time
}

func NewAccountService(users UserRepository, bcryptCost int) (*AccountService, error) {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(timingEqualizerSecret), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare password hasher: %w", err)
	}

	return &AccountService{
		users:      users,
		bcryptCost: bcryptCost,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// FindUserByEmail returns model.ErrUserNotFound when no account matches,
// ignoring case.
func (s *AccountService) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.users.FindByEmail(ctx, email)
}

func (s *AccountService) FindUserByID(ctx context.Context, id string) (model.User, error) {
	return s.users.FindByID(ctx, id)
}

// CreateUser validates the input, hashes the password and stores the user.
// It returns model.ValidationErrors for bad input and model.ErrEmailTaken on
// a duplicate email.
func (s *AccountService) CreateUser(ctx context.Context, email string, password string, displayName *string) (model.User, error) {
	email = strings.TrimSpace(email)
	name := defaultDisplayName(email, displayName)

	if err := validateRegistration(email, password, name); err != nil {
		return model.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  name,
		Roles:        []string{},
		CreatedAt:    s.now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}

	return user, nil
}

func (s *AccountService) VerifyPassword(user model.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// EqualizeTiming burns one bcrypt comparison so that a login for an unknown
// email costs about as much as one with a wrong password.
func (s *AccountService) EqualizeTiming(password string) {
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

func (s *AccountService) RolesOf(user model.User) []string {
	roles := slices.Clone(user.Roles)
	if roles == nil {
		roles = []string{}
	}
	return roles
}

// SeedAdmin makes sure an account with the admin role exists for email.
func (s *AccountService) SeedAdmin(ctx context.Context, email string, password string) (model.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, model.ErrUserNotFound):
		user, err = s.CreateUser(ctx, email, password, nil)
		if err != nil {
			return model.User{}, fmt.Errorf("create admin: %w", err)
		}
	case err != nil:
		return model.User{}, err
	}

	if slices.Contains(user.Roles, AdminRole) {
		return user, nil
	}

	roles := append(slices.Clone(user.Roles), AdminRole)
	if err := s.users.SetRoles(ctx, user.ID, roles); err != nil {
		return model.User{}, fmt.Errorf("grant admin role: %w", err)
	}
	user.Roles = roles
	return user, nil
}

// defaultDisplayName falls back to the email's local part only when no name
// was sent. A name that is sent but blank stays blank.
func defaultDisplayName(email string, displayName *string) string {
	if displayName != nil {
		return strings.TrimSpace(*displayName)
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

func validateRegistration(email string, password string, displayName string) error {
	var errs model.ValidationErrors

	if email == "" {
		errs.Add("email", "Email is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs.Add("email", "Email is not a valid address")
	}

	if len(password) < minPasswordLength {
		errs.Add("password", fmt.Sprintf("Passwords must be at least %d characters", minPasswordLength))
	}
	if !strings.ContainsFunc(password, unicode.IsDigit) {
		errs.Add("password", "Passwords must have at least one digit ('0'-'9')")
	}
	if !strings.ContainsFunc(password, unicode.IsLower) {
		errs.Add("password", "Passwords must have at least one lowercase ('a'-'z')")
	}

	if len([]rune(displayName)) > maxDisplayNameLength {
		errs.Add("displayName", fmt.Sprintf("Display name must be at most %d characters", maxDisplayNameLength))
	}

	return errs.Err()
}
