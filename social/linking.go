package social

import (
	"context"
	"fmt"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
)

// LinkingStrategy determines how federated profiles resolve to users.
type LinkingStrategy interface {
	ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error)
}

// LinkingContext provides context for user resolution.
type LinkingContext struct {
	Profile *Profile
	Users   identity.Users
}

// LinkingResult contains the resolved user and metadata.
type LinkingResult struct {
	User      *identity.User
	IsNewUser bool
	Linked    bool
}

// DefaultLinkingStrategy resolves a profile in three steps: an existing
// federated identity wins, then an email match links the provider to the
// local account, and finally a new verified account is provisioned.
type DefaultLinkingStrategy struct {
	AllowSignup          bool
	RequireEmailVerified bool

	OnUserCreated func(ctx context.Context, user *identity.User, profile *Profile) error
	OnUserLinked  func(ctx context.Context, user *identity.User, profile *Profile) error
}

// ResolveUser implements LinkingStrategy.
func (s *DefaultLinkingStrategy) ResolveUser(ctx context.Context, lc LinkingContext) (*LinkingResult, error) {
	if lc.Profile == nil || lc.Profile.FederatedID() == "" {
		return nil, ErrUserInfoFailed
	}
	if lc.Users == nil {
		return nil, ErrUserInfoFailed
	}

	profile := lc.Profile

	if s.RequireEmailVerified && !profile.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	user, err := lc.Users.GetByFederatedID(ctx, profile.FederatedID())
	if err == nil {
		return &LinkingResult{User: user, IsNewUser: false}, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, fmt.Errorf("failed to find federated user: %w", err)
	}

	if profile.Email != "" {
		user, err := lc.Users.GetByEmail(ctx, profile.Email)
		if err == nil {
			linked, err := lc.Users.LinkFederatedIdentity(ctx, user.ID, profile.FederatedID())
			if err != nil {
				return nil, fmt.Errorf("failed to link federated identity: %w", err)
			}

			if s.OnUserLinked != nil {
				if err := s.OnUserLinked(ctx, linked, profile); err != nil {
					return nil, err
				}
			}

			return &LinkingResult{User: linked, IsNewUser: false, Linked: true}, nil
		}
		if !repository.IsRecordNotFound(err) {
			return nil, fmt.Errorf("failed to find user by email: %w", err)
		}
	}

	if !s.AllowSignup {
		return nil, ErrSignupNotAllowed
	}

	created, err := lc.Users.Create(ctx, s.createUserFromProfile(profile))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.OnUserCreated != nil {
		if err := s.OnUserCreated(ctx, created, profile); err != nil {
			return nil, err
		}
	}

	return &LinkingResult{User: created, IsNewUser: true}, nil
}

func (s *DefaultLinkingStrategy) createUserFromProfile(profile *Profile) *identity.User {
	// the provider vouched for the address, no verification mail needed
	user := &identity.User{
		Name:        profile.Name,
		Email:       profile.Email,
		FederatedID: profile.FederatedID(),
		AvatarURL:   profile.AvatarURL,
		IsVerified:  true,
	}

	if user.Name == "" && profile.Email != "" {
		user.Name = profile.Email
	}

	if profile.Email != "" {
		if id, err := hashid.NewUUID(profile.Email); err == nil {
			user.ID = id
		}
	}

	return user
}
