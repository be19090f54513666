package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mhodzic/parley/internal/domain"
	"github.com/mhodzic/parley/internal/repository"
)

var (
	ErrSelfContact     = errors.New("cannot add yourself as a contact")
	ErrContactNotFound = errors.New("contact not found")
)

type ContactService struct {
	contactRepo repository.ContactRepository
	userRepo    repository.UserRepository
}

func NewContactService(contactRepo repository.ContactRepository, userRepo repository.UserRepository) *ContactService {
	return &ContactService{
		contactRepo: contactRepo,
		userRepo:    userRepo,
	}
}

// Add looks up a user by phone number and stores a denormalized copy of their
// profile in the owner's contact book. Adding the same user twice refreshes
// the copy.
func (s *ContactService) Add(ctx context.Context, ownerID, phone string) (*domain.Contact, error) {
	user, err := s.userRepo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.ID == ownerID {
		return nil, ErrSelfContact
	}

	contact := &domain.Contact{
		OwnerID:   ownerID,
		UserID:    user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.Phone,
		Email:     user.Email,
		PhotoURL:  user.PhotoURL,
		CreatedAt: time.Now(),
	}
	if err := s.contactRepo.Upsert(ctx, contact); err != nil {
		return nil, fmt.Errorf("saving contact: %w", err)
	}
	return contact, nil
}

// List returns the owner's contacts, optionally filtered by a name search.
func (s *ContactService) List(ctx context.Context, ownerID, search string) ([]domain.Contact, error) {
	contacts, err := s.contactRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}

	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		if contacts == nil {
			contacts = []domain.Contact{}
		}
		return contacts, nil
	}

	filtered := make([]domain.Contact, 0, len(contacts))
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.FirstName), search) ||
			strings.Contains(strings.ToLower(c.LastName), search) {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// Rename overwrites the owner's chosen name for a contact. The name lives in
// the owner's book only; the contact's own profile is untouched, and a later
// re-add by phone refreshes the entry back from the profile.
func (s *ContactService) Rename(ctx context.Context, ownerID, userID, firstName, lastName string) (*domain.Contact, error) {
	contact, err := s.contactRepo.Get(ctx, ownerID, userID)
	if err != nil {
		return nil, fmt.Errorf("reading contact: %w", err)
	}
	if contact == nil {
		return nil, ErrContactNotFound
	}

	contact.FirstName = strings.TrimSpace(firstName)
	contact.LastName = strings.TrimSpace(lastName)
	if err := s.contactRepo.Upsert(ctx, contact); err != nil {
		return nil, fmt.Errorf("saving contact: %w", err)
	}
	return contact, nil
}

func (s *ContactService) Remove(ctx context.Context, ownerID, userID string) error {
	return s.contactRepo.Delete(ctx, ownerID, userID)
}
