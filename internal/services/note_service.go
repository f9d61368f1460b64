package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/notewell/notewell/internal/auth"
	"github.com/notewell/notewell/internal/dto"
	"github.com/notewell/notewell/internal/models"
	"gorm.io/gorm"
)

var (
	ErrNoteNotFound  = errors.New("note not found")
	ErrTitleRequired = errors.New("title is required")
)

type NoteService struct {
	db *gorm.DB
}

func NewNoteService(db *gorm.DB) *NoteService {
	return &NoteService{db: db}
}

func (s *NoteService) Create(userID uuid.UUID, req dto.CreateNoteRequest) (*models.Note, error) {
	if req.Title == "" {
		return nil, ErrTitleRequired
	}

	note := models.Note{
		ID:      uuid.New(),
		Title:   req.Title,
		Content: req.Content,
		UserID:  userID,
	}
	if err := s.db.Create(&note).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

// List returns the owner's notes, newest first.
func (s *NoteService) List(userID uuid.UUID) ([]models.Note, error) {
	var notes []models.Note
	err := s.db.Scopes(auth.ForUser(userID)).
		Order("created_at DESC").
		Find(&notes).Error
	return notes, err
}

func (s *NoteService) Get(userID, noteID uuid.UUID) (*models.Note, error) {
	var note models.Note
	err := s.db.Scopes(auth.ForUser(userID)).First(&note, "id = ?", noteID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoteNotFound
		}
		return nil, err
	}
	return &note, nil
}

// Update writes the autosave snapshot. A blank title becomes the default
// placeholder and omitted content becomes the empty string; neither is an
// error. Last writer wins: concurrent saves from two tabs race and the later
// one silently overwrites the other.
func (s *NoteService) Update(userID, noteID uuid.UUID, req dto.UpdateNoteRequest) (*models.Note, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = models.DefaultNoteTitle
	}

	result := s.db.Model(&models.Note{}).
		Scopes(auth.ForUser(userID)).
		Where("id = ?", noteID).
		Updates(map[string]interface{}{
			"title":   title,
			"content": req.Content,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNoteNotFound
	}

	return s.Get(userID, noteID)
}

// Delete removes the note outright. There is no soft-delete or tombstone.
func (s *NoteService) Delete(userID, noteID uuid.UUID) error {
	result := s.db.Scopes(auth.ForUser(userID)).
		Where("id = ?", noteID).
		Delete(&models.Note{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// Share mints a fresh capability token and flips the note public.
//
// The lookup checks only that the note exists, not who owns it, mirroring the
// behavior this endpoint has always had. TODO: require ownership before
// minting a share token.
func (s *NoteService) Share(noteID uuid.UUID) (string, error) {
	var note models.Note
	if err := s.db.First(&note, "id = ?", noteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoteNotFound
		}
		return "", err
	}

	shareID := uuid.New().String()
	err := s.db.Model(&note).Updates(map[string]interface{}{
		"share_id":  shareID,
		"is_public": true,
	}).Error
	if err != nil {
		return "", err
	}
	return shareID, nil
}

// Unshare clears the token and disables public access. A previously issued
// token stops resolving even though clients may still hold the string.
func (s *NoteService) Unshare(noteID uuid.UUID) error {
	return s.db.Model(&models.Note{}).
		Where("id = ?", noteID).
		Updates(map[string]interface{}{
			"share_id":  nil,
			"is_public": false,
		}).Error
}

// GetShared resolves a note by capability token for unauthenticated readers.
// The token alone grants access, but a disabled share must 404 even when the
// token value is known, so is_public is checked as well.
func (s *NoteService) GetShared(shareID string) (*models.Note, error) {
	var note models.Note
	err := s.db.Where("share_id = ? AND is_public = ?", shareID, true).First(&note).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoteNotFound
		}
		return nil, err
	}
	return &note, nil
}
