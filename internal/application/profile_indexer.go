package application

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/biolink/internal/domain/entity"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/repository"
	"github.com/oksasatya/biolink/internal/domain/schema"
	"github.com/oksasatya/biolink/internal/infrastructure/events"
	"github.com/oksasatya/biolink/internal/infrastructure/search"
)

// ProfileIndex is the search backend of the indexer.
type ProfileIndex interface {
	Index(ctx context.Context, doc search.ProfileDoc) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q string, size int) ([]search.ProfileDoc, error)
}

// ProfileIndexer keeps the search index in step with profile writes.
type ProfileIndexer struct {
	Users  repository.UserDelegate
	Index  ProfileIndex
	Logger *logrus.Logger
}

func NewProfileIndexer(users repository.UserDelegate, index ProfileIndex, logger *logrus.Logger) *ProfileIndexer {
	return &ProfileIndexer{Users: users, Index: index, Logger: logger}
}

var profileInclude = query.Include{
	"links":            {OrderBy: []query.OrderBy{{Field: "createdAt"}}},
	"labels":           nil,
	"socialIcons":      nil,
	"cosmetic":         nil,
	"statusbar":        nil,
	"backgroundColors": nil,
	"neonColors":       nil,
}

// HandleEvent reindexes every user touched by ev. Deleted users, and users
// that no longer exist, are removed from the index.
func (s *ProfileIndexer) HandleEvent(ctx context.Context, ev events.MutationEvent) error {
	if ev.Model == schema.User.Name && ev.Action == events.ActionDelete {
		var errs []error
		for _, id := range ev.IDs {
			errs = append(errs, s.Index.Delete(ctx, id))
		}
		return errors.Join(errs...)
	}
	var errs []error
	for _, id := range ev.UserIDs {
		errs = append(errs, s.Reindex(ctx, id))
	}
	return errors.Join(errs...)
}

// Reindex loads one profile with its relations and writes it to the index.
func (s *ProfileIndexer) Reindex(ctx context.Context, userID string) error {
	u, err := s.Users.FindUnique(ctx, query.FindUniqueArgs{
		Where:   query.ByID(userID),
		Include: profileInclude,
		Omit:    []string{"password"},
	})
	if err != nil {
		return err
	}
	if u == nil {
		return s.Index.Delete(ctx, userID)
	}
	if err := s.Index.Index(ctx, ProfileDocument(u)); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.WithField("user_id", userID).Debug("profile indexed")
	}
	return nil
}

// SearchProfiles performs a full-text search over indexed profiles.
func (s *ProfileIndexer) SearchProfiles(ctx context.Context, q string, size int) ([]search.ProfileDoc, error) {
	if q == "" {
		return []search.ProfileDoc{}, nil
	}
	return s.Index.Search(ctx, q, size)
}

// ProfileDocument flattens a user and its loaded relations into a search document.
func ProfileDocument(u *entity.User) search.ProfileDoc {
	doc := search.ProfileDoc{
		ID:               u.ID,
		UserName:         u.UserName,
		Name:             str(u.Name),
		Bio:              str(u.Bio),
		Location:         str(u.Location),
		Image:            str(u.Image),
		Role:             string(u.Role),
		Views:            u.Views,
		Links:            make([]search.ProfileLink, 0, len(u.Links)),
		Labels:           make([]string, 0, len(u.Labels)),
		SocialIcons:      make([]string, 0, len(u.SocialIcons)),
		BackgroundColors: make([]string, 0, len(u.BackgroundColors)),
		NeonColors:       make([]string, 0, len(u.NeonColors)),
		UpdatedAt:        u.UpdatedAt,
	}
	if c := u.Cosmetic; c != nil {
		doc.Cosmetic = &search.ProfileCosmetic{Flair: str(c.Flair), Frame: str(c.Frame), Theme: str(c.Theme)}
	}
	if sb := u.Statusbar; sb != nil {
		doc.Statusbar = &search.ProfileStatus{Text: str(sb.Text), StatusText: str(sb.StatusText)}
	}
	for _, l := range u.Links {
		doc.Links = append(doc.Links, search.ProfileLink{URL: l.URL, Text: str(l.Text), Name: str(l.Name)})
	}
	for _, l := range u.Labels {
		doc.Labels = append(doc.Labels, l.Data)
	}
	for _, si := range u.SocialIcons {
		doc.SocialIcons = append(doc.SocialIcons, si.Icon)
	}
	for _, c := range u.BackgroundColors {
		doc.BackgroundColors = append(doc.BackgroundColors, c.Color)
	}
	for _, c := range u.NeonColors {
		doc.NeonColors = append(doc.NeonColors, c.Color)
	}
	return doc
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
