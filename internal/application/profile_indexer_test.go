package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/biolink/internal/domain/entity"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/repository"
	"github.com/oksasatya/biolink/internal/infrastructure/events"
	"github.com/oksasatya/biolink/internal/infrastructure/search"
)

// users serves FindUnique from a map; other delegate methods are unused.
type users struct {
	repository.UserDelegate
	rows map[string]*entity.User
	args []query.FindUniqueArgs
	err  error
}

func (u *users) FindUnique(_ context.Context, args query.FindUniqueArgs) (*entity.User, error) {
	u.args = append(u.args, args)
	if u.err != nil {
		return nil, u.err
	}
	id, _ := args.Where["id"].(string)
	return u.rows[id], nil
}

type index struct {
	docs    map[string]search.ProfileDoc
	deleted []string
	failOn  string
}

func (i *index) Index(_ context.Context, doc search.ProfileDoc) error {
	if doc.ID == i.failOn {
		return errors.New("index unavailable")
	}
	if i.docs == nil {
		i.docs = map[string]search.ProfileDoc{}
	}
	i.docs[doc.ID] = doc
	return nil
}

func (i *index) Delete(_ context.Context, id string) error {
	i.deleted = append(i.deleted, id)
	return nil
}

func (i *index) Search(_ context.Context, q string, _ int) ([]search.ProfileDoc, error) {
	return []search.ProfileDoc{{UserName: q}}, nil
}

func strp(s string) *string { return &s }

func TestProfileDocument(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := ProfileDocument(&entity.User{
		ID:        "u1",
		UserName:  "ana",
		Bio:       strp("hello"),
		Role:      entity.RoleAdmin,
		Views:     9,
		UpdatedAt: at,
		Links:     []entity.Link{{URL: "https://a.example", Text: strp("site")}},
		Labels:    []entity.Label{{Data: "artist"}},
		SocialIcons: []entity.SocialIcon{
			{Icon: "github"},
			{Icon: "x"},
		},
		Cosmetic:         &entity.Cosmetic{Flair: strp("star"), Theme: strp("dark")},
		Statusbar:        &entity.Statusbar{Text: strp("on tour"), ColorBg: strp("#000")},
		BackgroundColors: []entity.BackgroundColor{{Color: "#111"}, {Color: "#222"}},
		NeonColors:       []entity.NeonColor{{Color: "#0ff"}},
	})
	assert.Equal(t, search.ProfileDoc{
		ID:               "u1",
		UserName:         "ana",
		Bio:              "hello",
		Role:             "ADMIN",
		Views:            9,
		Links:            []search.ProfileLink{{URL: "https://a.example", Text: "site"}},
		Labels:           []string{"artist"},
		SocialIcons:      []string{"github", "x"},
		Cosmetic:         &search.ProfileCosmetic{Flair: "star", Theme: "dark"},
		Statusbar:        &search.ProfileStatus{Text: "on tour"},
		BackgroundColors: []string{"#111", "#222"},
		NeonColors:       []string{"#0ff"},
		UpdatedAt:        at,
	}, doc)

	empty := ProfileDocument(&entity.User{ID: "u2"})
	assert.NotNil(t, empty.Links)
	assert.Empty(t, empty.Links)
	assert.NotNil(t, empty.NeonColors)
	assert.Nil(t, empty.Cosmetic)
	assert.Nil(t, empty.Statusbar)
}

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("reindexes owners", func(t *testing.T) {
		u := &users{rows: map[string]*entity.User{"u1": {ID: "u1", UserName: "ana"}}}
		idx := &index{}
		s := NewProfileIndexer(u, idx, nil)

		err := s.HandleEvent(ctx, events.MutationEvent{Model: "Link", Action: events.ActionCreate, IDs: []string{"l1"}, UserIDs: []string{"u1"}})
		require.NoError(t, err)
		assert.Equal(t, "ana", idx.docs["u1"].UserName)

		require.Len(t, u.args, 1)
		assert.Equal(t, []string{"password"}, u.args[0].Omit)
		for _, rel := range []string{"links", "labels", "socialIcons", "cosmetic", "statusbar", "backgroundColors", "neonColors"} {
			assert.Contains(t, u.args[0].Include, rel)
		}
	})

	t.Run("user delete removes documents", func(t *testing.T) {
		u := &users{}
		idx := &index{}
		s := NewProfileIndexer(u, idx, nil)
		err := s.HandleEvent(ctx, events.MutationEvent{Model: "User", Action: events.ActionDelete, IDs: []string{"u1", "u2"}, UserIDs: []string{"u1", "u2"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2"}, idx.deleted)
		assert.Empty(t, u.args)
	})

	t.Run("vanished user is removed", func(t *testing.T) {
		idx := &index{}
		s := NewProfileIndexer(&users{rows: map[string]*entity.User{}}, idx, nil)
		require.NoError(t, s.HandleEvent(ctx, events.MutationEvent{Model: "Label", Action: events.ActionUpdate, UserIDs: []string{"u9"}}))
		assert.Equal(t, []string{"u9"}, idx.deleted)
	})

	t.Run("errors are joined", func(t *testing.T) {
		u := &users{rows: map[string]*entity.User{"u1": {ID: "u1"}, "u2": {ID: "u2"}}}
		idx := &index{failOn: "u1"}
		s := NewProfileIndexer(u, idx, nil)
		err := s.HandleEvent(ctx, events.MutationEvent{Model: "Link", Action: events.ActionDelete, UserIDs: []string{"u1", "u2"}})
		assert.ErrorContains(t, err, "index unavailable")
		assert.Contains(t, idx.docs, "u2")
	})

	t.Run("load failure", func(t *testing.T) {
		s := NewProfileIndexer(&users{err: errors.New("db down")}, &index{}, nil)
		assert.EqualError(t, s.Reindex(ctx, "u1"), "db down")
	})
}

func TestSearchProfiles(t *testing.T) {
	s := NewProfileIndexer(&users{}, &index{}, nil)
	docs, err := s.SearchProfiles(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = s.SearchProfiles(context.Background(), "ana", 10)
	require.NoError(t, err)
	assert.Equal(t, "ana", docs[0].UserName)
}
