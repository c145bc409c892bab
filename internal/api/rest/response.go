package rest

import (
	"time"

	"github.com/osa030/musicbucket/internal/app/queries"
	"github.com/osa030/musicbucket/internal/app/releases"
	"github.com/osa030/musicbucket/internal/domain/catalog"
	"github.com/osa030/musicbucket/internal/infra/store"
)

// LinkResponse represents a link in API responses.
type LinkResponse struct {
	ID       uint   `json:"id"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	Service  string `json:"service"`
	EntityID string `json:"entity_id"`
}

// SentResponse represents a recorded send.
type SentResponse struct {
	ID     string       `json:"id"`
	SentAt time.Time    `json:"sent_at"`
	Link   LinkResponse `json:"link"`
}

// SentLinkResponse represents a send in listings.
type SentLinkResponse struct {
	ID       string    `json:"id"`
	SentAt   time.Time `json:"sent_at"`
	ChatID   int64     `json:"chat_id"`
	ChatName string    `json:"chat_name"`
	UserID   int64     `json:"user_id"`
	Sender   string    `json:"sender"`
	LinkID   uint      `json:"link_id"`
	URL      string    `json:"url"`
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Artist   string    `json:"artist,omitempty"`
}

// SenderResponse groups the sends of one sender.
type SenderResponse struct {
	Sender string             `json:"sender"`
	Links  []SentLinkResponse `json:"links"`
}

// SavedResponse represents a saved link.
type SavedResponse struct {
	ID      uint      `json:"id"`
	SavedAt time.Time `json:"saved_at"`
	LinkID  uint      `json:"link_id"`
	URL     string    `json:"url"`
	Type    string    `json:"type"`
	Title   string    `json:"title"`
}

// FollowResponse represents a followed artist.
type FollowResponse struct {
	ArtistID   string     `json:"artist_id"`
	ArtistName string     `json:"artist_name"`
	FollowedAt time.Time  `json:"followed_at"`
	LastLookup *time.Time `json:"last_lookup"`
}

// ResultResponse represents the outcome of a follow operation.
type ResultResponse struct {
	OK         bool   `json:"ok"`
	Code       string `json:"code,omitempty"`
	ArtistID   string `json:"artist_id"`
	ArtistName string `json:"artist_name,omitempty"`
}

// AlbumResponse represents a released album.
type AlbumResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AlbumType   string   `json:"album_type"`
	ReleaseDate string   `json:"release_date"`
	URL         string   `json:"url"`
	Artists     []string `json:"artists"`
}

// ReportResponse represents a release check.
type ReportResponse struct {
	NewReleases map[string][]AlbumResponse `json:"new_releases"`
	Failed      map[string]string          `json:"failed"`
}

// StatsResponse represents chat statistics.
type StatsResponse struct {
	Users  []UserSendsResponse  `json:"users"`
	Genres []GenreSendsResponse `json:"genres"`
}

// UserSendsResponse is the send count of one user.
type UserSendsResponse struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Sends  int64  `json:"sends"`
}

// GenreSendsResponse is the send count of one genre.
type GenreSendsResponse struct {
	Genre string `json:"genre"`
	Sends int64  `json:"sends"`
}

func linkToResponse(l *catalog.Link) LinkResponse {
	return LinkResponse{
		ID:       l.ID,
		URL:      l.URL,
		Type:     string(l.LinkType),
		Service:  string(l.StreamingService),
		EntityID: l.EntityID(),
	}
}

func sentViewsToResponse(views []store.SentLinkView) []SentLinkResponse {
	out := make([]SentLinkResponse, 0, len(views))
	for _, v := range views {
		out = append(out, SentLinkResponse{
			ID:       v.ID,
			SentAt:   v.SentAt,
			ChatID:   v.ChatID,
			ChatName: v.ChatName,
			UserID:   v.UserID,
			Sender:   v.Sender(),
			LinkID:   v.LinkID,
			URL:      v.URL,
			Type:     string(v.LinkType),
			Title:    v.Title,
			Artist:   v.ArtistName,
		})
	}
	return out
}

func savedToResponse(v store.SavedLinkView) SavedResponse {
	return SavedResponse{
		ID:      v.ID,
		SavedAt: v.SavedAt,
		LinkID:  v.LinkID,
		URL:     v.URL,
		Type:    string(v.LinkType),
		Title:   v.Title,
	}
}

func albumToResponse(a catalog.Album) AlbumResponse {
	artists := make([]string, 0, len(a.Artists))
	for _, ar := range a.Artists {
		artists = append(artists, ar.Name)
	}
	return AlbumResponse{
		ID:          a.ID,
		Name:        a.Name,
		AlbumType:   a.AlbumType,
		ReleaseDate: a.Released().Format(time.DateOnly),
		URL:         a.URL,
		Artists:     artists,
	}
}

func reportToResponse(r *releases.Report) ReportResponse {
	out := ReportResponse{
		NewReleases: make(map[string][]AlbumResponse, len(r.NewReleases)),
		Failed:      make(map[string]string, len(r.Failed)),
	}
	for artistID, albums := range r.NewReleases {
		list := make([]AlbumResponse, 0, len(albums))
		for _, a := range albums {
			list = append(list, albumToResponse(a))
		}
		out.NewReleases[artistID] = list
	}
	for artistID, err := range r.Failed {
		out.Failed[artistID] = err.Error()
	}
	return out
}

func statsToResponse(s *queries.Stats) StatsResponse {
	out := StatsResponse{
		Users:  make([]UserSendsResponse, 0, len(s.Users)),
		Genres: make([]GenreSendsResponse, 0, len(s.Genres)),
	}
	for _, u := range s.Users {
		name := u.Username
		if name == "" {
			name = u.FirstName
		}
		out.Users = append(out.Users, UserSendsResponse{UserID: u.UserID, Name: name, Sends: u.Sends})
	}
	for _, g := range s.Genres {
		out.Genres = append(out.Genres, GenreSendsResponse{Genre: g.Genre, Sends: g.Sends})
	}
	return out
}
