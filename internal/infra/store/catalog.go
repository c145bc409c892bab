package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/musicbucket/internal/domain/catalog"
)

// FindArtist loads an artist with its genres.
func (s *Store) FindArtist(ctx context.Context, id string) (*catalog.Artist, error) {
	var artist catalog.Artist
	if err := s.take(ctx, &artist, "id = ?", id); err != nil {
		return nil, errors.Wrapf(err, "artist %s", id)
	}
	genres, err := s.artistGenres(ctx, id)
	if err != nil {
		return nil, err
	}
	artist.Genres = genres
	return &artist, nil
}

// FindAlbum loads an album with its credited artists in position order and its genres.
func (s *Store) FindAlbum(ctx context.Context, id string) (*catalog.Album, error) {
	var album catalog.Album
	if err := s.take(ctx, &album, "id = ?", id); err != nil {
		return nil, errors.Wrapf(err, "album %s", id)
	}

	var artists []catalog.Artist
	if err := s.db.WithContext(ctx).
		Joins("JOIN album_artists ON album_artists.artist_id = artists.id").
		Where("album_artists.album_id = ?", id).
		Order("album_artists.position").
		Find(&artists).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load artists of album %s", id)
	}
	album.Artists = artists

	var genres []string
	if err := s.db.WithContext(ctx).
		Model(&catalog.AlbumGenre{}).
		Where("album_id = ?", id).
		Order("genre_name").
		Pluck("genre_name", &genres).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load genres of album %s", id)
	}
	album.Genres = genres
	return &album, nil
}

// FindTrack loads a track with its album and credited artists.
func (s *Store) FindTrack(ctx context.Context, id string) (*catalog.Track, error) {
	var track catalog.Track
	if err := s.take(ctx, &track, "id = ?", id); err != nil {
		return nil, errors.Wrapf(err, "track %s", id)
	}

	album, err := s.FindAlbum(ctx, track.AlbumID)
	if err != nil {
		return nil, err
	}
	track.Album = album

	var artists []catalog.Artist
	if err := s.db.WithContext(ctx).
		Joins("JOIN track_artists ON track_artists.artist_id = artists.id").
		Where("track_artists.track_id = ?", id).
		Order("track_artists.position").
		Find(&artists).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load artists of track %s", id)
	}
	track.Artists = artists
	return &track, nil
}

func (s *Store) artistGenres(ctx context.Context, artistID string) ([]string, error) {
	var genres []string
	if err := s.db.WithContext(ctx).
		Model(&catalog.ArtistGenre{}).
		Where("artist_id = ?", artistID).
		Order("genre_name").
		Pluck("genre_name", &genres).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load genres of artist %s", artistID)
	}
	return genres, nil
}

// InsertArtist inserts the artist row and attaches its genres.
// It returns ErrDuplicateKey, and attaches nothing, when the artist already exists.
func (s *Store) InsertArtist(ctx context.Context, artist *catalog.Artist) error {
	if err := s.insert(ctx, artist); err != nil {
		return errors.Wrapf(err, "failed to insert artist %s", artist.ID)
	}
	if err := s.ensureGenres(ctx, artist.Genres); err != nil {
		return err
	}
	rows := make([]catalog.ArtistGenre, 0, len(artist.Genres))
	for _, g := range artist.Genres {
		rows = append(rows, catalog.ArtistGenre{ArtistID: artist.ID, GenreName: g})
	}
	return errors.Wrapf(insertIgnore(ctx, s.db, rows), "failed to attach genres to artist %s", artist.ID)
}

// InsertAlbum inserts the album row, its artist credits in order and its genres.
// The credited artists must already exist.
func (s *Store) InsertAlbum(ctx context.Context, album *catalog.Album) error {
	if err := s.insert(ctx, album); err != nil {
		return errors.Wrapf(err, "failed to insert album %s", album.ID)
	}

	credits := make([]catalog.AlbumArtist, 0, len(album.Artists))
	for i, a := range album.Artists {
		credits = append(credits, catalog.AlbumArtist{AlbumID: album.ID, ArtistID: a.ID, Position: i})
	}
	if err := insertIgnore(ctx, s.db, credits); err != nil {
		return errors.Wrapf(err, "failed to credit artists on album %s", album.ID)
	}

	if err := s.ensureGenres(ctx, album.Genres); err != nil {
		return err
	}
	genres := make([]catalog.AlbumGenre, 0, len(album.Genres))
	for _, g := range album.Genres {
		genres = append(genres, catalog.AlbumGenre{AlbumID: album.ID, GenreName: g})
	}
	return errors.Wrapf(insertIgnore(ctx, s.db, genres), "failed to attach genres to album %s", album.ID)
}

// InsertTrack inserts the track row and its artist credits in order.
// The album and credited artists must already exist.
func (s *Store) InsertTrack(ctx context.Context, track *catalog.Track) error {
	if err := s.insert(ctx, track); err != nil {
		return errors.Wrapf(err, "failed to insert track %s", track.ID)
	}

	credits := make([]catalog.TrackArtist, 0, len(track.Artists))
	for i, a := range track.Artists {
		credits = append(credits, catalog.TrackArtist{TrackID: track.ID, ArtistID: a.ID, Position: i})
	}
	return errors.Wrapf(insertIgnore(ctx, s.db, credits), "failed to credit artists on track %s", track.ID)
}

func (s *Store) ensureGenres(ctx context.Context, names []string) error {
	rows := make([]catalog.Genre, 0, len(names))
	for _, n := range names {
		rows = append(rows, catalog.Genre{Name: n})
	}
	return errors.Wrap(insertIgnore(ctx, s.db, rows), "failed to insert genres")
}

// FindLinkByURL loads a link by its canonical URL.
func (s *Store) FindLinkByURL(ctx context.Context, url string) (*catalog.Link, error) {
	var link catalog.Link
	if err := s.take(ctx, &link, "url = ?", url); err != nil {
		return nil, errors.Wrapf(err, "link %s", url)
	}
	return &link, nil
}

// FindLink loads a link by ID.
func (s *Store) FindLink(ctx context.Context, id uint) (*catalog.Link, error) {
	var link catalog.Link
	if err := s.take(ctx, &link, "id = ?", id); err != nil {
		return nil, errors.Wrapf(err, "link %d", id)
	}
	return &link, nil
}

// InsertLink inserts a link. It returns ErrDuplicateKey when the URL is already stored.
func (s *Store) InsertLink(ctx context.Context, link *catalog.Link) error {
	return errors.Wrapf(s.insert(ctx, link), "failed to insert link %s", link.URL)
}
