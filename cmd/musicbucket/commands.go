package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/osa030/musicbucket/internal/app/ingest"
	"github.com/osa030/musicbucket/internal/app/releases"
	domain "github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/infra/store"
)

func runIngest(ctx context.Context, svc *services, msg ingest.Message) error {
	res, err := svc.pipeline.Ingest(ctx, msg)
	if err != nil {
		return err
	}
	fmt.Printf("Recorded %s %s (link %d, send %s)\n", res.Link.LinkType, res.Link.URL, res.Link.ID, res.Sent.ID)
	return nil
}

func runSave(ctx context.Context, svc *services, user domain.User, url string) error {
	saved, err := svc.pipeline.SaveURL(ctx, user, url)
	if err != nil {
		return err
	}
	fmt.Printf("Saved link %d at %s\n", saved.LinkID, saved.SavedAt.Format(time.RFC3339))
	return nil
}

func runUnsave(ctx context.Context, svc *services, userID int64, linkID uint) error {
	if err := svc.activity.Unsave(ctx, userID, linkID); err != nil {
		return err
	}
	fmt.Printf("Link %d is not saved\n", linkID)
	return nil
}

func runSaved(ctx context.Context, svc *services, userID int64) error {
	views, err := svc.activity.SavedLinks(ctx, userID)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Println("No saved links")
		return nil
	}
	fmt.Println("\n=== SAVED LINKS ===")
	for _, v := range views {
		fmt.Printf("  [%d] %s %s (%s)\n       %s\n", v.LinkID, v.LinkType, v.Title, v.SavedAt.Format(time.DateOnly), v.URL)
	}
	fmt.Println()
	return nil
}

func runFollow(ctx context.Context, svc *services, user domain.User, url string) error {
	res, artist, err := svc.pipeline.FollowURL(ctx, user, url)
	if err != nil {
		return err
	}
	if !res.OK {
		fmt.Printf("Not followed: %s (%s)\n", artist.Name, res.Code)
		return nil
	}
	fmt.Printf("Following %s. New releases will be reported.\n", artist.Name)
	return nil
}

func runUnfollow(ctx context.Context, svc *services, userID int64, artistID string) error {
	res, err := svc.activity.Unfollow(ctx, userID, artistID)
	if err != nil {
		return err
	}
	if !res.OK {
		fmt.Printf("Not unfollowed: %s (%s)\n", artistID, res.Code)
		return nil
	}
	fmt.Printf("Unfollowed %s\n", artistID)
	return nil
}

func runFollowed(ctx context.Context, svc *services, userID int64) error {
	views, err := svc.activity.FollowedArtists(ctx, userID)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Println("No followed artists")
		return nil
	}
	fmt.Println("\n=== FOLLOWED ARTISTS ===")
	for _, v := range views {
		lookup := "never"
		if v.LastLookup != nil {
			lookup = v.LastLookup.Format(time.RFC3339)
		}
		fmt.Printf("  %-30s %s (since %s, last checked %s)\n", v.ArtistName, v.ArtistID, v.FollowedAt.Format(time.DateOnly), lookup)
	}
	fmt.Println()
	return nil
}

func runCheckReleases(ctx context.Context, svc *services, userID int64) error {
	if userID != 0 {
		report, err := svc.sweeper.CheckUser(ctx, userID)
		if err != nil {
			return err
		}
		printReport(userID, report)
		return nil
	}

	reports, err := svc.sweeper.SweepAll(ctx)
	for id, report := range reports {
		printReport(id, report)
	}
	return err
}

func printReport(userID int64, r *releases.Report) {
	fmt.Printf("\n=== NEW RELEASES FOR USER %d ===\n", userID)
	if r.Count() == 0 {
		fmt.Println("  Nothing new")
	}
	for _, artistID := range sortedKeys(r.NewReleases) {
		for _, a := range r.NewReleases[artistID] {
			artist := artistID
			if p := a.PrimaryArtist(); p != nil {
				artist = p.Name
			}
			fmt.Printf("  %s - %s (%s, %s)\n", artist, a.Name, a.AlbumType, a.Released().Format(time.DateOnly))
		}
	}
	for _, artistID := range sortedKeys(r.Failed) {
		fmt.Printf("  ! %s: %v\n", artistID, r.Failed[artistID])
	}
}

func runMusic(ctx context.Context, svc *services, chatID int64, username string) error {
	if username != "" {
		views, err := svc.queries.UserLinks(ctx, chatID, username)
		if err != nil {
			return err
		}
		printLinks(strings.TrimPrefix(username, "@"), views)
		return nil
	}

	groups, err := svc.queries.RecentLinks(ctx, chatID)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Println("No links sent recently")
		return nil
	}
	for _, g := range groups {
		printLinks(g.Sender, g.Links)
	}
	return nil
}

func runHistory(ctx context.Context, svc *services, userID int64) error {
	views, err := svc.queries.History(ctx, userID)
	if err != nil {
		return err
	}
	printLinks(fmt.Sprintf("user %d", userID), views)
	return nil
}

func printLinks(title string, views []store.SentLinkView) {
	fmt.Printf("\n=== %s ===\n", title)
	if len(views) == 0 {
		fmt.Println("  No links")
	}
	for _, v := range views {
		name := v.Title
		if v.ArtistName != "" && v.ArtistName != v.Title {
			name = v.ArtistName + " - " + v.Title
		}
		fmt.Printf("  %s %-6s %s\n       %s\n", v.SentAt.Format(time.DateTime), v.LinkType, name, v.URL)
	}
}

func runStats(ctx context.Context, svc *services, chatID int64) error {
	stats, err := svc.queries.Stats(ctx, chatID)
	if err != nil {
		return err
	}
	fmt.Println("\n=== SENDERS ===")
	for _, u := range stats.Users {
		name := u.Username
		if name == "" {
			name = u.FirstName
		}
		fmt.Printf("  %-20s %d\n", name, u.Sends)
	}
	fmt.Println("\n=== GENRES ===")
	for _, g := range stats.Genres {
		fmt.Printf("  %-20s %d\n", g.Genre, g.Sends)
	}
	fmt.Println()
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
