// Package main provides the musicbucket entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/osa030/musicbucket/internal/api/rest"
	"github.com/osa030/musicbucket/internal/app/activity"
	"github.com/osa030/musicbucket/internal/app/classifier"
	"github.com/osa030/musicbucket/internal/app/ingest"
	"github.com/osa030/musicbucket/internal/app/queries"
	"github.com/osa030/musicbucket/internal/app/reconcile"
	"github.com/osa030/musicbucket/internal/app/releases"
	domain "github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/infra/config"
	"github.com/osa030/musicbucket/internal/infra/database"
	"github.com/osa030/musicbucket/internal/infra/logger"
	"github.com/osa030/musicbucket/internal/infra/spotify"
	"github.com/osa030/musicbucket/internal/infra/store"
)

var (
	app        = kingpin.New("musicbucket", "musicbucket link ingestion and catalog engine")
	configPath = app.Flag("config", "Path to config file").Default("config/musicbucket.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	serveCmd = app.Command("serve", "Start the API server (default)").Default()

	migrateCmd = app.Command("migrate", "Create or update the database schema and exit")

	ingestCmd       = app.Command("ingest", "Ingest a chat message")
	ingestUserID    = ingestCmd.Flag("user-id", "Sender user ID").Required().Int64()
	ingestUsername  = ingestCmd.Flag("username", "Sender username").String()
	ingestFirstName = ingestCmd.Flag("first-name", "Sender first name").String()
	ingestChatID    = ingestCmd.Flag("chat-id", "Chat ID").Required().Int64()
	ingestChatName  = ingestCmd.Flag("chat-name", "Chat name").String()
	ingestText      = ingestCmd.Arg("text", "Message text").Required().String()

	saveCmd    = app.Command("save", "Save a link for a user")
	saveUserID = saveCmd.Arg("user-id", "User ID").Required().Int64()
	saveURL    = saveCmd.Arg("url", "Link URL").Required().String()
	saveName   = saveCmd.Flag("username", "Username, stored when the user is new").String()

	unsaveCmd    = app.Command("unsave", "Remove a saved link")
	unsaveUserID = unsaveCmd.Arg("user-id", "User ID").Required().Int64()
	unsaveLinkID = unsaveCmd.Arg("link-id", "Link ID").Required().Uint()

	savedCmd    = app.Command("saved", "List the saved links of a user")
	savedUserID = savedCmd.Arg("user-id", "User ID").Required().Int64()

	followCmd    = app.Command("follow", "Follow an artist")
	followUserID = followCmd.Arg("user-id", "User ID").Required().Int64()
	followURL    = followCmd.Arg("url", "Artist URL").Required().String()
	followName   = followCmd.Flag("username", "Username, stored when the user is new").String()

	unfollowCmd      = app.Command("unfollow", "Stop following an artist")
	unfollowUserID   = unfollowCmd.Arg("user-id", "User ID").Required().Int64()
	unfollowArtistID = unfollowCmd.Arg("artist-id", "Artist ID").Required().String()

	followedCmd    = app.Command("followed", "List the followed artists of a user")
	followedUserID = followedCmd.Arg("user-id", "User ID").Required().Int64()

	releasesCmd    = app.Command("check-releases", "Check followed artists for new releases")
	releasesUserID = releasesCmd.Flag("user-id", "Only check this user (default: all users)").Int64()

	musicCmd      = app.Command("music", "List the links sent to a chat recently")
	musicChatID   = musicCmd.Arg("chat-id", "Chat ID").Required().Int64()
	musicUsername = musicCmd.Flag("username", "List every link of this sender instead").String()

	historyCmd    = app.Command("history", "List the links a user sent")
	historyUserID = historyCmd.Arg("user-id", "User ID").Required().Int64()

	statsCmd    = app.Command("stats", "Show chat statistics")
	statsChatID = statsCmd.Arg("chat-id", "Chat ID").Required().Int64()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := logger.Init(logger.ConfigFromFlags(*verbose, *logfile)); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Debug().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(command, cfg); err != nil {
		zlog.Error().Msgf("%s failed: %v", command, err)
		os.Exit(1)
	}
}

// run executes a command. Using a separate function ensures deferred
// cleanup runs even when returning with an error.
func run(command string, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Config{
		Driver:        cfg.Database.Driver,
		DSN:           cfg.Database.DSN,
		LogLevel:      cfg.Database.LogLevel,
		SlowThreshold: cfg.Database.SlowThreshold,
		MaxOpenConns:  cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			zlog.Warn().Msgf("Failed to close database: %v", err)
		}
	}()

	if err := database.Migrate(db); err != nil {
		return err
	}
	if command == migrateCmd.FullCommand() {
		fmt.Println("Schema is up to date")
		return nil
	}

	svc, err := build(ctx, cfg, db, command)
	if err != nil {
		return err
	}

	switch command {
	case serveCmd.FullCommand():
		return serve(ctx, cfg, svc)
	case ingestCmd.FullCommand():
		return runIngest(ctx, svc, ingest.Message{
			Text:      *ingestText,
			UserID:    *ingestUserID,
			Username:  *ingestUsername,
			FirstName: *ingestFirstName,
			ChatID:    *ingestChatID,
			ChatName:  *ingestChatName,
		})
	case saveCmd.FullCommand():
		return runSave(ctx, svc, domain.User{ID: *saveUserID, Username: *saveName}, *saveURL)
	case unsaveCmd.FullCommand():
		return runUnsave(ctx, svc, *unsaveUserID, *unsaveLinkID)
	case savedCmd.FullCommand():
		return runSaved(ctx, svc, *savedUserID)
	case followCmd.FullCommand():
		return runFollow(ctx, svc, domain.User{ID: *followUserID, Username: *followName}, *followURL)
	case unfollowCmd.FullCommand():
		return runUnfollow(ctx, svc, *unfollowUserID, *unfollowArtistID)
	case followedCmd.FullCommand():
		return runFollowed(ctx, svc, *followedUserID)
	case releasesCmd.FullCommand():
		return runCheckReleases(ctx, svc, *releasesUserID)
	case musicCmd.FullCommand():
		return runMusic(ctx, svc, *musicChatID, *musicUsername)
	case historyCmd.FullCommand():
		return runHistory(ctx, svc, *historyUserID)
	case statsCmd.FullCommand():
		return runStats(ctx, svc, *statsChatID)
	}
	return errors.Newf("unknown command: %s", command)
}

// services holds the wired application. pipeline and sweeper are only built
// for commands that reach the metadata provider.
type services struct {
	pipeline *ingest.Pipeline
	activity *activity.Service
	sweeper  *releases.Sweeper
	queries  *queries.Service
}

// needsProvider reports whether a command may fetch provider metadata.
func needsProvider(command string) bool {
	switch command {
	case serveCmd.FullCommand(), ingestCmd.FullCommand(), saveCmd.FullCommand(),
		followCmd.FullCommand(), releasesCmd.FullCommand():
		return true
	}
	return false
}

func build(ctx context.Context, cfg *config.Config, db *gorm.DB, command string) (*services, error) {
	st := store.New(db)
	act := activity.New(st, nil)
	svc := &services{
		activity: act,
		queries:  queries.New(st, cfg.Queries, nil),
	}
	if !needsProvider(command) {
		return svc, nil
	}

	spotifyClient, err := spotify.New(ctx, spotify.Config{
		ClientID:      cfg.Spotify.ClientID,
		ClientSecret:  cfg.Spotify.ClientSecret,
		Market:        cfg.Spotify.Market,
		IncludeGroups: cfg.Releases.IncludeGroups,
		MaxRetries:    cfg.Spotify.MaxRetries,
		RetryDelay:    cfg.Spotify.RetryDelay,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Spotify client")
	}

	providers, err := classifier.ProvidersFromConfig(cfg.Providers)
	if err != nil {
		return nil, errors.Wrap(err, "invalid provider config")
	}

	rc := reconcile.New(st, spotifyClient)
	svc.pipeline = ingest.New(classifier.New(providers, classifier.NewHTTPRedirector(10*time.Second)), rc, act)
	svc.sweeper = releases.NewSweeper(st, releases.NewDiffer(spotifyClient, rc, st, nil))
	return svc, nil
}

func serve(ctx context.Context, cfg *config.Config, svc *services) error {
	if cfg.Server.Token == "" {
		return errors.New("server.token (or API_TOKEN) is required to serve the API")
	}
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := rest.NewHandler(svc.pipeline, svc.activity, svc.sweeper, svc.queries)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           rest.NewRouter(handler, cfg.Server.Token),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	select {
	case <-ctx.Done():
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))
	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// sh -c allows redirection and pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
