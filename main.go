package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"myvod/api"
	"myvod/config"
	"myvod/models"
	"myvod/services/cache"
	"myvod/services/library"
	"myvod/services/mutations"
	"myvod/services/onboarding"
	"myvod/services/session"
	"myvod/services/suggestions"
)

const usage = `myvod <command> [args]

Account:
  register <email> <password>   create an account
  login <email> <password>      log in and persist the session
  logout                        drop the session
  delete-account                delete the account permanently

Profile:
  profile                       show the user profile
  platforms                     list streaming platforms
  set-platforms <id> [id...]    replace the selected platforms

Movies:
  search <query>                search movies by title
  watchlist                     list the watchlist
  watched                       list watched movies
  add <tconst>                  add a movie to the watchlist
  watch <id>                    mark an entry as watched
  restore <id>                  restore an entry to the watchlist
  rm <id>                       remove an entry

Discovery:
  suggest                       show AI suggestions
  seed <tconst> [tconst...]     mark up to three starter movies as watched
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	configPath := os.Getenv("MYVOD_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stderr, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
	}

	tokenStore, err := session.NewTokenStore(afero.NewOsFs(), settings.Auth.TokensFile)
	if err != nil {
		log.Fatalf("failed to open token store: %v", err)
	}

	store := cache.NewStore()

	onLogout := func() {
		store.Clear()
		if err := tokenStore.Clear(); err != nil {
			log.Printf("[main] clear tokens: %v", err)
		}
	}

	client, err := api.NewClient(settings.Server.BaseURL,
		api.WithHTTPClient(&http.Client{Timeout: time.Duration(settings.Server.TimeoutSeconds) * time.Second}),
		api.WithTokenSource(tokenStore),
		api.WithLogoutHook(onLogout),
	)
	if err != nil {
		log.Fatalf("failed to create API client: %v", err)
	}

	pipeline := mutations.NewPipeline(client, store, mutations.WithSessionExpiredHook(onLogout))
	reads := library.NewService(client, store)
	suggest := suggestions.NewService(client, store, settings.Suggestions.Debug)
	sessions, err := session.NewService(client, store, tokenStore, pipeline)
	if err != nil {
		log.Fatalf("failed to create session service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	app := &app{
		reads:    reads,
		pipeline: pipeline,
		suggest:  suggest,
		sessions: sessions,
	}

	if err := app.run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	reads    *library.Service
	pipeline *mutations.Pipeline
	suggest  *suggestions.Service
	sessions *session.Service
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.sessions.Logout()
	case "delete-account":
		return a.sessions.DeleteAccount(ctx)
	case "profile":
		return a.profile(ctx)
	case "platforms":
		return a.platforms(ctx)
	case "set-platforms":
		return a.setPlatforms(ctx, args)
	case "search":
		return a.search(ctx, args)
	case "watchlist":
		return a.listMovies(ctx, models.StatusWatchlist)
	case "watched":
		return a.listMovies(ctx, models.StatusWatched)
	case "add":
		return a.add(ctx, args)
	case "watch":
		return a.patch(ctx, args, a.pipeline.MarkWatched)
	case "restore":
		return a.patch(ctx, args, a.pipeline.RestoreToWatchlist)
	case "rm":
		return a.remove(ctx, args)
	case "suggest":
		return a.suggestions(ctx)
	case "seed":
		return a.seed(ctx, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: register <email> <password>")
	}
	user, err := a.sessions.Register(ctx, models.RegisterUserCommand{Email: args[0], Password: args[1]})
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s. Log in to continue.\n", user.Email)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: login <email> <password>")
	}
	if _, err := a.sessions.Login(ctx, models.LoginUserCommand{Email: args[0], Password: args[1]}); err != nil {
		return err
	}
	fmt.Println("Logged in.")
	return nil
}

func (a *app) profile(ctx context.Context) error {
	profile, err := a.reads.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Email: %s\n", profile.Email)
	if len(profile.Platforms) == 0 {
		fmt.Println("Platforms: none selected")
		return nil
	}
	fmt.Println("Platforms:")
	for _, p := range profile.Platforms {
		fmt.Printf("  [%d] %s\n", p.ID, p.PlatformName)
	}
	return nil
}

func (a *app) platforms(ctx context.Context) error {
	platforms, err := a.reads.Platforms(ctx)
	if err != nil {
		return err
	}
	for _, p := range platforms {
		fmt.Printf("[%d] %s\n", p.ID, p.PlatformName)
	}
	return nil
}

func (a *app) setPlatforms(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: set-platforms <id> [id...]")
	}
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("platform id %q is not a number", arg)
		}
		ids = append(ids, id)
	}
	profile, err := a.pipeline.UpdatePlatforms(ctx, ids)
	if err != nil {
		return err
	}
	fmt.Printf("Selected %d platform(s).\n", len(profile.Platforms))
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	query := strings.Join(args, " ")
	results, err := a.reads.Search(ctx, query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%s  %s%s%s\n", r.Tconst, r.PrimaryTitle, yearSuffix(r.StartYear), ratingSuffix(r.AvgRating))
	}
	return nil
}

func (a *app) listMovies(ctx context.Context, status string) error {
	movies, err := a.reads.UserMovies(ctx, status)
	if err != nil {
		return err
	}
	if len(movies) == 0 {
		fmt.Println("Nothing here yet.")
		return nil
	}
	for _, m := range models.SortUserMovies(movies, models.SortAddedDesc) {
		line := fmt.Sprintf("[%d] %s%s", m.ID, m.Movie.PrimaryTitle, yearSuffix(m.Movie.StartYear))
		if label := m.WatchedAtLabel(); label != "" {
			line += "  watched " + label
		}
		fmt.Println(line)
	}
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: add <tconst>")
	}
	movie, err := a.pipeline.AddToWatchlist(ctx, args[0])
	if err != nil {
		if class, ok := mutations.ClassOf(err); ok && class == mutations.ClassAlreadyPresent {
			fmt.Println("Already on the watchlist.")
			return nil
		}
		return err
	}
	fmt.Printf("Added %s to the watchlist.\n", movie.Movie.PrimaryTitle)
	return nil
}

func (a *app) patch(ctx context.Context, args []string, op func(context.Context, int) (*models.UserMovie, error)) error {
	if len(args) != 1 {
		return errors.New("usage: <command> <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("entry id %q is not a number", args[0])
	}
	movie, err := op(ctx, id)
	if err != nil {
		return err
	}
	if movie.IsWatched() {
		fmt.Printf("Marked %s as watched.\n", movie.Movie.PrimaryTitle)
	} else {
		fmt.Printf("Restored %s to the watchlist.\n", movie.Movie.PrimaryTitle)
	}
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: rm <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("entry id %q is not a number", args[0])
	}
	if err := a.pipeline.DeleteUserMovie(ctx, id); err != nil {
		return err
	}
	fmt.Println("Removed.")
	return nil
}

func (a *app) suggestions(ctx context.Context) error {
	batch, err := a.suggest.Get(ctx)
	if err != nil {
		switch {
		case errors.Is(err, suggestions.ErrNoSuggestions):
			fmt.Println("No suggestions yet. Watch a few movies first.")
			return nil
		case errors.Is(err, suggestions.ErrRateLimited):
			fmt.Println("Suggestion limit reached. Try again later.")
			return nil
		}
		return err
	}
	for _, s := range batch.Suggestions {
		fmt.Printf("%s  %s%s\n", s.Tconst, s.PrimaryTitle, yearSuffix(s.StartYear))
		if s.Justification != "" {
			fmt.Printf("    %s\n", s.Justification)
		}
	}
	return nil
}

// seed drives the onboarding flow non-interactively: pick each movie, then
// finish, reporting per-item outcomes the way the selection tracks them.
func (a *app) seed(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: seed <tconst> [tconst...]")
	}

	controller := onboarding.NewController(a.pipeline, onboarding.DefaultMaxSelected)
	for _, tconst := range args {
		err := controller.Pick(ctx, models.MovieSearchResult{Tconst: tconst, PrimaryTitle: tconst})
		switch {
		case errors.Is(err, onboarding.ErrSelectionFull):
			fmt.Printf("Skipping %s: only %d starter movies allowed.\n", tconst, onboarding.DefaultMaxSelected)
		case errors.Is(err, onboarding.ErrAlreadySelected):
			fmt.Printf("Skipping %s: already selected.\n", tconst)
		}
	}

	err := controller.Finish(ctx)
	for _, item := range controller.Selected() {
		switch item.Status {
		case models.SelectedSuccess:
			fmt.Printf("%s: marked as watched\n", item.Tconst)
		case models.SelectedError:
			fmt.Printf("%s: %s\n", item.Tconst, item.Error)
		}
	}
	return err
}

func yearSuffix(year *int) string {
	if year == nil {
		return ""
	}
	return fmt.Sprintf(" (%d)", *year)
}

func ratingSuffix(rating *string) string {
	if rating == nil {
		return ""
	}
	return "  ★" + *rating
}
