package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capricechess/caprice/internal/analysis"
	appcfg "github.com/capricechess/caprice/internal/config"
	"github.com/capricechess/caprice/internal/domain"
	"github.com/capricechess/caprice/internal/engine"
	"github.com/capricechess/caprice/internal/gamelock"
	"github.com/capricechess/caprice/internal/hub"
	"github.com/capricechess/caprice/internal/matchmaking"
	"github.com/capricechess/caprice/internal/obslog"
	"github.com/capricechess/caprice/internal/quizgen"
	"github.com/capricechess/caprice/internal/repo"
	"github.com/capricechess/caprice/internal/session"
	"github.com/capricechess/caprice/internal/store"
	"github.com/capricechess/caprice/internal/transport"
	"github.com/capricechess/caprice/pkg/wire"
)

const defaultSubject = "Math"

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L().Named("main")

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("redis ping error: %v", err)
	}
	pingCancel()

	var repository repo.Repository
	if cfg.DatabaseURL != "" {
		repository, err = repo.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres init error: %v", err)
		}
	} else {
		logger.Warn("DATABASE_URL not set, ratings and archives are in-memory only")
		repository = repo.NewMemory()
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	deps := session.Deps{
		Store:     store.New(rdb),
		Repo:      repository,
		Locks:     gamelock.New(rdb),
		Broadcast: hub.New(),
	}
	h := deps.Broadcast.(*hub.Hub)

	var eng *engine.Engine
	if cfg.StockfishPath != "" {
		eng, err = engine.New(rootCtx, cfg.StockfishPath)
		if err != nil {
			log.Fatalf("engine init error: %v", err)
		}
		deps.Picker = eng
	} else {
		logger.Warn("STOCKFISH_PATH not set, engine opponents and analysis disabled")
	}

	var worker *analysis.Worker
	if eng != nil {
		worker = analysis.New(repository, eng, cfg.AnalysisDepth, cfg.AnalysisWorkers)
		deps.Analyzer = worker
	}

	if cfg.QuizAPIURL != "" {
		deps.Filler = quizgen.New(cfg.QuizAPIURL, cfg.QuizAPIKey, deps.Store,
			quizgen.WithModel(cfg.QuizModel),
			quizgen.WithPoolSize(cfg.QuizPoolSize))
	} else {
		logger.Warn("QUIZ_API_URL not set, quizzes fall back to the built-in question")
	}

	svc := session.New(deps)

	queue := matchmaking.NewStore(rdb)
	matcher := matchmaking.NewMatcher(queue,
		func(a, b domain.SearchEntry) {
			subject := a.Subject
			if subject == "" {
				subject = b.Subject
			}
			if subject == "" {
				subject = defaultSubject
			}
			g, err := svc.CreateMatchedGame(rootCtx, a.PlayerID, b.PlayerID, subject)
			if err != nil {
				logger.Error("matched game creation failed",
					zap.String("a", a.PlayerID), zap.String("b", b.PlayerID), zap.Error(err))
				h.ToPlayer(a.PlayerID, wire.MustMarshal(wire.TypeError, &wire.ErrorPayload{Message: "match setup failed"}))
				h.ToPlayer(b.PlayerID, wire.MustMarshal(wire.TypeError, &wire.ErrorPayload{Message: "match setup failed"}))
				return
			}
			h.ToPlayer(g.WhiteID, wire.MustMarshal(wire.TypeGameFound, &wire.GameFoundPayload{
				Code: g.Code, Color: "white", OpponentID: g.BlackID,
			}))
			h.ToPlayer(g.BlackID, wire.MustMarshal(wire.TypeGameFound, &wire.GameFoundPayload{
				Code: g.Code, Color: "black", OpponentID: g.WhiteID,
			}))
		},
		func(e domain.SearchEntry) {
			h.ToPlayer(e.PlayerID, wire.MustMarshal(wire.TypeSearchCancelled, nil))
		})
	go matcher.Run(rootCtx)

	server := transport.New(svc, h, matcher, repository)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	rootCancel()
	if worker != nil {
		worker.Close()
	}
	if eng != nil {
		_ = eng.Close()
	}
	_ = repository.Close()
	_ = rdb.Close()
	_ = obslog.L().Sync()
}
