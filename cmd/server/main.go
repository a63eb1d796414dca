package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // .env loading for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/ycchuang/chat-server/internal/chat"       // chatroom document store
	"github.com/ycchuang/chat-server/internal/config"     // internal config loader
	"github.com/ycchuang/chat-server/internal/database"   // MySQL connector
	"github.com/ycchuang/chat-server/internal/handler"    // HTTP handlers
	"github.com/ycchuang/chat-server/internal/oauth"      // credential exchange and flow state
	"github.com/ycchuang/chat-server/internal/queue"      // provisioning reconciler
	"github.com/ycchuang/chat-server/internal/repository" // relational repositories
	"github.com/ycchuang/chat-server/internal/router"     // route registration
	"github.com/ycchuang/chat-server/internal/service"    // orchestration services
)

func main() {
	_ = godotenv.Load() // best-effort; real deployments set the environment directly
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	accounts := repository.NewAccountRepo(db)
	sessions := repository.NewSessionRepo(db)
	friends := repository.NewFriendRepo(db)

	// Flow state lives in Redis when available so multiple instances
	// agree on pending states and handoffs; otherwise it degrades to
	// the in-memory implementations, which are correct for a single
	// instance.
	var (
		states    oauth.StateLedger
		handoff   oauth.HandoffRelay
		chatStore *chat.Store
	)
	if rdb := config.NewRedisClient(); rdb != nil {
		states = oauth.NewRedisStateLedger(rdb, cfg.StateTTL)
		handoff = oauth.NewRedisHandoffRelay(rdb, cfg.StateTTL)
		chatStore = chat.NewStore(rdb)
	} else {
		log.Printf("redis unavailable; using in-memory auth flow state, chat endpoints disabled")
		states = oauth.NewMemoryStateLedger(cfg.StateTTL)
		handoff = oauth.NewMemoryHandoffRelay(cfg.StateTTL)
	}

	authSvc := &service.AuthService{
		Exchanger:      oauth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.RedirectURI),
		States:         states,
		Handoff:        handoff,
		Users:          users,
		Accounts:       accounts,
		Sessions:       sessions,
		ProviderID:     "google",
		SessionTTLDays: cfg.SessionTTLDays,
		BcryptCost:     cfg.BcryptCost,
	}

	friendSvc := &service.FriendService{
		Users:   users,
		Friends: friends,
	}
	if chatStore != nil {
		friendSvc.Rooms = chatStore
	}
	if cfg.RabbitURL != "" {
		friendSvc.Publisher = service.NewPublisher(cfg.RabbitURL)
		if chatStore != nil {
			go queue.StartProvisionConsumer(cfg.RabbitURL, friends, chatStore)
		}
	}

	var chatHandler *handler.ChatHandler
	if chatStore != nil {
		chatHandler = handler.NewChatHandler(chatStore)
	}

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc))
	router.RegisterFriends(e, handler.NewFriendsHandler(friendSvc), sessions)
	router.RegisterChat(e, chatHandler, sessions)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
