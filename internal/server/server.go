package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwhitden/muster/internal/config"
	"github.com/jwhitden/muster/internal/email"
	"github.com/jwhitden/muster/internal/handler"
	"github.com/jwhitden/muster/internal/invite"
	"github.com/jwhitden/muster/internal/middleware"
	"github.com/jwhitden/muster/internal/notify"
	"github.com/jwhitden/muster/internal/rsvp"
	"github.com/jwhitden/muster/internal/snapshot"
	"github.com/jwhitden/muster/internal/store"
	"github.com/jwhitden/muster/internal/tunnel"
	ws "github.com/jwhitden/muster/internal/websocket"
)

type Server struct {
	db        *sql.DB
	hub       *ws.Hub
	authH     *handler.AuthHandler
	eventH    *handler.EventHandler
	attendeeH *handler.AttendeeHandler
	profileH  *handler.FamilyProfileHandler
	inviteH   *handler.InviteHandler
	pushH     *handler.PushHandler
	snapshotH *handler.SnapshotHandler

	sessionStore  *store.SessionStore
	userStore     *store.UserStore
	notifLogStore *store.NotificationLogStore

	rateLimiter    *middleware.RateLimiter
	authRateLimit  int
	authRateWindow time.Duration

	snapshotManager   *snapshot.Manager
	tunnelManager     *tunnel.Manager
	reminderScheduler *notify.Scheduler
	logger            *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	eventStore := store.NewEventStore(db)
	attendeeStore := store.NewAttendeeStore(db)
	profileStore := store.NewFamilyProfileStore(db)
	pushStore := store.NewPushStore(db)
	notifLogStore := store.NewNotificationLogStore(db)
	snapshotStore := store.NewSnapshotStore(db)

	policy := rsvp.Policy{
		PendingEnabled:      cfg.RSVP.PendingEnabled,
		AllowPrimaryRemoval: cfg.RSVP.AllowPrimaryRemoval,
		AutoPromoteWaitlist: cfg.RSVP.AutoPromoteWaitlist,
	}
	registry := rsvp.NewRegistry(attendeeStore, eventStore, profileStore, policy, logger.With("component", "rsvp"))

	inviteSvc := invite.NewService(cfg.InviteSigningKey)
	emailClient := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.FromEmail)

	// Push notification sender + reminder scheduler
	notifyLogger := logger.With("component", "notify")
	var sender *notify.Sender
	var reminderSched *notify.Scheduler
	notifier := notify.NewNotifier(nil, pushStore, notifLogStore, eventStore, notifyLogger)
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		sender = notify.NewSender(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
		notifier = notify.NewNotifier(sender, pushStore, notifLogStore, eventStore, notifyLogger)
		reminderSched = notify.NewScheduler(notifier, notifLogStore, eventStore, attendeeStore,
			cfg.Push.ReminderLead, cfg.Push.ReminderInterval, logger.With("component", "reminder"))
	}

	// Snapshot manager broadcasts state changes to connected clients.
	snapshotMgr := snapshot.NewManager(snapshot.Config{
		S3Endpoint:  cfg.Snapshot.S3Endpoint,
		S3Region:    cfg.Snapshot.S3Region,
		S3Bucket:    cfg.Snapshot.S3Bucket,
		S3AccessKey: cfg.Snapshot.S3AccessKey,
		S3SecretKey: cfg.Snapshot.S3SecretKey,
		DBPath:      cfg.DatabasePath,
		Passphrase:  cfg.Snapshot.Passphrase,
		Interval:    cfg.Snapshot.Interval,
		Retain:      cfg.Snapshot.Retain,
	}, db, snapshotStore, func(st snapshot.Status) {
		hub.Broadcast(ws.Message{
			Type:   "snapshot_status",
			Entity: "snapshot",
			Action: string(st.State),
			Extra: map[string]any{
				"in_progress": st.InProgress,
				"error":       st.Error,
			},
		})
	}, logger.With("component", "snapshot"))

	// Tunnel manager broadcasts state changes the same way.
	tunnelMgr := tunnel.NewManager(tunnel.Config{
		Token:           cfg.Tunnel.Token,
		Enabled:         cfg.Tunnel.Enabled,
		CloudflaredPath: cfg.Tunnel.CloudflaredPath,
	}, func(st tunnel.Status) {
		hub.Broadcast(ws.Message{
			Type:   "tunnel_status",
			Entity: "tunnel",
			Action: string(st.State),
			Extra: map[string]any{
				"hostname": st.Hostname,
				"error":    st.Error,
			},
		})
	}, logger.With("component", "tunnel"))

	return &Server{
		db:        db,
		hub:       hub,
		authH:     handler.NewAuthHandler(userStore, sessionStore, cfg.SessionTTL, logger.With("component", "auth")),
		eventH:    handler.NewEventHandler(eventStore, registry, inviteSvc, emailClient, cfg.BaseURL, hub, logger.With("component", "event")),
		attendeeH: handler.NewAttendeeHandler(registry, attendeeStore, eventStore, hub, notifier, logger.With("component", "attendee")),
		profileH:  handler.NewFamilyProfileHandler(profileStore, logger.With("component", "family_profile")),
		inviteH:   handler.NewInviteHandler(inviteSvc, eventStore, userStore, registry, policy, hub, logger.With("component", "invite")),
		pushH:     handler.NewPushHandler(pushStore, sender, logger.With("component", "push")),
		snapshotH: handler.NewSnapshotHandler(snapshotMgr, snapshotStore, logger.With("component", "snapshot_handler")),

		sessionStore:  sessionStore,
		userStore:     userStore,
		notifLogStore: notifLogStore,

		rateLimiter:    middleware.NewRateLimiter(),
		authRateLimit:  cfg.AuthRateLimit,
		authRateWindow: cfg.AuthRateWindow,

		snapshotManager:   snapshotMgr,
		tunnelManager:     tunnelMgr,
		reminderScheduler: reminderSched,
		logger:            logger,
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// NotificationLogStore returns the notification log store for cleanup tasks.
func (s *Server) NotificationLogStore() *store.NotificationLogStore {
	return s.notifLogStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// SnapshotManager returns the snapshot manager.
func (s *Server) SnapshotManager() *snapshot.Manager {
	return s.snapshotManager
}

// TunnelManager returns the tunnel manager.
func (s *Server) TunnelManager() *tunnel.Manager {
	return s.tunnelManager
}

// ReminderScheduler returns the reminder scheduler, nil when push is not
// configured.
func (s *Server) ReminderScheduler() *notify.Scheduler {
	return s.reminderScheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.Handle("POST /api/auth/register", middleware.Metrics(s.rateLimitedHandler(s.authH.Register)))
	outerMux.Handle("POST /api/auth/login", middleware.Metrics(s.rateLimitedHandler(s.authH.Login)))
	outerMux.Handle("GET /api/invites/{token}", middleware.Metrics(http.HandlerFunc(s.inviteH.Resolve)))
	outerMux.Handle("GET /api/health", middleware.Metrics(http.HandlerFunc(s.healthHandler)))
	outerMux.Handle("GET /metrics", promhttp.Handler())

	// Protected routes, wrapped with RequireAuth. Metrics sits inside
	// RequireAuth so it sees the pattern the inner mux matched.
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(middleware.Metrics(protectedMux)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, s.authRateLimit, s.authRateWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Auth
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	// Events
	mux.HandleFunc("GET /api/events", s.eventH.List)
	mux.HandleFunc("POST /api/events", s.eventH.Create)
	mux.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	mux.HandleFunc("PUT /api/events/{id}", s.eventH.Update)
	mux.HandleFunc("DELETE /api/events/{id}", s.eventH.Delete)
	mux.HandleFunc("GET /api/events/{id}/capacity", s.eventH.Capacity)
	mux.HandleFunc("POST /api/events/{id}/invite", s.eventH.Invite)

	// Attendees
	mux.HandleFunc("GET /api/me/rsvps", s.attendeeH.MyRSVPs)
	mux.HandleFunc("GET /api/events/{id}/attendees", s.attendeeH.List)
	mux.HandleFunc("POST /api/events/{id}/attendees", s.attendeeH.Add)
	mux.HandleFunc("POST /api/events/{id}/attendees/bulk", s.attendeeH.BulkAdd)
	mux.HandleFunc("PATCH /api/attendees/{id}/status", s.attendeeH.UpdateStatus)
	mux.HandleFunc("DELETE /api/attendees/{id}", s.attendeeH.Remove)
	mux.HandleFunc("POST /api/attendees/{id}/link", s.attendeeH.Link)
	mux.HandleFunc("POST /api/attendees/{id}/promote", s.attendeeH.Promote)

	// Family profiles
	mux.HandleFunc("GET /api/family-profiles", s.profileH.List)
	mux.HandleFunc("POST /api/family-profiles", s.profileH.Create)
	mux.HandleFunc("PUT /api/family-profiles/{id}", s.profileH.Update)
	mux.HandleFunc("DELETE /api/family-profiles/{id}", s.profileH.Delete)

	// Invites (accepting requires an account)
	mux.HandleFunc("POST /api/invites/{token}/accept", s.inviteH.Accept)

	// Push subscriptions
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions", s.pushH.Unsubscribe)

	// Snapshots (admin only)
	mux.Handle("POST /api/snapshots", middleware.RequireAdmin(http.HandlerFunc(s.snapshotH.RunNow)))
	mux.Handle("GET /api/snapshots", middleware.RequireAdmin(http.HandlerFunc(s.snapshotH.List)))
	mux.Handle("GET /api/snapshots/status", middleware.RequireAdmin(http.HandlerFunc(s.snapshotH.Status)))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}
