package api

import (
	"context"
	"crypto/subtle"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"trendbot/internal/account"
	"trendbot/internal/bot"
	"trendbot/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// Controller is the bot's run state as seen by the web surface.
type Controller interface {
	Running() bool
	Toggle(ctx context.Context) bool
	RunOnce(ctx context.Context) bot.Report
	LastReport() *bot.Report
}

type Accounts interface {
	Snapshot() []account.Status
	Refill(name string) error
}

type LogTail interface {
	Tail(ctx context.Context, n int) ([]string, error)
}

type Options struct {
	BotName           string
	AdminUsername     string
	AdminPasswordHash string
	TailLines         int
	RedirectHTTPS     bool
}

type Server struct {
	echo      *echo.Echo
	ctx       context.Context
	bot       Controller
	accounts  Accounts
	logs      LogTail
	posts     storage.PostRepository
	opts      Options
	logger    *slog.Logger
	templates *template.Template
	sse       *SSEBroker
}

type SSEBroker struct {
	clients map[chan string]bool
	mu      sync.RWMutex
}

func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan string]bool)}
}

func (b *SSEBroker) Subscribe() chan string {
	ch := make(chan string, 10)
	b.mu.Lock()
	b.clients[ch] = true
	b.mu.Unlock()
	return ch
}

func (b *SSEBroker) Unsubscribe(ch chan string) {
	b.mu.Lock()
	delete(b.clients, ch)
	close(ch)
	b.mu.Unlock()
}

func (b *SSEBroker) Broadcast(msg string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

type PageData struct {
	BotName    string
	Running    bool
	Accounts   []account.Status
	LastReport *bot.Report
	Logs       []string
}

// NewServer builds the control surface. ctx is the lifetime of loops started through it;
// posts may be nil when no history store is configured.
func NewServer(ctx context.Context, ctrl Controller, accounts Accounts, logs LogTail, posts storage.PostRepository, opts Options, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if opts.TailLines <= 0 {
		opts.TailLines = 20
	}

	s := &Server{
		echo:      e,
		ctx:       ctx,
		bot:       ctrl,
		accounts:  accounts,
		logs:      logs,
		posts:     posts,
		opts:      opts,
		logger:    logger,
		templates: template.Must(template.New("").Funcs(template.FuncMap{"ago": timeAgo}).ParseFS(templateFS, "templates/*.html")),
		sse:       NewSSEBroker(),
	}

	e.Use(middleware.Recover())
	e.Use(s.requestLogger())
	if opts.RedirectHTTPS {
		e.Pre(middleware.HTTPSRedirect())
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)

	g := s.echo.Group("", middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Validator: s.checkAuth,
		Realm:     "Login Required",
	}))

	// each limited route keeps its own per-client window
	toggleLimit := rateLimit()
	logsLimit := rateLimit()

	g.GET("/", s.index)
	g.GET("/toggle_bot", s.toggle, toggleLimit)
	g.POST("/toggle_bot", s.toggle, toggleLimit)
	g.GET("/get_logs", s.getLogs, logsLimit)

	g.GET("/api/status", s.status)
	g.POST("/api/run", s.run)
	g.GET("/api/accounts", s.getAccounts)
	g.POST("/api/accounts/:name/refill", s.refillAccount)
	g.GET("/api/posts", s.getPosts)
	g.GET("/api/events", s.events)
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) StartTLS(addr, certFile, keyFile string) error {
	return s.echo.StartTLS(addr, certFile, keyFile)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Broadcast(msg string) {
	s.sse.Broadcast(msg)
}

func (s *Server) checkAuth(username, password string, _ echo.Context) (bool, error) {
	if s.opts.AdminPasswordHash == "" {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.opts.AdminUsername)) != 1 {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(s.opts.AdminPasswordHash), []byte(password))
	return err == nil, nil
}

// rateLimit allows one request per second per client address.
func rateLimit() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(1),
			Burst:     1,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		},
	})
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		Skipper: func(c echo.Context) bool {
			// the log endpoints would otherwise flood the tail they serve
			p := c.Request().URL.Path
			return p == "/get_logs" || p == "/api/events" || p == "/health"
		},
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("[HTTP] request",
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			)
			return nil
		},
	})
}

func (s *Server) index(c echo.Context) error {
	lines, err := s.logs.Tail(c.Request().Context(), s.opts.TailLines)
	if err != nil {
		lines = []string{fmt.Sprintf("could not read logs: %v", err)}
	}

	data := PageData{
		BotName:    s.opts.BotName,
		Running:    s.bot.Running(),
		Accounts:   s.accounts.Snapshot(),
		LastReport: s.bot.LastReport(),
		Logs:       lines,
	}

	return s.render(c, "index.html", data)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) toggle(c echo.Context) error {
	if s.bot.Toggle(s.ctx) {
		s.logger.Info("[BOT] started from control surface")
		return c.JSON(http.StatusOK, map[string]string{"status": "started"})
	}
	s.logger.Info("[BOT] stopped from control surface")
	return c.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) getLogs(c echo.Context) error {
	lines, err := s.logs.Tail(c.Request().Context(), s.opts.TailLines)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]string{"logs": fmt.Sprintf("could not read logs: %v", err)})
	}
	return c.JSON(http.StatusOK, map[string]string{"logs": strings.Join(lines, "\n")})
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"running":     s.bot.Running(),
		"last_report": s.bot.LastReport(),
		"accounts":    s.accounts.Snapshot(),
	})
}

func (s *Server) run(c echo.Context) error {
	go s.bot.RunOnce(s.ctx)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (s *Server) getAccounts(c echo.Context) error {
	return c.JSON(http.StatusOK, s.accounts.Snapshot())
}

func (s *Server) refillAccount(c echo.Context) error {
	name := c.Param("name")

	if err := s.accounts.Refill(name); err != nil {
		if errors.Is(err, account.ErrInvalidAccount) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown account"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	s.logger.Info("[QUOTA] account refilled", "account", name)
	return c.JSON(http.StatusOK, s.accounts.Snapshot())
}

func (s *Server) getPosts(c echo.Context) error {
	if s.posts == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "post history is not configured"})
	}

	posts, err := s.posts.Recent(c.Request().Context(), 50)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) events(c echo.Context) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	ch := s.sse.Subscribe()
	defer s.sse.Unsubscribe(ch)

	fmt.Fprintf(c.Response(), ": ping\n\n")
	c.Response().Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case msg := <-ch:
			fmt.Fprintf(c.Response(), "event: log\n")
			for _, line := range strings.Split(msg, "\n") {
				fmt.Fprintf(c.Response(), "data: %s\n", line)
			}
			fmt.Fprintf(c.Response(), "\n")
			c.Response().Flush()
		}
	}
}

func (s *Server) render(c echo.Context, name string, data any) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.templates.ExecuteTemplate(c.Response(), name, data)
	if err != nil {
		s.logger.Error("[ERROR] render", "template", name, "error", err)
	}
	return err
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
