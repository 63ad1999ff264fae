// Command consult-peer joins a consultation as a headless participant. It
// sends synthetic audio and video, which makes it useful as a test double
// for the other side of a call and for smoke testing a deployment.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mediconnect-backend/internal/call"
	"mediconnect-backend/internal/client"
	"mediconnect-backend/internal/media"
	"mediconnect-backend/internal/rtc"
	"mediconnect-backend/pkg/config"
	"mediconnect-backend/pkg/env"
	"mediconnect-backend/pkg/jwt"
	"mediconnect-backend/pkg/logger"
)

type options struct {
	serverURL     string
	appointmentID string
	userID        string
	role          string
	token         string
	autoReconnect bool
	duration      time.Duration
}

func parseOptions() options {
	var o options
	flag.StringVar(&o.serverURL, "server", env.GetString("CONSULT_SERVER_URL", "http://localhost:8080"), "consult-service base URL")
	flag.StringVar(&o.appointmentID, "appointment", env.GetString("CONSULT_APPOINTMENT_ID", ""), "appointment to join")
	flag.StringVar(&o.userID, "user", env.GetString("CONSULT_USER_ID", ""), "local participant id")
	flag.StringVar(&o.role, "role", env.GetString("CONSULT_ROLE", "patient"), "role claim when minting a token")
	flag.StringVar(&o.token, "token", env.GetStringFromFile("CONSULT_TOKEN", ""), "bearer token; minted from JWT_SECRET when empty")
	flag.BoolVar(&o.autoReconnect, "auto-reconnect", env.GetBool("CONSULT_AUTO_RECONNECT", true), "accept the reconnect prompt")
	flag.DurationVar(&o.duration, "duration", env.GetDuration("CONSULT_DURATION", 0), "hang up after this long; zero stays until interrupted")
	flag.Parse()
	return o
}

// logNavigator turns navigation into process control
type logNavigator struct {
	reload chan struct{}
	leave  chan string
}

func (n *logNavigator) Navigate(path string) {
	logger.Info("Call left", zap.String("destination", path))
	select {
	case n.leave <- path:
	default:
	}
}

func (n *logNavigator) Reload() {
	logger.Info("Rejoining call")
	select {
	case n.reload <- struct{}{}:
	default:
	}
}

type autoPrompter struct {
	accept bool
}

func (p autoPrompter) ConfirmReconnect(_ context.Context, message string) bool {
	logger.Warn(message, zap.Bool("accepted", p.accept))
	return p.accept
}

func main() {
	o := parseOptions()

	cfg, err := config.Load()
	if err != nil {
		logger.InitDefault()
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		logger.InitDefault()
	}
	defer logger.Sync()

	if o.appointmentID == "" || o.userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	token := o.token
	if token == "" {
		if cfg.JWT.Secret == "" {
			logger.Fatal("Either -token or JWT_SECRET is required")
		}
		token, err = jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry).GenerateAccessToken(o.userID, o.role)
		if err != nil {
			logger.Fatal("Failed to mint token", zap.Error(err))
		}
	}

	api, err := client.New(o.serverURL, token)
	if err != nil {
		logger.Fatal("Invalid server URL", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var deadline <-chan time.Time
	if o.duration > 0 {
		timer := time.NewTimer(o.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	nav := &logNavigator{reload: make(chan struct{}, 1), leave: make(chan string, 1)}
	for {
		session, err := call.NewSession(call.Config{
			AppointmentID:      o.appointmentID,
			LocalUserID:        o.userID,
			Loader:             api,
			Mailbox:            api,
			Media:              media.NewSynthetic(),
			NewPeer:            rtc.NewFactory(),
			Navigator:          nav,
			Prompter:           autoPrompter{accept: o.autoReconnect},
			ICEServers:         cfg.Call.STUNServers,
			ReconnectDelay:     cfg.Call.ReconnectDelay,
			NegotiationTimeout: cfg.Call.NegotiationTimeout,
		})
		if err != nil {
			logger.Fatal("Invalid session configuration", zap.Error(err))
		}

		if err := session.Start(ctx); err != nil {
			logger.Error("Call setup failed", zap.Error(err), zap.String("status", string(session.Status())))
			if terminal(err) {
				session.Close(context.Background())
				return
			}
		} else {
			logger.Info("Joined call",
				zap.String("appointment_id", o.appointmentID),
				zap.String("role", string(session.Role())))
		}

		select {
		case <-ctx.Done():
			session.End(context.Background())
			logger.Info("Interrupted, call ended", zap.String("elapsed", call.FormatElapsed(session.Elapsed())))
			return
		case <-deadline:
			session.End(context.Background())
			logger.Info("Duration reached, call ended", zap.String("elapsed", call.FormatElapsed(session.Elapsed())))
			return
		case <-session.Done():
		}

		// Reload follows Close, so give it a moment to arrive
		select {
		case <-nav.reload:
			continue
		case <-nav.leave:
		case <-time.After(time.Second):
			logger.Info("Counterpart left the call")
		}
		logger.Info("Call finished", zap.String("elapsed", call.FormatElapsed(session.Elapsed())))
		return
	}
}

// terminal reports setup failures a reload cannot fix
func terminal(err error) bool {
	return errors.Is(err, call.ErrNotFound) ||
		errors.Is(err, call.ErrUnauthorized) ||
		errors.Is(err, call.ErrLoad)
}
