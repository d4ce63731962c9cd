package main

import (
	"bufio"
	"context"
	"database/sql"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"telecare/internal/call"
	"telecare/internal/config"
	"telecare/internal/db"
	"telecare/internal/logger"
	"telecare/internal/signal"
	"telecare/pkg"

	_ "github.com/lib/pq"
)

// callagent is a headless call endpoint: it registers an identity with the
// relay, rings on authorized incoming calls, and answers them with audio
// from a file. Commands on stdin: accept, decline, call <userID>, hangup.
func main() {
	log := logger.For("cmd.callagent")

	cfg, err := config.New()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	userID := os.Getenv("AGENT_USER_ID")
	if userID == "" {
		log.Fatal("AGENT_USER_ID environment variable is required")
	}
	role := pkg.Role(os.Getenv("AGENT_ROLE"))
	if role == "" {
		role = pkg.RolePatient
	}
	audioPath := os.Getenv("AGENT_AUDIO_FILE")
	if audioPath == "" {
		audioPath = "audio.ogg"
	}

	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbConn.PingContext(pingCtx); err != nil {
		log.WithError(err).Fatal("failed to ping database")
	}
	repo := db.NewRepository(dbConn)

	client := signal.NewClient(cfg.RelayAddr, signal.RegisterPayload{UserID: userID, Role: role})
	session := call.NewSession(
		userID,
		client,
		call.NewPionFactory(nil),
		func() (call.MediaSource, error) { return call.NewFileSource(audioPath) },
		connectionGate{repo},
	)
	session.OnStateChange = func(state call.State) {
		log.WithField("state", state.String()).Info("call state changed")
	}
	call.BindRelay(client, session)

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	client.Connect(ctx)
	defer client.Close()

	go readCommands(ctx, session, log)

	<-ctx.Done()
	session.Hangup()
	log.Info("agent exited")
}

// connectionGate adapts the repository to the session's authorization
// check: an incoming call is surfaced only when this identity holds at
// least one connected relationship.
type connectionGate struct {
	repo *db.Repository
}

func (g connectionGate) HasConnectedPeer(ctx context.Context, userID string) (bool, error) {
	ids, err := g.repo.ConnectedDoctorIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func readCommands(ctx context.Context, session *call.Session, log interface{ Infof(string, ...any) }) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "accept":
			if err := session.Accept(ctx); err != nil {
				log.Infof("accept: %v", err)
			}
		case "decline":
			if err := session.Decline(); err != nil {
				log.Infof("decline: %v", err)
			}
		case "call":
			if len(fields) < 2 {
				log.Infof("usage: call <userID>")
				continue
			}
			if err := session.Call(ctx, fields[1]); err != nil {
				log.Infof("call: %v", err)
			}
		case "hangup":
			session.Hangup()
		default:
			log.Infof("commands: accept | decline | call <userID> | hangup")
		}
	}
}
