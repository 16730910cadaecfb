// Package app wires configuration, storage, services, and servers into a
// running aggregation node.
package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spear-it/spearhead/internal/adapters/labeler"
	"github.com/spear-it/spearhead/internal/adapters/reporting"
	"github.com/spear-it/spearhead/internal/adapters/storage"
	"github.com/spear-it/spearhead/internal/adapters/web"
	"github.com/spear-it/spearhead/internal/adapters/wire"
	"github.com/spear-it/spearhead/internal/config"
	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
	"github.com/spear-it/spearhead/internal/core/services/auth"
	"github.com/spear-it/spearhead/internal/core/services/correlate"
	"github.com/spear-it/spearhead/internal/core/services/ingest"
	"github.com/spear-it/spearhead/internal/core/services/protoinfo"
	"github.com/spear-it/spearhead/internal/mock"
	"github.com/spear-it/spearhead/internal/telemetry"
)

// DefaultAdminPassword is set on the provisioned admin account. Deployments
// are expected to change it after first login.
const DefaultAdminPassword = "changeit"

// Application owns every long-lived component of the aggregation server.
type Application struct {
	cfg *config.Config

	repo        *storage.SQLiteAdapter
	resolver    *protoinfo.Resolver
	correlator  *correlate.Correlator
	ingestSvc   *ingest.Service
	processor   *ingest.Processor
	authService *auth.Service

	wireServer *wire.Server
	webServer  *web.Server

	shutdownTracer func(context.Context) error
}

// New builds and wires the application. Every component is constructed here;
// nothing starts running until Run.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{cfg: cfg}
	if err := app.bootstrap(); err != nil {
		app.release()
		return nil, err
	}
	return app, nil
}

func (a *Application) bootstrap() error {
	if a.cfg.Debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	telemetry.InitMetrics()
	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.shutdownTracer = shutdownTracer

	if err := a.initStorage(); err != nil {
		return err
	}

	a.resolver = protoinfo.NewResolver(a.cfg.ProtocolTablePath)
	if err := a.resolver.Check(); err != nil {
		return fmt.Errorf("protocol table: %w", err)
	}

	a.initServices()
	if err := a.ensureDefaultAdmin(); err != nil {
		return err
	}
	a.initServers()
	return nil
}

func (a *Application) initStorage() error {
	if dir := filepath.Dir(a.cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	repo, err := storage.NewSQLiteAdapter(a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.repo = repo
	log.Printf("Database ready at %s", a.cfg.DBPath)
	return nil
}

func (a *Application) initServices() {
	// The labeler is optional; a nil interface keeps fallback labels.
	var campaignLabeler ports.CampaignLabeler
	if client := labeler.New(labeler.Config{
		BaseURL:     a.cfg.LabelerURL,
		APIKey:      a.cfg.LabelerAPIKey,
		Model:       a.cfg.LabelerModel,
		Temperature: a.cfg.LabelerTemperature,
		Timeout:     a.cfg.LabelerTimeout,
	}); client != nil {
		campaignLabeler = client
		log.Printf("Campaign labeling enabled via %s (%s)", a.cfg.LabelerURL, a.cfg.LabelerModel)
	} else {
		log.Printf("Campaign labeling disabled, campaigns keep fallback labels")
	}

	a.correlator = correlate.New(a.repo, campaignLabeler, correlate.Config{
		MatchThreshold: a.cfg.MatchThreshold,
		OngoingTimeout: a.cfg.OngoingTimeout,
		FlowTimeout:    a.cfg.FlowTimeout,
	})

	queue := ingest.NewQueue(a.cfg.QueueHighWaterMark)
	a.ingestSvc = ingest.NewService(a.repo, a.resolver, queue)
	a.processor = ingest.NewProcessor(queue, a.repo, a.correlator)

	a.authService = auth.NewService(a.repo)
}

// ensureDefaultAdmin provisions the admin account on first run so the admin
// API is reachable on a fresh database.
func (a *Application) ensureDefaultAdmin() error {
	ctx := context.Background()
	if _, err := a.repo.UserByUsername(ctx, "admin"); err == nil {
		return nil
	}
	admin := domain.User{Username: "admin", Role: domain.RoleAdmin}
	if err := a.authService.CreateUser(ctx, admin, DefaultAdminPassword); err != nil {
		return fmt.Errorf("provision admin user: %w", err)
	}
	log.Printf("Provisioned default admin user (username admin), change the password after first login")
	return nil
}

func (a *Application) initServers() {
	a.webServer = web.NewServer(a.cfg.APIAddr, a.repo, a.authService, reporting.NewPDFExporter())

	handshaker := wire.NewHandshaker()
	handshaker.EnableEncryption = a.cfg.EnableEncryption

	a.wireServer = wire.NewServer(handshaker, newAgentRouter(a.ingestSvc))
	a.wireServer.Subscribe(sessionMetricsHook)
	a.wireServer.Subscribe(a.webServer.WSManager.SessionHook())
}

// newAgentRouter binds the agent message ids to the ingress service.
// Message payloads ride as TEXT fields, JSON documents included; only
// the rules reply mirrors the request envelope.
func newAgentRouter(svc *ingest.Service) *wire.Router {
	router := wire.NewRouter()
	router.Handle(wire.MsgReport, func(_ *wire.Conn, _ string, frame *wire.Frame) error {
		body, err := frame.NextText()
		if err != nil {
			return err
		}
		return svc.SubmitReport([]byte(body))
	})
	router.Handle(wire.MsgHeartbeat, func(_ *wire.Conn, _ string, frame *wire.Frame) error {
		body, err := frame.NextText()
		if err != nil {
			return err
		}
		return svc.SubmitHeartbeat(context.Background(), []byte(body))
	})
	router.Handle(wire.MsgRequestRules, func(conn *wire.Conn, mac string, _ *wire.Frame) error {
		rules, err := svc.RulesJSONForDevice(context.Background(), mac)
		if err != nil {
			return err
		}
		return conn.Send(wire.Envelope(mac, wire.MsgRulesList, wire.TextField(rules)))
	})
	return router
}

// sessionMetricsHook feeds the session lifecycle into Prometheus.
func sessionMetricsHook(event wire.ServerEvent, _ *wire.Conn, _ *wire.Frame) {
	switch event {
	case wire.ConnectionEstablished:
		telemetry.SessionsEstablished.Inc()
		telemetry.SessionsActive.Inc()
	case wire.ConnectionFailedToEstablish:
		telemetry.SessionsFailed.Inc()
	case wire.ConnectionTerminated:
		telemetry.SessionsActive.Dec()
	case wire.MessageReceived:
		telemetry.FramesTotal.WithLabelValues("in").Inc()
	case wire.MessageSent:
		telemetry.FramesTotal.WithLabelValues("out").Inc()
	}
}

// Run starts every server and blocks until ctx is cancelled or a server
// fails. Shutdown order matters: the agent listener stops first so the
// processor can drain the queue and close ongoing campaigns before storage
// goes away.
func (a *Application) Run(ctx context.Context) error {
	errChan := make(chan error, 2)

	go func() {
		if err := a.wireServer.ListenAndServe(a.cfg.WrapperAddr()); err != nil {
			errChan <- fmt.Errorf("wrapper server: %w", err)
		}
	}()

	webCtx, stopWeb := context.WithCancel(context.Background())
	defer stopWeb()
	go func() {
		if err := a.webServer.Run(webCtx); err != nil {
			errChan <- fmt.Errorf("admin api: %w", err)
		}
	}()

	procCtx, stopProcessor := context.WithCancel(context.Background())
	defer stopProcessor()
	var procDone sync.WaitGroup
	procDone.Add(1)
	go func() {
		defer procDone.Done()
		a.processor.Run(procCtx)
	}()

	if a.cfg.MockAgents > 0 {
		go func() {
			// Give the listener a moment to bind before dialing it.
			time.Sleep(500 * time.Millisecond)
			if err := mock.RunFleet(ctx, a.cfg.WrapperAddr(), a.cfg.MockAgents, a.cfg.EnableEncryption); err != nil {
				slog.Error("mock fleet stopped", "err", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case runErr = <-errChan:
	}

	a.wireServer.Shutdown()
	stopProcessor()
	procDone.Wait()
	stopWeb()
	a.release()
	return runErr
}

// release frees whatever bootstrap managed to acquire. Idempotent.
func (a *Application) release() {
	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTracer(ctx); err != nil {
			log.Printf("Tracer shutdown error: %v", err)
		}
		cancel()
		a.shutdownTracer = nil
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			log.Printf("Database close error: %v", err)
		}
		a.repo = nil
	}
}
