package agent

import (
	"os"
	"sync"
	"time"

	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"

	"github.com/pairforge/agent/internal/audit"
	"github.com/pairforge/agent/internal/config"
	"github.com/pairforge/agent/internal/daemon"
	"github.com/pairforge/agent/internal/janitor"
	"github.com/pairforge/agent/internal/session"
	"github.com/pairforge/agent/internal/storage"
	"github.com/pairforge/agent/internal/wire"
)

// StartWebService wires storage, gateway dialer, lifecycle controller,
// audit ledger and janitor together and starts the HTTP boundary.
func StartWebService(cfg *config.Config) (*daemon.Server, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := storage.NewStore(3, time.Second)

	var auditStore *audit.Store
	var recorder session.Recorder

	if cfg.Audit.Enabled {
		opened, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			// The agent can run without its ledger; pairing matters more.
			logrus.WithError(err).Warnln("Audit ledger unavailable; continuing without it")
		} else {
			auditStore = opened
			recorder = opened
		}
	}

	dialer := wire.NewBridgeDialer(cfg.Gateway.Endpoint, cfg.Gateway.APIKey)

	controller := session.NewController(cfg, dialer, store, recorder)

	server := daemon.NewServer(cfg, controller, auditStore)

	if cfg.Janitor.Enabled {
		sweeper := janitor.New(store, cfg.Pairing.StoragePath, cfg.Janitor.MaxAge)
		sweeper.Start(cfg.Janitor.Interval)
		server.OnShutdown(sweeper.Stop)
	}

	if auditStore != nil {
		server.OnShutdown(func() {
			if err := auditStore.Close(); err != nil {
				logrus.WithError(err).Warnln("Failed to close audit ledger")
			}
		})
	}

	if err := server.Start(); err != nil {
		return nil, err
	}

	return server, nil
}

// ServiceProgram implements the service.Interface
type ServiceProgram struct {
	exit   chan struct{}
	config *config.Config

	mu     sync.Mutex
	server *daemon.Server
}

func (p *ServiceProgram) Start(s service.Service) error {
	logrus.Infoln("Pairforge agent service starting")
	go p.run()
	return nil
}

func (p *ServiceProgram) run() {
	server, err := StartWebService(p.config)

	if err != nil {
		logrus.WithError(err).Errorf("Failed to start web service")
		return
	}

	p.mu.Lock()
	p.server = server
	p.mu.Unlock()

	logrus.Infoln("Pairforge agent service is running")
}

func (p *ServiceProgram) Stop(s service.Service) error {
	logrus.Infoln("Pairforge agent service stopping")

	p.mu.Lock()
	server := p.server
	p.mu.Unlock()

	if server != nil {
		server.Stop()
	}

	close(p.exit)
	return nil
}

// CreateService creates a new OS service instance
func CreateService(cfg *config.Config) (service.Service, error) {
	svcConfig := getServiceConfig()

	prg := &ServiceProgram{
		exit:   make(chan struct{}),
		config: cfg,
	}

	return service.New(prg, svcConfig)
}

// getServiceConfig returns the service configuration
func getServiceConfig() *service.Config {
	exePath, err := os.Executable()

	if err != nil {
		logrus.Fatal(err)
	}

	return &service.Config{
		Name:        "pairforge",
		DisplayName: "Pairforge Agent Service",
		Description: "Pairforge Agent - provisions messaging sessions via pairing codes",
		Executable:  exePath,
		Arguments: []string{
			"serve",
		},
	}
}
