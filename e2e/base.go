package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"transfer-lab/infrastructure/cluster"
	"transfer-lab/infrastructure/tcpnet"
	"transfer-lab/services"
	"transfer-lab/transfer"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

// BaseSuite connects the scenarios to a daemon that is already running.
// The session file written by the daemon is the only coordination needed.
type BaseSuite struct {
	suite.Suite
	Config Config

	log       *slog.Logger
	transport *tcpnet.Transport
	session   *cluster.PrimarySession
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	if s.Config.SessionFile == "" {
		s.T().Skip("SESSION_FILE not set, the scenarios need a running daemon")
	}

	s.log = logs.GetLoggerFromString(s.Config.LogLevel)

	file, err := cluster.LoadSessionFile(s.Config.SessionFile)
	s.Require().NoError(err, "Failed to load the session credential")

	s.transport = tcpnet.NewTransport(s.log, 10*time.Second)
	s.session = file.Session(s.log, s.transport)
}

// Step prints a colorized header so the scenario reads as a sequence in the
// test output, then runs fn with a bounded context.
func (s *BaseSuite) Step(t *testing.T, name string, fn func(ctx context.Context)) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fn(ctx)
}

// Transfers builds a transfer service against the live daemon. Each call is
// independent, the engine underneath keeps no state between commands.
func (s *BaseSuite) Transfers() *services.TransferService {
	engine := transfer.NewEngine(s.log, s.transport, s.session)
	return services.NewTransferService(s.log, engine, nil)
}

// Catalog builds a catalog service against the live daemon.
func (s *BaseSuite) Catalog() *services.CatalogService {
	return services.NewCatalogService(s.log, s.transport, s.session, nil)
}
