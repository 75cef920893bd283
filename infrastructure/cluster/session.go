package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"transfer-lab/contract"
	"transfer-lab/domain"
	"transfer-lab/errors"
)

// PrimarySession is a registered identity on the cluster. It holds the key
// for its home data-center; keys for other data-centers are obtained by the
// transfer broker through Export and ImportAuthorization.
type PrimarySession struct {
	log       *slog.Logger
	transport contract.Transport
	id        string
	homeDC    int
	endpoints map[int]domain.Endpoint
	key       domain.AuthKey
}

func NewPrimarySession(log *slog.Logger, transport contract.Transport,
	id string, homeDC int, endpoints map[int]domain.Endpoint, key domain.AuthKey) *PrimarySession {
	return &PrimarySession{
		log:       log,
		transport: transport,
		id:        id,
		homeDC:    homeDC,
		endpoints: endpoints,
		key:       key,
	}
}

func (s *PrimarySession) ID() string {
	return s.id
}

func (s *PrimarySession) HomeDC() int {
	return s.homeDC
}

func (s *PrimarySession) AuthKey() domain.AuthKey {
	return s.key
}

func (s *PrimarySession) Endpoint(dc int) (domain.Endpoint, error) {
	ep, ok := s.endpoints[dc]
	if !ok {
		return domain.Endpoint{}, fmt.Errorf("%w: %d", errors.ErrUnknownDC, dc)
	}
	return ep, nil
}

// Export asks the home data-center for a ticket redeemable on dc. It runs on
// a short-lived connection of its own so it never interferes with transfer
// traffic.
func (s *PrimarySession) Export(ctx context.Context, dc int) (domain.AuthTicket, error) {
	ep, err := s.Endpoint(s.homeDC)
	if err != nil {
		return domain.AuthTicket{}, err
	}
	conn, err := s.transport.Dial(ctx, ep)
	if err != nil {
		return domain.AuthTicket{}, fmt.Errorf("dial home data-center: %w", err)
	}
	defer func() {
		if err := conn.Close(ctx); err != nil {
			s.log.Debug("failed to close export connection", slog.String("error", err.Error()))
		}
	}()

	if _, err := conn.Call(ctx, domain.BindSession{Session: s.id, KeyDigest: s.key.Digest()}); err != nil {
		return domain.AuthTicket{}, fmt.Errorf("bind home session: %w", err)
	}
	resp, err := conn.Call(ctx, domain.ExportAuthorization{TargetDC: dc})
	if err != nil {
		return domain.AuthTicket{}, fmt.Errorf("export authorization: %w", err)
	}
	exported, ok := resp.(domain.AuthorizationExported)
	if !ok {
		return domain.AuthTicket{}, fmt.Errorf("export authorization: %w", errors.ErrUnexpectedResponse)
	}
	return exported.Ticket, nil
}

// SessionFile is the on-disk form of a registered session, written by the
// daemon at registration and handed to clients. Whoever holds the file can
// bind as the session, so it is the credential.
type SessionFile struct {
	ID        string                  `json:"id"`
	HomeDC    int                     `json:"home_dc"`
	Endpoints map[int]domain.Endpoint `json:"endpoints"`
	Key       domain.AuthKey          `json:"key"`
}

func (f SessionFile) Session(log *slog.Logger, transport contract.Transport) *PrimarySession {
	return NewPrimarySession(log, transport, f.ID, f.HomeDC, f.Endpoints, f.Key)
}

func WriteSessionFile(path string, file SessionFile) error {
	encoded, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func LoadSessionFile(path string) (SessionFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SessionFile{}, fmt.Errorf("read session file: %w", err)
	}
	var file SessionFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return SessionFile{}, fmt.Errorf("decode session file %q: %w", path, err)
	}
	if file.ID == "" || file.Key.IsZero() {
		return SessionFile{}, fmt.Errorf("session file %q is incomplete", path)
	}
	return file, nil
}
