package ws

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"streamtracker/backend/internal/cache"
	"streamtracker/backend/internal/collab"
)

// stubService lets the dispatch tests script each action's outcome.
type stubService struct {
	lockErr   *collab.ActionError
	unlockErr *collab.ActionError
	updateErr *collab.ActionError
	roster    []cache.Member
	calls     []string
}

func (s *stubService) Join(context.Context, collab.Actor) ([]cache.Member, error) {
	s.calls = append(s.calls, "join")
	return s.roster, nil
}

func (s *stubService) Refresh(context.Context, collab.Actor) ([]cache.Member, error) {
	s.calls = append(s.calls, "refresh")
	return s.roster, nil
}

func (s *stubService) Leave(context.Context, collab.Actor) {
	s.calls = append(s.calls, "leave")
}

func (s *stubService) LockCell(context.Context, collab.Actor, uint64, string) *collab.ActionError {
	s.calls = append(s.calls, "lock")
	return s.lockErr
}

func (s *stubService) UnlockCell(context.Context, collab.Actor, uint64, string) *collab.ActionError {
	s.calls = append(s.calls, "unlock")
	return s.unlockErr
}

func (s *stubService) UpdateCell(context.Context, collab.Actor, uint64, string, string) *collab.ActionError {
	s.calls = append(s.calls, "update")
	return s.updateErr
}

func newTestConn(svc collab.Service) *Conn {
	actor := collab.Actor{Member: cache.Member{ID: 1, Name: "alice"}, CanEdit: true}
	return NewConn(nil, nil, actor, svc, collab.NewSemaphoreControl(1), zap.NewNop())
}

func drain(t *testing.T, c *Conn) []OutboundMessage {
	t.Helper()
	var out []OutboundMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestMalformedLockGetsErrorReply(t *testing.T) {
	svc := &stubService{}
	c := newTestConn(svc)

	c.handleLock(context.Background(), ClientMessage{Type: "lock_cell"})

	if len(svc.calls) != 0 {
		t.Fatalf("malformed action must not reach the service, calls=%v", svc.calls)
	}
	replies := drain(t, c)
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %v", replies)
	}
	reply := replies[0].(ServerMessage)
	if reply.Type != "error" || reply.Code != "MALFORMED" {
		t.Fatalf("expected MALFORMED error reply, got %+v", reply)
	}
}

func TestLockConflictBecomesPrivateDenial(t *testing.T) {
	svc := &stubService{lockErr: &collab.ActionError{Code: collab.CodeLockConflict, Holder: 7}}
	c := newTestConn(svc)

	c.handleLock(context.Background(), ClientMessage{Type: "lock_cell", EntityID: 10, Field: "title"})

	replies := drain(t, c)
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %v", replies)
	}
	reply := replies[0].(ServerMessage)
	if reply.Type != "lock_denied" || reply.Holder != 7 || reply.EntityID != 10 || reply.Field != "title" {
		t.Fatalf("expected lock_denied naming holder 7, got %+v", reply)
	}
}

func TestSuccessfulLockRepliesNothing(t *testing.T) {
	svc := &stubService{}
	c := newTestConn(svc)

	c.handleLock(context.Background(), ClientMessage{Type: "lock_cell", EntityID: 10, Field: "title"})

	// The caller learns about success from the broadcast like everyone else.
	if replies := drain(t, c); len(replies) != 0 {
		t.Fatalf("expected no private reply on success, got %v", replies)
	}
}

func TestUpdateErrorCodePassedThrough(t *testing.T) {
	svc := &stubService{updateErr: &collab.ActionError{Code: collab.CodeInvalidField}}
	c := newTestConn(svc)

	c.handleUpdate(context.Background(), ClientMessage{Type: "update_cell", EntityID: 5, Field: "admin_secret", Value: "x"})

	replies := drain(t, c)
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %v", replies)
	}
	reply := replies[0].(ServerMessage)
	if reply.Type != "error" || reply.Code != collab.CodeInvalidField {
		t.Fatalf("expected INVALID_FIELD error reply, got %+v", reply)
	}
}

func TestHeartbeatRepliesRoster(t *testing.T) {
	svc := &stubService{roster: []cache.Member{{ID: 1, Name: "alice"}, {ID: 2, Name: "bob"}}}
	c := newTestConn(svc)

	c.handleHeartbeat(context.Background())

	replies := drain(t, c)
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %v", replies)
	}
	reply := replies[0].(ServerMessage)
	if reply.Type != "roster" || len(reply.Members) != 2 {
		t.Fatalf("expected roster reply with 2 members, got %+v", reply)
	}
}
