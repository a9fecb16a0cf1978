package server

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// SessionService implements the apophis.v1.SessionService procedures.
type SessionService struct {
	sessions *SessionStore
}

// NewSessionService creates a SessionService.
func NewSessionService(sessions *SessionStore) *SessionService {
	return &SessionService{sessions: sessions}
}

// CreateSession creates a session. Request fields: name.
func (s *SessionService) CreateSession(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	name, err := stringField(req.Msg, "name")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	session := s.sessions.Create(name)
	log.Infof("created session %s", session.ID)
	msg, err := structpb.NewStruct(map[string]any{"session": session.ID})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// DestroySession removes a session. Request fields: session.
func (s *SessionService) DestroySession(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := s.sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	s.sessions.Destroy(id)
	return connect.NewResponse(&structpb.Struct{}), nil
}

// Complete returns completion candidates for prefix, including the names
// bound in the session when one is given. Request fields: prefix, session.
func (s *SessionService) Complete(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	prefix, err := stringField(req.Msg, "prefix")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	var items []Completion
	if id, _ := stringField(req.Msg, "session"); id != "" {
		session, ok := s.sessions.Get(id)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
		}
		items = complete(prefix, session.Env())
	} else {
		items = complete(prefix, nil)
	}

	list := make([]any, len(items))
	for i, it := range items {
		list[i] = map[string]any{"label": it.Label, "kind": it.Kind}
	}
	msg, err := structpb.NewStruct(map[string]any{"items": list})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func (s *SessionService) sessionID(msg *structpb.Struct) (string, error) {
	id, err := stringField(msg, "session")
	if err != nil {
		return "", connect.NewError(connect.CodeInvalidArgument, err)
	}
	if id == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session is required"))
	}
	if _, ok := s.sessions.Get(id); !ok {
		return "", connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return id, nil
}
