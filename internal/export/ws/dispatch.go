package ws

import (
	"context"
	"errors"

	"github.com/wiseops/wise/internal/event"
	"github.com/wiseops/wise/internal/pool"
	"github.com/wiseops/wise/internal/rcon"
	"github.com/wiseops/wise/internal/rcon/parsing"
)

// dispatch maps one client command onto a pooled session call and wraps
// the outcome. Any error ends up as a failure response with a nil body;
// the error detail stays in the logs.
func (s *Server) dispatch(ctx context.Context, kind event.CommandRequestKind) event.ServerWsResponse {
	response, err := s.execute(ctx, kind)
	if err != nil {
		s.log.Debug("command dispatch failed", "error", err)
		return event.ServerWsResponse{Failure: true}
	}
	return event.ServerWsResponse{Response: response}
}

func (s *Server) execute(ctx context.Context, kind event.CommandRequestKind) (event.CommandResponseKind, error) {
	switch kind := kind.(type) {
	case event.RawRequest:
		resp, err := pool.Execute(ctx, s.pool, func(ctx context.Context, session *rcon.Session) (rcon.Response, error) {
			return session.Execute(ctx, rcon.NewRequest(kind.Name, kind.ContentBody))
		})
		if err != nil {
			return nil, err
		}
		return event.RawResponse(resp.ContentBody), nil

	case event.GetGameStateRequest:
		state, err := pool.Execute(ctx, s.pool, func(ctx context.Context, session *rcon.Session) (parsing.GameState, error) {
			return session.FetchGameState(ctx)
		})
		if err != nil {
			return nil, err
		}
		return event.GameStateResponse(state), nil

	case event.GetPlayersRequest:
		players, err := pool.Execute(ctx, s.pool, func(ctx context.Context, session *rcon.Session) ([]parsing.PlayerData, error) {
			return session.FetchPlayers(ctx)
		})
		if err != nil {
			return nil, err
		}
		return event.PlayersResponse(players), nil

	case event.GetPlayerRequest:
		player, err := pool.Execute(ctx, s.pool, func(ctx context.Context, session *rcon.Session) (parsing.PlayerData, error) {
			return session.FetchPlayer(ctx, string(kind))
		})
		if err != nil {
			return nil, err
		}
		return event.PlayerResponse(player), nil

	case event.BroadcastRequest:
		return s.fireAndForget(ctx, func(ctx context.Context, session *rcon.Session) error {
			return session.BroadcastMessage(ctx, string(kind))
		})

	case event.MessagePlayerRequest:
		return s.fireAndForget(ctx, func(ctx context.Context, session *rcon.Session) error {
			return session.IndividualMessage(ctx, kind.ID, kind.Message)
		})

	case event.PunishPlayerRequest:
		return s.fireAndForget(ctx, func(ctx context.Context, session *rcon.Session) error {
			return session.PunishPlayer(ctx, kind.ID, kind.Reason)
		})

	case event.KickPlayerRequest:
		return s.fireAndForget(ctx, func(ctx context.Context, session *rcon.Session) error {
			return session.KickPlayer(ctx, kind.ID, kind.Reason)
		})

	default:
		return nil, errUnknownCommand
	}
}

var errUnknownCommand = errors.New("unknown command kind")

func (s *Server) fireAndForget(ctx context.Context, call func(context.Context, *rcon.Session) error) (event.CommandResponseKind, error) {
	_, err := pool.Execute(ctx, s.pool, func(ctx context.Context, session *rcon.Session) (struct{}, error) {
		return struct{}{}, call(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return event.SuccessResponse{}, nil
}
