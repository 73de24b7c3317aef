package connect

import (
	"context"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/croquis/internal/app/notification"
	"github.com/osa030/croquis/internal/app/playback"
	"github.com/osa030/croquis/internal/app/session"
)

// maxRequestBytes bounds request messages; settings are the largest.
const maxRequestBytes = 1 << 16

// Session is the part of the session manager the service drives.
type Session interface {
	GetStatus() *session.Status
	StartSession() error
	StopSession()
	ToggleSession() error
	Next()
	Prev()
	Reshuffle()
	Reset()
	UpdateSettings(s session.Settings) error
	ReportItemFailure(itemID string) error
	GetNotificationManager() *notification.Manager
	Done() <-chan struct{}
}

// ControlService implements the ControlService RPC.
type ControlService struct {
	session Session
}

// NewControlService creates a new ControlService.
func NewControlService(s Session) *ControlService {
	return &ControlService{session: s}
}

// NewControlServiceHandler builds an HTTP handler for every procedure of the
// service. It returns the path on which to mount the handler.
func NewControlServiceHandler(svc *ControlService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{strict: true}),
		connect.WithReadMaxBytes(maxRequestBytes),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ControlServiceGetStatusProcedure, connect.NewUnaryHandler(ControlServiceGetStatusProcedure, svc.GetStatus, opts...))
	mux.Handle(ControlServiceStartProcedure, connect.NewUnaryHandler(ControlServiceStartProcedure, svc.Start, opts...))
	mux.Handle(ControlServiceStopProcedure, connect.NewUnaryHandler(ControlServiceStopProcedure, svc.Stop, opts...))
	mux.Handle(ControlServiceToggleProcedure, connect.NewUnaryHandler(ControlServiceToggleProcedure, svc.Toggle, opts...))
	mux.Handle(ControlServiceNextProcedure, connect.NewUnaryHandler(ControlServiceNextProcedure, svc.Next, opts...))
	mux.Handle(ControlServicePrevProcedure, connect.NewUnaryHandler(ControlServicePrevProcedure, svc.Prev, opts...))
	mux.Handle(ControlServiceReshuffleProcedure, connect.NewUnaryHandler(ControlServiceReshuffleProcedure, svc.Reshuffle, opts...))
	mux.Handle(ControlServiceResetProcedure, connect.NewUnaryHandler(ControlServiceResetProcedure, svc.Reset, opts...))
	mux.Handle(ControlServiceUpdateSettingsProcedure, connect.NewUnaryHandler(ControlServiceUpdateSettingsProcedure, svc.UpdateSettings, opts...))
	mux.Handle(ControlServiceReportItemFailureProcedure, connect.NewUnaryHandler(ControlServiceReportItemFailureProcedure, svc.ReportItemFailure, opts...))
	mux.Handle(ControlServiceSubscribeEventsProcedure, connect.NewServerStreamHandler(ControlServiceSubscribeEventsProcedure, svc.SubscribeEvents, opts...))

	return "/" + ControlServiceName + "/", mux
}

// NewServer creates an HTTP server with h2c (HTTP/2 cleartext) support.
// Requests inherit base, so cancelling it ends open event streams.
func NewServer(base context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

// GetStatus returns the current session status.
func (s *ControlService) GetStatus(
	ctx context.Context,
	req *connect.Request[GetStatusRequest],
) (*connect.Response[session.Status], error) {
	return connect.NewResponse(s.session.GetStatus()), nil
}

// Start starts a session.
func (s *ControlService) Start(
	ctx context.Context,
	req *connect.Request[ActionRequest],
) (*connect.Response[ActionResponse], error) {
	return s.act(req, "Session started", s.session.StartSession)
}

// Stop stops the session.
func (s *ControlService) Stop(
	ctx context.Context,
	req *connect.Request[ActionRequest],
) (*connect.Response[ActionResponse], error) {
	return s.act(req, "Session stopped", func() error {
		s.session.StopSession()
		return nil
	})
}

// Toggle starts a stopped session or stops a running one.
func (s *ControlService) Toggle(
	ctx context.Context,
	req *connect.Request[ActionRequest],
) (*connect.Response[ActionResponse], error) {
	return s.act(req, "Session toggled", s.session.ToggleSession)
}

// Next shows the next item.
func (s *ControlService) Next(
	ctx context.Context,
	req *connect.Request[ActionRequest],
) (*connect.Response[ActionResponse], error) {
	return s.act(req, "Moved to next item", func() error {
		s.session.Next()
		return nil
	})
}

// Prev shows the previous item.
func (s *ControlService) Prev(
	ctx context.Context,
	req *connect.Request[ActionRequest],
) (*connect.Response[ActionResponse], error) {
	return s.act(req, "Moved to previous item", func() error {
		s.session.Prev()
		return nil
	})
}

// Reshuffle reshuffles the playlists.
func (s *ControlService) Reshuffle(
	ctx context.Context,
	req *connect.Request[ActionRequest],
) (*connect.Response[ActionResponse], error) {
	return s.act(req, "Playlist reshuffled", func() error {
		s.session.Reshuffle()
		return nil
	})
}

// Reset stops the session and restores the initial settings.
func (s *ControlService) Reset(
	ctx context.Context,
	req *connect.Request[ActionRequest],
) (*connect.Response[ActionResponse], error) {
	return s.act(req, "Session reset", func() error {
		s.session.Reset()
		return nil
	})
}

// UpdateSettings applies a partial settings update.
func (s *ControlService) UpdateSettings(
	ctx context.Context,
	req *connect.Request[session.Settings],
) (*connect.Response[ActionResponse], error) {
	if err := s.session.UpdateSettings(*req.Msg); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ActionResponse{Success: true, Message: "Settings updated"}), nil
}

// ReportItemFailure drops an item that could not be displayed.
func (s *ControlService) ReportItemFailure(
	ctx context.Context,
	req *connect.Request[ReportItemFailureRequest],
) (*connect.Response[ActionResponse], error) {
	if req.Msg.ItemID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("item_id is required"))
	}
	if err := s.session.ReportItemFailure(req.Msg.ItemID); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ActionResponse{Success: true, Message: "Item dropped"}), nil
}

// SubscribeEvents streams session notifications. The first message carries
// the full status; every notification published after it follows.
func (s *ControlService) SubscribeEvents(
	ctx context.Context,
	req *connect.Request[SubscribeEventsRequest],
	stream *connect.ServerStream[notification.Notification],
) error {
	// Subscribe before taking the snapshot so nothing falls between them
	notifManager := s.session.GetNotificationManager()
	events := notification.NewChannelStream(64)
	subscriptionID := notifManager.Subscribe(events)
	defer notifManager.Unsubscribe(subscriptionID)

	initial := &notification.Notification{
		SequenceNo: notifManager.NextSequenceNo(),
		Type:       notification.TypeInitialState,
		Time:       time.Now(),
		Data:       s.session.GetStatus(),
	}
	if err := stream.Send(initial); err != nil {
		return err
	}
	zlog.Debug().Msgf("event stream opened: subscriber=%s peer=%s", subscriptionID, req.Peer().Addr)

	for {
		select {
		case <-ctx.Done():
			zlog.Debug().Msgf("event stream closed: subscriber=%s", subscriptionID)
			return nil
		case <-s.session.Done():
			return nil
		case n := <-events.C():
			if err := stream.Send(n); err != nil {
				return err
			}
		}
	}
}

func (s *ControlService) act(req *connect.Request[ActionRequest], message string, fn func() error) (*connect.Response[ActionResponse], error) {
	if err := fn(); err != nil {
		return nil, connectError(err)
	}
	zlog.Info().Msgf("session action: procedure=%s peer=%s", req.Spec().Procedure, req.Peer().Addr)
	return connect.NewResponse(&ActionResponse{Success: true, Message: message}), nil
}

// errorCode maps a session error to a Connect code.
func errorCode(err error) connect.Code {
	switch {
	case errors.Is(err, playback.ErrEmptyPlaylist):
		return connect.CodeFailedPrecondition
	case errors.Is(err, session.ErrInvalidSettings),
		errors.Is(err, playback.ErrInvalidInterval),
		errors.Is(err, playback.ErrInvalidTargetCount),
		errors.Is(err, playback.ErrInvalidVolume):
		return connect.CodeInvalidArgument
	case errors.Is(err, session.ErrUnknownItem):
		return connect.CodeNotFound
	default:
		return connect.CodeInternal
	}
}

func connectError(err error) *connect.Error {
	code := errorCode(err)
	if code == connect.CodeInternal {
		zlog.Error().Msgf("request failed: %v", err)
	}
	return connect.NewError(code, err)
}
