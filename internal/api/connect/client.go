package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/croquis/internal/app/session"
)

// ControlServiceClient is a client for the control service.
type ControlServiceClient struct {
	getStatus         *connect.Client[GetStatusRequest, session.Status]
	actions           map[string]*connect.Client[ActionRequest, ActionResponse]
	updateSettings    *connect.Client[session.Settings, ActionResponse]
	reportItemFailure *connect.Client[ReportItemFailureRequest, ActionResponse]
	subscribeEvents   *connect.Client[SubscribeEventsRequest, Event]
}

// NewControlServiceClient constructs a client for the control service at
// baseURL. A non-empty token is sent with every call.
func NewControlServiceClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *ControlServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(newTokenInterceptor(token)),
	}, opts...)

	actions := make(map[string]*connect.Client[ActionRequest, ActionResponse], len(actionProcedures))
	for name, procedure := range actionProcedures {
		actions[name] = connect.NewClient[ActionRequest, ActionResponse](httpClient, baseURL+procedure, opts...)
	}
	return &ControlServiceClient{
		getStatus:         connect.NewClient[GetStatusRequest, session.Status](httpClient, baseURL+ControlServiceGetStatusProcedure, opts...),
		actions:           actions,
		updateSettings:    connect.NewClient[session.Settings, ActionResponse](httpClient, baseURL+ControlServiceUpdateSettingsProcedure, opts...),
		reportItemFailure: connect.NewClient[ReportItemFailureRequest, ActionResponse](httpClient, baseURL+ControlServiceReportItemFailureProcedure, opts...),
		subscribeEvents:   connect.NewClient[SubscribeEventsRequest, Event](httpClient, baseURL+ControlServiceSubscribeEventsProcedure, opts...),
	}
}

// GetStatus calls GetStatus.
func (c *ControlServiceClient) GetStatus(ctx context.Context) (*session.Status, error) {
	resp, err := c.getStatus.CallUnary(ctx, connect.NewRequest(&GetStatusRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Action calls the session action with the given name, e.g. "start".
func (c *ControlServiceClient) Action(ctx context.Context, name string) (*ActionResponse, error) {
	client, ok := c.actions[name]
	if !ok {
		return nil, errors.Newf("unknown session action: %s", name)
	}
	resp, err := client.CallUnary(ctx, connect.NewRequest(&ActionRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// UpdateSettings calls UpdateSettings.
func (c *ControlServiceClient) UpdateSettings(ctx context.Context, s session.Settings) (*ActionResponse, error) {
	resp, err := c.updateSettings.CallUnary(ctx, connect.NewRequest(&s))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// ReportItemFailure calls ReportItemFailure.
func (c *ControlServiceClient) ReportItemFailure(ctx context.Context, itemID string) (*ActionResponse, error) {
	resp, err := c.reportItemFailure.CallUnary(ctx, connect.NewRequest(&ReportItemFailureRequest{ItemID: itemID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// SubscribeEvents opens the event stream. The caller closes it.
func (c *ControlServiceClient) SubscribeEvents(ctx context.Context) (*connect.ServerStreamForClient[Event], error) {
	return c.subscribeEvents.CallServerStream(ctx, connect.NewRequest(&SubscribeEventsRequest{}))
}

// tokenInterceptor attaches the control token to outgoing calls.
type tokenInterceptor struct {
	token string
}

func newTokenInterceptor(token string) connect.Interceptor {
	return &tokenInterceptor{token: token}
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if i.token != "" {
			req.Header().Set(TokenHeader, i.token)
		}
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if i.token != "" {
			conn.RequestHeader().Set(TokenHeader, i.token)
		}
		return conn
	}
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
