// Package connect provides the Connect RPC control service.
package connect

import (
	"encoding/json"
	"time"

	"github.com/osa030/croquis/internal/app/notification"
)

// ControlServiceName is the fully-qualified name of the control service.
const ControlServiceName = "croquis.v1.ControlService"

// Procedure paths of the control service.
const (
	ControlServiceGetStatusProcedure         = "/" + ControlServiceName + "/GetStatus"
	ControlServiceStartProcedure             = "/" + ControlServiceName + "/Start"
	ControlServiceStopProcedure              = "/" + ControlServiceName + "/Stop"
	ControlServiceToggleProcedure            = "/" + ControlServiceName + "/Toggle"
	ControlServiceNextProcedure              = "/" + ControlServiceName + "/Next"
	ControlServicePrevProcedure              = "/" + ControlServiceName + "/Prev"
	ControlServiceReshuffleProcedure         = "/" + ControlServiceName + "/Reshuffle"
	ControlServiceResetProcedure             = "/" + ControlServiceName + "/Reset"
	ControlServiceUpdateSettingsProcedure    = "/" + ControlServiceName + "/UpdateSettings"
	ControlServiceReportItemFailureProcedure = "/" + ControlServiceName + "/ReportItemFailure"
	ControlServiceSubscribeEventsProcedure   = "/" + ControlServiceName + "/SubscribeEvents"
)

// actionProcedures maps session action names to their procedures.
var actionProcedures = map[string]string{
	"start":     ControlServiceStartProcedure,
	"stop":      ControlServiceStopProcedure,
	"toggle":    ControlServiceToggleProcedure,
	"next":      ControlServiceNextProcedure,
	"prev":      ControlServicePrevProcedure,
	"reshuffle": ControlServiceReshuffleProcedure,
	"reset":     ControlServiceResetProcedure,
}

// GetStatusRequest is the request of GetStatus.
type GetStatusRequest struct{}

// ActionRequest is the request of every session action.
type ActionRequest struct{}

// ActionResponse is the response of every session action.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ReportItemFailureRequest reports an item that could not be displayed.
type ReportItemFailureRequest struct {
	ItemID string `json:"item_id"`
}

// SubscribeEventsRequest is the request of SubscribeEvents.
type SubscribeEventsRequest struct{}

// Event is a notification as a client receives it. Data is decoded by Type.
type Event struct {
	SequenceNo uint64            `json:"seq"`
	Type       notification.Type `json:"type"`
	Time       time.Time         `json:"time"`
	Data       json.RawMessage   `json:"data,omitempty"`
}
