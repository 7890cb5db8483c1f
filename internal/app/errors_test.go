package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"turnos-web/internal/booking"
	"turnos-web/internal/domain"
	"turnos-web/internal/gateway"
	"turnos-web/internal/schedule"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{name: "validation", err: domain.NewValidationError("day must be 0..6"), status: http.StatusBadRequest, msg: "day must be 0..6"},
		{name: "patient only", err: booking.ErrPatientOnly, status: http.StatusForbidden, msg: booking.MsgPatientOnly},
		{name: "editing", err: fmt.Errorf("begin: %w", schedule.ErrAlreadyEditing), status: http.StatusConflict, msg: "begin: " + schedule.ErrAlreadyEditing.Error()},
		{name: "rejected", err: &gateway.Error{Kind: gateway.KindValidationRejected, Status: 422, Message: "Slot taken"}, status: 422, msg: "Slot taken"},
		{name: "auth", err: &gateway.Error{Kind: gateway.KindAuthorizationInvalid, Status: 401, Message: "Invalid credentials"}, status: http.StatusUnauthorized, msg: "Invalid credentials"},
		{name: "server fault", err: &gateway.Error{Kind: gateway.KindServerFault, Status: 500, Message: "System.NullReferenceException"}, status: http.StatusBadGateway, msg: "generic"},
		{name: "transport", err: &gateway.Error{Kind: gateway.KindTransport, Message: "dial tcp"}, status: http.StatusBadGateway, msg: "generic"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, msg: "generic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, msg := statusFor(tc.err, "generic")
			if status != tc.status || msg != tc.msg {
				t.Fatalf("statusFor = (%d, %q), want (%d, %q)", status, msg, tc.status, tc.msg)
			}
		})
	}
}
