package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mhodzic/parley/internal/push"
	"github.com/mhodzic/parley/internal/repository"
)

var ErrCalleeUnreachable = errors.New("contact cannot receive calls")

// CallService starts video calls by ringing the callee's device through the
// push relay. The call itself runs over an external conferencing service; this
// side only hands both parties the same meeting ID.
type CallService struct {
	userRepo repository.UserRepository
	relay    push.Relay
}

func NewCallService(userRepo repository.UserRepository, relay push.Relay) *CallService {
	return &CallService{
		userRepo: userRepo,
		relay:    relay,
	}
}

type StartCallResult struct {
	MeetingID  string `json:"meeting_id"`
	CalleeName string `json:"callee_name"`
}

func (s *CallService) StartCall(ctx context.Context, callerID, calleeID string) (*StartCallResult, error) {
	callee, err := s.userRepo.GetByID(ctx, calleeID)
	if err != nil {
		return nil, err
	}
	if callee == nil {
		return nil, ErrUserNotFound
	}
	if callee.DeviceToken == "" {
		return nil, ErrCalleeUnreachable
	}

	caller, err := s.userRepo.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, ErrUserNotFound
	}

	meetingID := uuid.NewString()
	notification := push.Notification{
		Title: "Incoming call",
		Body:  fmt.Sprintf("%s is calling you", caller.DisplayName()),
		Data: map[string]string{
			"type":       "incoming_call",
			"meeting_id": meetingID,
			"user_id":    calleeID,
			"user_from":  callerID,
			"name":       caller.DisplayName(),
		},
	}

	if err := s.relay.Notify(ctx, callee.DeviceToken, notification); err != nil {
		return nil, fmt.Errorf("ringing callee: %w", err)
	}

	return &StartCallResult{MeetingID: meetingID, CalleeName: callee.DisplayName()}, nil
}
