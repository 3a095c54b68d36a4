package server

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dilemma-server/internal/payoff"
	"dilemma-server/internal/session"
	"dilemma-server/internal/waitingroom"
)

func managerConfig() session.Config {
	return session.Config{
		ExperimentID:          "exp-1",
		Seats:                 3,
		Rounds:                2,
		AnnouncementDuration:  50 * time.Millisecond,
		CommunicationDuration: 50 * time.Millisecond,
		ActionDuration:        50 * time.Millisecond,
		RevelationDuration:    50 * time.Millisecond,
		Payoff:                payoff.DefaultParams(3),
	}
}

func TestRoomManager_CreateRoomAssignsUniqueCodes(t *testing.T) {
	assert := assert.New(t)
	rm := NewRoomManager(zerolog.Nop())

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		room, err := rm.CreateRoom(managerConfig(), time.Second, func(string, waitingroom.Event) {})
		require.NoError(t, err)
		assert.False(seen[room.Code()], "code %s reused", room.Code())
		seen[room.Code()] = true

		got, ok := rm.GetRoom(room.Code())
		assert.True(ok)
		assert.Same(room, got)
	}
}

func TestRoomManager_CreateRoomRejectsBadConfig(t *testing.T) {
	rm := NewRoomManager(zerolog.Nop())

	bad := managerConfig()
	bad.Seats = 1
	_, err := rm.CreateRoom(bad, time.Second, func(string, waitingroom.Event) {})
	assert.Error(t, err)
	assert.Empty(t, rm.Rooms())
}

func TestRoomManager_RemoveRoomFreesCode(t *testing.T) {
	assert := assert.New(t)
	rm := NewRoomManager(zerolog.Nop())

	room, err := rm.CreateRoom(managerConfig(), time.Second, func(string, waitingroom.Event) {})
	require.NoError(t, err)
	code := room.Code()

	rm.RemoveRoom(code)
	_, ok := rm.GetRoom(code)
	assert.False(ok)

	rm.mu.RLock()
	used := rm.usedCodes[code]
	rm.mu.RUnlock()
	assert.False(used, "removed room code should be reusable")
}

func TestRoomManager_SessionRegistry(t *testing.T) {
	assert := assert.New(t)
	rm := NewRoomManager(zerolog.Nop())

	cfg := managerConfig()
	seats := []session.SeatAssignment{
		{Identity: "alice", Seat: 0, Connected: true},
		{Identity: "bob", Seat: 1, Connected: true},
		{Identity: "carol", Seat: 2, Connected: true},
	}
	sess, err := session.New(cfg, seats, "ctrl", session.Deps{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer sess.Dispose("test over")

	rm.AddSession(sess)

	got, ok := rm.GetSession(sess.ID())
	assert.True(ok)
	assert.Same(sess, got)
	assert.Len(rm.Sessions(), 1)

	_, ok = rm.GetSession("missing")
	assert.False(ok)
}
