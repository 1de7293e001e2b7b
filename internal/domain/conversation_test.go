package domain

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseRoomName(t *testing.T) {
	lo, hi, ok := ParseRoomName(RoomName(7, 3))
	assert.Check(t, ok)
	assert.Equal(t, lo, int64(3))
	assert.Equal(t, hi, int64(7))

	lo, hi, ok = ParseRoomName("chat_9_4")
	assert.Check(t, ok)
	assert.Equal(t, lo, int64(4))
	assert.Equal(t, hi, int64(9))

	_, _, ok = ParseRoomName("lobby")
	assert.Check(t, !ok)
	_, _, ok = ParseRoomName("chat_1")
	assert.Check(t, !ok)
}

func TestRoomAdmits(t *testing.T) {
	tests := []struct {
		room string
		user int64
		want bool
	}{
		{"chat_1_2", 1, true},
		{"chat_1_2", 2, true},
		{"chat_1_2", 9, false},
		{"chat_2_1", 9, false},
		{"chat_2_1", 2, true},
		{"chat_99999999999999999999_1", 1, false},
		{"lobby", 9, true},
		{"chat_lobby", 9, true},
	}
	for _, tt := range tests {
		t.Run(tt.room, func(t *testing.T) {
			assert.Equal(t, RoomAdmits(tt.room, tt.user), tt.want)
		})
	}
}
