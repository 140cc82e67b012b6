package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReducer() Reducer {
	var n int
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Reducer{
		Clock: func() time.Time { return base.Add(time.Duration(n) * time.Second) },
		NewID: func() string {
			n++
			return fmt.Sprintf("e%d", n)
		},
	}
}

func connected(narration bool) State {
	return State{Connected: true, Narration: narration}
}

func TestDecodePayload(t *testing.T) {
	p := DecodePayload([]byte(`{"detected_gun":true,"detected_person":true,"text_message":"Intruder at door"}`))
	assert.True(t, p.Gun)
	assert.True(t, p.Person)
	assert.False(t, p.Knife)
	assert.False(t, p.MultiplePersons)
	assert.Equal(t, "Intruder at door", p.Text)
}

func TestDecodePayload_Lenient(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`[]`,
		`null`,
		`{"detected_gun":"yes","detected_knife":1,"detected_person":null,"text_message":42}`,
	}
	for _, raw := range cases {
		p := DecodePayload([]byte(raw))
		assert.Equal(t, Payload{}, p, "raw=%q", raw)
	}
}

func TestClassify_Priority(t *testing.T) {
	tests := []struct {
		snap Snapshot
		want Kind
	}{
		{Snapshot{Gun: true, Person: true}, KindGun},
		{Snapshot{Gun: true, Knife: true, MultiplePersons: true, Person: true}, KindGun},
		{Snapshot{Knife: true, MultiplePersons: true}, KindKnife},
		{Snapshot{MultiplePersons: true, Person: true}, KindMultiplePersons},
		{Snapshot{Person: true}, KindPerson},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.snap)
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "%+v", tt.snap)
	}

	_, ok := Classify(Snapshot{})
	assert.False(t, ok, "empty snapshot has no classification")
}

func TestApply_GunOverPerson(t *testing.T) {
	r := testReducer()
	s, entry := r.Apply(connected(false), Received{DecodePayload([]byte(`{"detected_gun":true,"detected_person":true}`))})

	require.NotNil(t, entry)
	assert.Equal(t, KindGun, entry.Type)
	require.Len(t, s.History, 1)
	assert.Equal(t, KindGun, s.History[0].Type)
	assert.Equal(t, Snapshot{Gun: true, Person: true}, s.Snapshot)
}

func TestApply_NoFlagsLeavesHistory(t *testing.T) {
	r := testReducer()
	s, _ := r.Apply(connected(false), Received{Payload{Person: true}})
	before := s.History

	s, entry := r.Apply(s, Received{Payload{}})
	assert.Nil(t, entry)
	assert.Equal(t, before, s.History)
	assert.Equal(t, Snapshot{}, s.Snapshot, "snapshot is replaced, not merged")
}

func TestApply_HistoryCappedNewestFirst(t *testing.T) {
	r := testReducer()
	s := connected(false)
	for i := 0; i < 8; i++ {
		s, _ = r.Apply(s, Received{Payload{Person: true}})
		assert.LessOrEqual(t, len(s.History), MaxHistory)
	}
	require.Len(t, s.History, MaxHistory)
	assert.Equal(t, "e8", s.History[0].ID)
	assert.Equal(t, "e4", s.History[MaxHistory-1].ID, "oldest entries drop first")
}

func TestApply_HistoryDoesNotAlias(t *testing.T) {
	r := testReducer()
	s1, _ := r.Apply(connected(false), Received{Payload{Person: true}})
	s2, _ := r.Apply(s1, Received{Payload{Knife: true}})
	assert.Equal(t, KindPerson, s1.History[0].Type)
	assert.Equal(t, KindKnife, s2.History[0].Type)
}

func TestApply_NarrationText(t *testing.T) {
	r := testReducer()
	s, entry := r.Apply(connected(true), Received{DecodePayload([]byte(`{"detected_person":true,"text_message":"Intruder at door"}`))})
	assert.Equal(t, "Intruder at door", s.Message)
	require.NotNil(t, entry)
	assert.Equal(t, "Intruder at door", entry.Message)
	assert.Equal(t, "Person detected (Intruder at door)", entry.Label())

	// An event without text clears the previous narration.
	s, _ = r.Apply(s, Received{Payload{Person: true}})
	assert.Empty(t, s.Message)
}

func TestApply_NarrationDisabledIgnoresText(t *testing.T) {
	r := testReducer()
	s, entry := r.Apply(connected(false), Received{Payload{Person: true, Text: "hello"}})
	assert.Empty(t, s.Message)
	assert.Equal(t, "Person detected", entry.Label())
}

func TestApply_NarrationOffClearsOnNextEvent(t *testing.T) {
	r := testReducer()
	s, _ := r.Apply(connected(true), Received{Payload{Person: true, Text: "at the gate"}})
	require.Equal(t, "at the gate", s.Message)

	s, _ = r.Apply(s, NarrationChanged{Enabled: false})
	assert.Equal(t, "at the gate", s.Message, "toggle alone does not clear")

	s, _ = r.Apply(s, Received{Payload{Person: true, Text: "still there"}})
	assert.Empty(t, s.Message)
}

func TestApply_DisconnectResets(t *testing.T) {
	r := testReducer()
	s, _ := r.Apply(connected(true), Received{Payload{Gun: true, Knife: true, Text: "armed"}})
	require.Len(t, s.History, 1)

	s, _ = r.Apply(s, ConnectivityChanged{Connected: false})
	assert.False(t, s.Connected)
	assert.Equal(t, Snapshot{}, s.Snapshot)
	assert.Empty(t, s.Message)
	assert.Len(t, s.History, 1, "history is left untouched")
}

func TestClone(t *testing.T) {
	r := testReducer()
	s, _ := r.Apply(connected(false), Received{Payload{Person: true}})
	c := s.Clone()
	c.History[0].Type = KindGun
	assert.Equal(t, KindPerson, s.History[0].Type)
}
