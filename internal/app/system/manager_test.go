package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name    string
	events  *[]string
	failOn  bool
	stopErr error
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	if s.failOn {
		return errors.New("boom")
	}
	*s.events = append(*s.events, "start:"+s.name)
	return nil
}

func (s *recordingService) Stop(context.Context) error {
	*s.events = append(*s.events, "stop:"+s.name)
	return s.stopErr
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(&recordingService{name: "b", events: &events}))
	require.NoError(t, m.Register(&recordingService{name: "c", events: &events}))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))

	require.Equal(t, []string{
		"start:a", "start:b", "start:c",
		"stop:c", "stop:b", "stop:a",
	}, events)
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.Error(t, m.Register(&recordingService{name: "a", events: &events}))
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(&recordingService{name: "bad", events: &events, failOn: true}))

	err := m.Start(context.Background())
	require.Error(t, err)
	// the already started service is stopped again
	require.Equal(t, []string{"start:a", "stop:a"}, events)
}

func TestManagerRejectsRegisterAfterStart(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Register(&recordingService{name: "late", events: &events}))
	require.NoError(t, m.Stop(context.Background()))
}
