package schedule

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name string
	ran  chan struct{}
}

func (f *fakeJob) Name() string { return f.name }
func (f *fakeJob) Run(ctx context.Context) error {
	close(f.ran)
	return nil
}

func TestAddJobRejectsMalformedCron(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a cron expression", &fakeJob{name: "bad"})
	require.Error(t, err)
}

func TestAddJobAcceptsStandardFiveFieldCron(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("0 0 * * *", &fakeJob{name: "eod", ran: make(chan struct{})})
	assert.NoError(t, err)
}
