package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/testutil"
)

func TestSourceHandleLine(t *testing.T) {
	t.Parallel()
	rec := &recordedFixes{}
	src := NewSource(NewDisabledSerialMux(), rec.handle, SourceOptions{DefaultAccuracy: 15})

	require.NoError(t, src.HandleLine(sampleRMC))
	require.NoError(t, src.HandleLine(sampleGGA))
	require.NoError(t, src.HandleLine(sampleRMC))
	require.NoError(t, src.HandleLine(WithChecksum("GPGSV,3,1,11,09,76,148,32,05,55,242,29,17,33,054,30,14,27,314,24")))
	require.NoError(t, src.HandleLine(WithChecksum("GPRMC,123520,V,,,,,,,230394,,")))
	assert.ErrorIs(t, src.HandleLine("garbage"), ErrNotNMEA)
	assert.ErrorIs(t, src.HandleLine(sampleRMC[:len(sampleRMC)-1]+"B"), ErrMalformed)

	fixes := rec.snapshot()
	require.Len(t, fixes, 2)
	assert.Equal(t, 15.0, fixes[0].Accuracy, "default until GGA reports HDOP")
	assert.InDelta(t, 4.5, fixes[1].Accuracy, 1e-9)
	assert.Equal(t, ProviderGPS, fixes[0].Provider)

	last, ok := src.Last()
	require.True(t, ok)
	assert.Equal(t, fixes[1], last)
	assert.Equal(t, SourceStats{Lines: 7, Fixes: 2, NoFix: 1, Errors: 2}, src.Stats())
}

func TestSourceCountsRejectedFixes(t *testing.T) {
	t.Parallel()
	rec := &recordedFixes{err: errors.New("engine stopped")}
	src := NewSource(NewDisabledSerialMux(), rec.handle, SourceOptions{Provider: route.ProviderMock})

	assert.ErrorContains(t, src.HandleLine(sampleRMC), "engine stopped")
	assert.Equal(t, 1, src.Stats().Dropped)
	assert.True(t, rec.snapshot()[0].IsMock())
}

func TestSourceRunsOverMux(t *testing.T) {
	t.Parallel()
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)
	rec := &recordedFixes{}
	src := NewSource(mux, rec.handle, SourceOptions{DefaultAccuracy: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- src.Run(ctx) }()
	go mux.Monitor(ctx)
	require.Eventually(t, func() bool { return mux.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	want := testutil.Walk(testutil.Along(testutil.TwoStepRoute().Geometry, 25), testutil.Epoch)
	for _, f := range want {
		port.AddReadData([]byte(FormatRMC(f) + "\r\n"))
	}
	require.Eventually(t, func() bool { return len(rec.snapshot()) == len(want) }, 2*time.Second, 5*time.Millisecond)

	got := rec.snapshot()
	for i := range want {
		assert.InDelta(t, want[i].Latitude, got[i].Latitude, 1e-7)
		assert.InDelta(t, want[i].Longitude, got[i].Longitude, 1e-7)
		assert.True(t, want[i].Time.Equal(got[i].Time))
	}

	// closing the mux ends the subscription
	require.NoError(t, mux.Close())
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
