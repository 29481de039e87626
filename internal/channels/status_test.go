package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/sdr/internal/config"
	"github.com/Napageneral/sdr/internal/testutil"
)

func TestRecordOutcomeAndStatuses(t *testing.T) {
	conn := testutil.OpenTestDB(t)
	ctx := context.Background()

	require.NoError(t, RecordOutcome(ctx, conn, KindWhatsApp, nil))
	require.NoError(t, RecordOutcome(ctx, conn, KindWhatsApp, nil))
	require.NoError(t, RecordOutcome(ctx, conn, KindWhatsApp, errors.New("boom")))

	statuses, err := GetStatuses(ctx, conn, config.Default())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	email := statuses[0]
	assert.Equal(t, "email", email.Name)
	assert.True(t, email.Supported)
	assert.Empty(t, email.LastStatus)
	assert.Zero(t, email.Sent)

	wa := statuses[1]
	assert.Equal(t, "whatsapp", wa.Name)
	assert.Equal(t, "error", wa.LastStatus)
	assert.Equal(t, "boom", wa.LastError)
	assert.Equal(t, int64(2), wa.Sent)
	assert.Equal(t, int64(1), wa.Failed)
	assert.NotNil(t, wa.LastSuccessAt)
	assert.NotNil(t, wa.LastFailureAt)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("resend"))
	assert.False(t, Supported("twilio"))
}
