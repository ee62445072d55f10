package metricsvc

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaecole/backend/core/document"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/invitation"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	ctx := context.Background()

	c.SessionEvent(ctx, identity.EventSignedIn, identity.Session{})
	c.SessionEvent(ctx, identity.EventSignedIn, identity.Session{})
	c.InvitationEvent(ctx, invitation.EventAccepted, invitation.Invitation{})
	c.DocumentRendered(ctx, document.KindInvoice)
	c.SignInFailed("tenant_blocked")
	c.ObserveRequest("GET", "/api/invoices", 200, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.sessions.WithLabelValues(string(identity.EventSignedIn))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.invitations.WithLabelValues(string(invitation.EventAccepted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.documents.WithLabelValues(document.KindInvoice)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.signInFailures.WithLabelValues("tenant_blocked")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}
