package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/relaycopier/signalcopier/internal/domain"
)

// Dialer implements supervisor.BridgeDialer against the real bridge HTTP
// API: one shared BridgeClient per process, one Executor per broker
// account. Deployment (login/password -> BridgeAccountID) happens during
// tenant onboarding, outside this core's scope; Connect requires the
// account to already carry a BridgeAccountID.
type Dialer struct {
	client *BridgeClient
}

// NewDialer builds a Dialer against one bridge base URL.
func NewDialer(baseURL, apiKey string, deployPollEvery time.Duration, deployMaxPolls int) *Dialer {
	return &Dialer{client: NewBridgeClient(baseURL, apiKey, deployPollEvery, deployMaxPolls)}
}

// Connect wraps account as a live Executor bound to the shared bridge
// client.
func (d *Dialer) Connect(_ context.Context, account domain.BrokerAccount, settings ExecutorSettings) (*Executor, error) {
	if account.BridgeAccountID == "" {
		return nil, fmt.Errorf("broker account %s has no bridge account id; deploy it first", account.ID)
	}
	return NewExecutor(d.client, account.BridgeAccountID, account.TenantID, settings), nil
}
