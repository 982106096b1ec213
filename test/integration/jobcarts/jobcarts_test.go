//go:build integration

package jobcarts

import (
	"context"
	"fmt"
	"sync"
	"testing"

	jobcartrepo "eventmarket/internal/jobcarts/repository"
	"eventmarket/pkg/client"
	"eventmarket/pkg/model"
	"eventmarket/test/integration/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo := env.Setup(t, env.JobCartsURL, jobcartrepo.JobCartsCollection, jobcartrepo.ClaimsCollection)
	carts := client.NewJobCartClient(env.JobCartsURL)
	ctx := context.Background()

	owner := model.Actor{ID: "client-" + uuid.NewString()[:8], Role: model.RoleClient}
	cart, err := carts.Create(ctx, owner, &model.JobCart{EventID: uuid.NewString(), ServiceType: "photography", Location: "Tel Aviv"})
	require.NoError(t, err)

	const providers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < providers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			provider := model.Actor{ID: fmt.Sprintf("provider-%d", i), Role: model.RoleServiceProvider}
			result, err := carts.Accept(ctx, provider, cart.ID)
			if !assert.NoError(t, err) {
				return
			}
			if result.Success {
				mu.Lock()
				winners = append(winners, provider.ID)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	if mongo != nil {
		accepted := mongo.CountDocuments(t, jobcartrepo.ClaimsCollection, bson.M{"job_cart_id": cart.ID, "status": "accepted"})
		assert.EqualValues(t, 1, accepted)
	}

	winner := model.Actor{ID: winners[0], Role: model.RoleServiceProvider}
	permission, err := carts.CanUploadQuotation(ctx, winner, cart.ID)
	require.NoError(t, err)
	assert.True(t, permission.Allowed)
}
