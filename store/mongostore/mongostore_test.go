package mongostore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vaulted/rankkey/ordering"
	"github.com/vaulted/rankkey/store/storetest"
)

var (
	testClientOnce sync.Once
	testClient     *mongo.Client
)

// getTestClient connects to RANKKEY_TEST_MONGO_URI once and skips the test
// when it is unset or unreachable.
func getTestClient(t *testing.T) *mongo.Client {
	uri := os.Getenv("RANKKEY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("RANKKEY_TEST_MONGO_URI not set")
	}
	testClientOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return
		}
		testClient = client
	})
	if testClient == nil {
		t.Skip("mongo not reachable")
	}
	return testClient
}

func newTestStore(t *testing.T) ordering.Store {
	client := getTestClient(t)

	name := strings.NewReplacer("/", "_", "\\", "_").Replace(t.Name())
	if len(name) > 30 {
		name = name[len(name)-30:]
	}
	db := client.Database(fmt.Sprintf("rankkey_%s_%d", name, time.Now().UnixNano()%100000))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
	})

	s, err := New(context.Background(), db, "")
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newTestStore)
}
