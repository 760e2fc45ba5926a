package startup

import (
	"context"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
)

// ConnectMongoWithRetry подключается к MongoDB и ждёт успешного Ping.
func ConnectMongoWithRetry(uri string, maxWait time.Duration, logPrefix string) *mongo.Client {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err == nil {
			err = client.Ping(ctx, nil)
			if err != nil {
				_ = client.Disconnect(context.Background())
			}
		}
		cancel()
		if err != nil {
			if time.Now().After(deadline) {
				logger.Errorf("%smongo (gave up after %v): %v", logPrefix, maxWait, err)
				os.Exit(1)
			}
			logger.Errorf("%smongo connect failed, retry in %v: %v", logPrefix, backoff, err)
			time.Sleep(backoff)
			backoff = nextBackoff(backoff)
			continue
		}
		return client
	}
}
