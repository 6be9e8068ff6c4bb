package amqp

import "github.com/google/uuid"

// generateContainerID returns a default container-id for callers that
// don't supply one to Connect/Listen, the same way most AMQP 1.0 client
// libraries mint one rather than requiring it up front.
func generateContainerID() string {
	return uuid.NewString()
}
